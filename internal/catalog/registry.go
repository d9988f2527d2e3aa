package catalog

import (
	"fmt"
	"sort"

	"github.com/attunelabs/attune/internal/domain"
)

// Registry provides indexed access to the topic catalog. The catalog is
// immutable after construction, so reads need no locking.
type Registry struct {
	topics  map[string]*domain.Topic
	bySlug  map[string]*domain.Topic
	byLayer map[domain.Layer][]domain.Topic
}

// NewRegistry validates and indexes a set of topics.
func NewRegistry(topics []domain.Topic) (*Registry, error) {
	r := &Registry{
		topics:  make(map[string]*domain.Topic, len(topics)),
		bySlug:  make(map[string]*domain.Topic, len(topics)),
		byLayer: make(map[domain.Layer][]domain.Topic),
	}

	for i := range topics {
		t := &topics[i]
		if t.ID == "" {
			return nil, fmt.Errorf("topic %q: missing id", t.Slug)
		}
		if !t.Layer.Valid() {
			return nil, fmt.Errorf("topic %s: %w: %q", t.ID, domain.ErrUnknownLayer, t.Layer)
		}
		if _, ok := r.topics[t.ID]; ok {
			return nil, fmt.Errorf("topic %s: duplicate id", t.ID)
		}
		if _, ok := r.bySlug[t.Slug]; t.Slug != "" && ok {
			return nil, fmt.Errorf("topic %s: duplicate slug %q", t.ID, t.Slug)
		}
		r.topics[t.ID] = t
		if t.Slug != "" {
			r.bySlug[t.Slug] = t
		}
		r.byLayer[t.Layer] = append(r.byLayer[t.Layer], *t)
	}

	// Prerequisite references must resolve within the catalog.
	for _, t := range topics {
		for _, prereq := range t.Prerequisites {
			if _, ok := r.topics[prereq]; !ok {
				return nil, fmt.Errorf("topic %s: %w: prerequisite %q", t.ID, domain.ErrUnknownTopic, prereq)
			}
		}
	}

	for layer := range r.byLayer {
		sort.Slice(r.byLayer[layer], func(i, j int) bool {
			return r.byLayer[layer][i].ID < r.byLayer[layer][j].ID
		})
	}

	return r, nil
}

// Topic returns a topic by ID. Implements domain.TopicGraph.
func (r *Registry) Topic(id string) (*domain.Topic, bool) {
	t, ok := r.topics[id]
	return t, ok
}

// BySlug returns a topic by its slug.
func (r *Registry) BySlug(slug string) (*domain.Topic, bool) {
	t, ok := r.bySlug[slug]
	return t, ok
}

// Resolve accepts either a topic ID or a slug.
func (r *Registry) Resolve(ref string) (*domain.Topic, error) {
	if t, ok := r.topics[ref]; ok {
		return t, nil
	}
	if t, ok := r.bySlug[ref]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTopic, ref)
}

// Layer returns the topics in a layer, ordered by ID.
func (r *Registry) Layer(layer domain.Layer) []domain.Topic {
	out := make([]domain.Topic, len(r.byLayer[layer]))
	copy(out, r.byLayer[layer])
	return out
}

// All returns every topic in the catalog, ordered by ID.
func (r *Registry) All() []domain.Topic {
	out := make([]domain.Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of topics in the catalog.
func (r *Registry) Len() int {
	return len(r.topics)
}
