package catalog

import (
	"errors"
	"testing"

	"github.com/attunelabs/attune/internal/domain"
)

func TestLoadDefault(t *testing.T) {
	reg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault error: %v", err)
	}

	if reg.Len() == 0 {
		t.Fatal("embedded catalog is empty")
	}

	// Every layer is represented.
	for _, layer := range []domain.Layer{domain.LayerFundamentals, domain.LayerIntermediate, domain.LayerPatterns} {
		if len(reg.Layer(layer)) == 0 {
			t.Errorf("layer %s has no topics", layer)
		}
	}

	// Spot-check a known prerequisite edge.
	topic, ok := reg.Topic("go/interfaces")
	if !ok {
		t.Fatal("go/interfaces not found")
	}
	if topic.Layer != domain.LayerIntermediate {
		t.Errorf("go/interfaces layer = %s; want intermediate", topic.Layer)
	}
	if len(topic.Prerequisites) == 0 {
		t.Error("go/interfaces has no prerequisites")
	}
}

func TestNewRegistry_RejectsUnknownPrerequisite(t *testing.T) {
	_, err := NewRegistry([]domain.Topic{
		{ID: "go/slices", Layer: domain.LayerFundamentals, Prerequisites: []string{"go/nope"}},
	})
	if !errors.Is(err, domain.ErrUnknownTopic) {
		t.Errorf("error = %v; want ErrUnknownTopic", err)
	}
}

func TestNewRegistry_RejectsInvalidLayer(t *testing.T) {
	_, err := NewRegistry([]domain.Topic{
		{ID: "go/slices", Layer: "advanced"},
	})
	if !errors.Is(err, domain.ErrUnknownLayer) {
		t.Errorf("error = %v; want ErrUnknownLayer", err)
	}
}

func TestNewRegistry_RejectsDuplicateID(t *testing.T) {
	_, err := NewRegistry([]domain.Topic{
		{ID: "go/slices", Slug: "slices", Layer: domain.LayerFundamentals},
		{ID: "go/slices", Slug: "slices-2", Layer: domain.LayerFundamentals},
	})
	if err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestRegistry_Resolve(t *testing.T) {
	reg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault error: %v", err)
	}

	byID, err := reg.Resolve("go/channels")
	if err != nil {
		t.Fatalf("Resolve by id error: %v", err)
	}
	bySlug, err := reg.Resolve("channels")
	if err != nil {
		t.Fatalf("Resolve by slug error: %v", err)
	}
	if byID.ID != bySlug.ID {
		t.Errorf("Resolve mismatch: %s vs %s", byID.ID, bySlug.ID)
	}

	if _, err := reg.Resolve("go/nope"); !errors.Is(err, domain.ErrUnknownTopic) {
		t.Errorf("Resolve unknown error = %v; want ErrUnknownTopic", err)
	}
}

func TestRegistry_LayerOrderedByID(t *testing.T) {
	reg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault error: %v", err)
	}

	topics := reg.Layer(domain.LayerFundamentals)
	for i := 1; i < len(topics); i++ {
		if topics[i].ID <= topics[i-1].ID {
			t.Errorf("layer not ordered: %s before %s", topics[i-1].ID, topics[i].ID)
		}
	}
}
