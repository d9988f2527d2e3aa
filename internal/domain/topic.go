package domain

// Layer is a content tier in the topic catalog. Harder layers unlock
// only after the prior layer's mastery criteria are met.
type Layer string

const (
	LayerFundamentals Layer = "fundamentals"
	LayerIntermediate Layer = "intermediate"
	LayerPatterns     Layer = "patterns"
)

// Prior returns the layer whose mastery gates this one.
// Fundamentals has no prior layer and is always available.
func (l Layer) Prior() (Layer, bool) {
	switch l {
	case LayerIntermediate:
		return LayerFundamentals, true
	case LayerPatterns:
		return LayerIntermediate, true
	default:
		return "", false
	}
}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerFundamentals, LayerIntermediate, LayerPatterns:
		return true
	}
	return false
}

// Topic is an atomic skill unit in the immutable seed catalog.
// Prerequisites reference other topic IDs and form a DAG, though
// traversal never assumes acyclicity (see PrerequisiteAnalyzer).
type Topic struct {
	ID            string
	Slug          string
	Name          string
	Layer         Layer
	Category      string
	Prerequisites []string
}

// TopicGraph resolves topic IDs to topics. The catalog implements it;
// tests substitute small fixed graphs.
type TopicGraph interface {
	Topic(id string) (*Topic, bool)
}
