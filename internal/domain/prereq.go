package domain

import "sort"

// WeakSeverity grades how badly an ancestor skill explains a failure.
type WeakSeverity string

const (
	SeverityCritical WeakSeverity = "critical"
	SeverityModerate WeakSeverity = "moderate"
	SeverityMild     WeakSeverity = "mild"
)

// severityRank orders severities for selection; higher wins.
var severityRank = map[WeakSeverity]int{
	SeverityCritical: 3,
	SeverityModerate: 2,
	SeverityMild:     1,
}

// Weakness-assessment thresholds, tabled per boundary.
var weaknessThresholds = struct {
	criticalMaxRating   float64
	criticalMinAttempts int
	moderateMaxRating   float64
	mildMinRD           float64
	mildMaxAttempts     int
}{
	criticalMaxRating:   1400,
	criticalMinAttempts: 2,
	moderateMaxRating:   1500,
	mildMinRD:           200,
	mildMaxAttempts:     3,
}

// WeakPrerequisite identifies the upstream knowledge gap that best
// explains a failure on a downstream topic.
type WeakPrerequisite struct {
	TopicID   string
	Slug      string
	Name      string
	Severity  WeakSeverity
	Reason    string
	Rating    float64
	Depth     int
	HasRecord bool
}

// DefaultPrereqDepth bounds how far up the graph the analyzer walks.
const DefaultPrereqDepth = 5

// PrerequisiteAnalyzer walks a topic's prerequisite graph looking for
// the single weakest ancestor skill.
type PrerequisiteAnalyzer struct {
	maxDepth int
}

// NewPrerequisiteAnalyzer creates an analyzer with the default depth
// bound.
func NewPrerequisiteAnalyzer() *PrerequisiteAnalyzer {
	return &PrerequisiteAnalyzer{maxDepth: DefaultPrereqDepth}
}

// NewPrerequisiteAnalyzerWithDepth creates an analyzer with a custom
// depth bound.
func NewPrerequisiteAnalyzerWithDepth(maxDepth int) *PrerequisiteAnalyzer {
	if maxDepth <= 0 {
		maxDepth = DefaultPrereqDepth
	}
	return &PrerequisiteAnalyzer{maxDepth: maxDepth}
}

// FindWeakest walks prerequisite edges from the target topic and
// returns the weakest ancestor, or nil when no ancestor is weak —
// signaling the caller to focus coaching on the target itself.
//
// Traversal is depth-first with an explicit visited set: a revisited
// node is treated as a leaf and never re-expanded, so diamonds and
// accidental cycles in the data terminate. Prerequisite edges are
// walked in sorted order, making the equal-severity equal-rating
// tie-break deterministic (first encountered wins).
func (a *PrerequisiteAnalyzer) FindWeakest(skills map[string]*Skill, graph TopicGraph, targetTopicID string) *WeakPrerequisite {
	target, ok := graph.Topic(targetTopicID)
	if !ok {
		return nil
	}

	visited := map[string]bool{targetTopicID: true}
	var weakest *WeakPrerequisite

	type frame struct {
		topicID string
		depth   int
	}
	stack := make([]frame, 0, len(target.Prerequisites))
	for _, id := range sortedCopy(target.Prerequisites) {
		stack = append(stack, frame{topicID: id, depth: 1})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[f.topicID] || f.depth > a.maxDepth {
			continue
		}
		visited[f.topicID] = true

		topic, ok := graph.Topic(f.topicID)
		if !ok {
			continue
		}

		if w := assessWeakness(topic, skills[f.topicID], f.depth); w != nil {
			weakest = pickWeaker(weakest, w)
		}

		if f.depth < a.maxDepth {
			// Push in reverse so sorted order pops first.
			prereqs := sortedCopy(topic.Prerequisites)
			for i := len(prereqs) - 1; i >= 0; i-- {
				if !visited[prereqs[i]] {
					stack = append(stack, frame{topicID: prereqs[i], depth: f.depth + 1})
				}
			}
		}
	}

	return weakest
}

// assessWeakness applies the ordered weakness table to one ancestor.
func assessWeakness(topic *Topic, skill *Skill, depth int) *WeakPrerequisite {
	t := weaknessThresholds
	w := &WeakPrerequisite{
		TopicID: topic.ID,
		Slug:    topic.Slug,
		Name:    topic.Name,
		Depth:   depth,
	}

	if skill == nil {
		w.Severity = SeverityModerate
		w.Reason = "never practiced"
		w.Rating = RatingDefault
		return w
	}

	w.HasRecord = true
	w.Rating = skill.Rating

	switch {
	case skill.Rating < t.criticalMaxRating && skill.TimesEncountered >= t.criticalMinAttempts:
		w.Severity = SeverityCritical
		w.Reason = "struggling"
	case skill.Rating >= t.criticalMaxRating && skill.Rating < t.moderateMaxRating:
		w.Severity = SeverityModerate
		w.Reason = "weak foundation"
	case skill.RD > t.mildMinRD && skill.TimesEncountered < t.mildMaxAttempts:
		w.Severity = SeverityMild
		w.Reason = "limited practice"
	default:
		return nil
	}
	return w
}

// pickWeaker keeps the higher-severity candidate; ties break toward the
// lower rating — the more fundamental gap.
func pickWeaker(current, candidate *WeakPrerequisite) *WeakPrerequisite {
	if current == nil {
		return candidate
	}
	switch {
	case severityRank[candidate.Severity] > severityRank[current.Severity]:
		return candidate
	case severityRank[candidate.Severity] == severityRank[current.Severity] && candidate.Rating < current.Rating:
		return candidate
	}
	return current
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
