package domain

import (
	"math"
	"testing"
	"time"
)

func gateTopics(n int) []Topic {
	topics := make([]Topic, n)
	for i := range topics {
		topics[i] = Topic{ID: string(rune('a' + i)), Layer: LayerFundamentals}
	}
	return topics
}

// masteredSkills builds skills that satisfy the INTERMEDIATE gate.
func masteredSkills(topics []Topic, now time.Time) map[string]*Skill {
	skills := make(map[string]*Skill, len(topics))
	practiced := now.Add(-24 * time.Hour)
	for _, topic := range topics {
		s := skillWith(1700, 80, 2)
		s.TopicID = topic.ID
		s.LastPracticedAt = &practiced
		skills[topic.ID] = s
	}
	return skills
}

func TestProgressionGate_AllCriteriaMet(t *testing.T) {
	g := NewProgressionGate()
	now := time.Now()

	topics := gateTopics(10)
	lp, err := g.Evaluate(LayerIntermediate, GateInput{
		PriorTopics: topics,
		Skills:      masteredSkills(topics, now),
		Now:         now,
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	if !lp.AllCriteriaMet {
		t.Errorf("AllCriteriaMet = false; want true: %+v", lp)
	}
	if lp.OverallProgress < 0.99 {
		t.Errorf("OverallProgress = %.2f; want ~1.0", lp.OverallProgress)
	}
}

func TestProgressionGate_CoverageCriterion(t *testing.T) {
	g := NewProgressionGate()
	now := time.Now()

	// 8 of 10 attempted is below the 90% requirement.
	topics := gateTopics(10)
	skills := masteredSkills(topics[:8], now)

	lp, err := g.Evaluate(LayerIntermediate, GateInput{
		PriorTopics: topics,
		Skills:      skills,
		Now:         now,
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	if lp.Coverage.Met {
		t.Errorf("Coverage.Met = true at %.0f%%; want false", lp.Coverage.Current*100)
	}
	if lp.AllCriteriaMet {
		t.Error("AllCriteriaMet = true; want false with coverage unmet")
	}
	if math.Abs(lp.Coverage.Current-0.8) > 1e-9 {
		t.Errorf("Coverage.Current = %.2f; want 0.80", lp.Coverage.Current)
	}
}

func TestProgressionGate_ConfidenceWeightedMean(t *testing.T) {
	g := NewProgressionGate()
	now := time.Now()
	practiced := now.Add(-24 * time.Hour)

	// Two topics: a confident 1700 (rd 50) and an uncertain 1200
	// (rd 350). The 1/rd weighting pulls the mean toward the
	// confident rating: (1700/50 + 1200/350) / (1/50 + 1/350).
	topics := gateTopics(2)
	confident := skillWith(1700, 50, 10)
	confident.LastPracticedAt = &practiced
	uncertain := skillWith(1200, 350, 10)
	uncertain.LastPracticedAt = &practiced
	skills := map[string]*Skill{"a": confident, "b": uncertain}

	lp, err := g.Evaluate(LayerIntermediate, GateInput{
		PriorTopics: topics,
		Skills:      skills,
		Now:         now,
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	wantRating := (1700.0/50 + 1200.0/350) / (1.0/50 + 1.0/350)
	if math.Abs(lp.AvgRating.Current-wantRating) > 1e-6 {
		t.Errorf("AvgRating.Current = %.4f; want %.4f", lp.AvgRating.Current, wantRating)
	}

	wantRD := (50.0/50 + 350.0/350) / (1.0/50 + 1.0/350)
	if math.Abs(lp.AvgRD.Current-wantRD) > 1e-6 {
		t.Errorf("AvgRD.Current = %.4f; want %.4f", lp.AvgRD.Current, wantRD)
	}
}

func TestProgressionGate_RecencyCriterion(t *testing.T) {
	g := NewProgressionGate()
	now := time.Now()

	topics := gateTopics(10)
	skills := masteredSkills(topics, now)

	// Push every last-practiced timestamp past the 30 day window.
	stale := now.Add(-45 * 24 * time.Hour)
	for _, s := range skills {
		s.LastPracticedAt = &stale
	}

	lp, err := g.Evaluate(LayerIntermediate, GateInput{
		PriorTopics: topics,
		Skills:      skills,
		Now:         now,
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	if lp.Recency.Met {
		t.Errorf("Recency.Met = true at %.0f days; want false", lp.Recency.Current)
	}
	if lp.AllCriteriaMet {
		t.Error("AllCriteriaMet = true; want false with stale review")
	}
}

func TestProgressionGate_PatternsRequiresIntermediateUnlocked(t *testing.T) {
	g := NewProgressionGate()
	now := time.Now()

	// Skills that clear even the stricter PATTERNS thresholds.
	topics := gateTopics(10)
	practiced := now.Add(-24 * time.Hour)
	skills := make(map[string]*Skill, len(topics))
	for _, topic := range topics {
		s := skillWith(1760, 60, 3)
		s.TopicID = topic.ID
		s.LastPracticedAt = &practiced
		skills[topic.ID] = s
	}

	in := GateInput{PriorTopics: topics, Skills: skills, Now: now}

	lp, err := g.Evaluate(LayerPatterns, in)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if lp.AllCriteriaMet {
		t.Error("AllCriteriaMet = true with INTERMEDIATE locked; want false")
	}

	in.PriorUnlocked = true
	lp, err = g.Evaluate(LayerPatterns, in)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !lp.AllCriteriaMet {
		t.Errorf("AllCriteriaMet = false with INTERMEDIATE unlocked; want true: %+v", lp)
	}
}

func TestProgressionGate_UnknownLayer(t *testing.T) {
	g := NewProgressionGate()

	if _, err := g.Evaluate(LayerFundamentals, GateInput{}); err != ErrUnknownLayer {
		t.Errorf("Evaluate error = %v; want ErrUnknownLayer", err)
	}
}

func TestProgressionGate_EmptyLayerNeverUnlocks(t *testing.T) {
	g := NewProgressionGate()

	lp, err := g.Evaluate(LayerIntermediate, GateInput{Now: time.Now()})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if lp.AllCriteriaMet {
		t.Error("AllCriteriaMet = true for an empty prior layer; want false")
	}
}
