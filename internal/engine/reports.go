package engine

import (
	"context"
	"sort"
	"time"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/google/uuid"
)

// SkillReport is one tracked skill with its display band.
type SkillReport struct {
	TopicID          string       `json:"topic_id"`
	TopicName        string       `json:"topic_name"`
	Layer            domain.Layer `json:"layer"`
	Rating           float64      `json:"rating"`
	RD               float64      `json:"rd"`
	Volatility       float64      `json:"volatility"`
	TimesEncountered int          `json:"times_encountered"`
	LastPracticedAt  *time.Time   `json:"last_practiced_at,omitempty"`
	Band             domain.Band  `json:"band"`
	Stuck            bool         `json:"stuck"`
}

// UserSkills returns every tracked skill for a user, ordered by topic
// ID, with lazy RD decay applied to the reported values.
func (s *Service) UserSkills(ctx context.Context, userID uuid.UUID) ([]SkillReport, error) {
	skills, err := s.store.ListSkills(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	reports := make([]SkillReport, 0, len(skills))
	for _, sk := range skills {
		rd := sk.RD
		if sk.LastPracticedAt != nil {
			rd = domain.ApplyDecay(rd, now.Sub(*sk.LastPracticedAt).Hours()/24)
		}
		report := SkillReport{
			TopicID:          sk.TopicID,
			Rating:           sk.Rating,
			RD:               rd,
			Volatility:       sk.Volatility,
			TimesEncountered: sk.TimesEncountered,
			LastPracticedAt:  sk.LastPracticedAt,
			Band:             domain.BandFor(sk.Rating),
			Stuck:            sk.IsStuck,
		}
		if topic, ok := s.catalog.Topic(sk.TopicID); ok {
			report.TopicName = topic.Name
			report.Layer = topic.Layer
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].TopicID < reports[j].TopicID })
	return reports, nil
}

// ProgressReport is the per-layer unlock state and gate progress.
type ProgressReport struct {
	UserID uuid.UUID              `json:"user_id"`
	Layers []domain.LayerProgress `json:"layers"`
}

// Progress re-derives the gate criteria for each gated layer and
// overlays the persisted (monotonic) unlock state.
func (s *Service) Progress(ctx context.Context, userID uuid.UUID) (*ProgressReport, error) {
	skills, err := s.skillMap(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocks, err := s.store.Unlocks(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &ProgressReport{UserID: userID}
	now := time.Now()

	// Fundamentals is always open.
	report.Layers = append(report.Layers, domain.LayerProgress{
		Layer:          domain.LayerFundamentals,
		AllCriteriaMet: true,
		Unlocked:       true,
	})

	for _, layer := range []domain.Layer{domain.LayerIntermediate, domain.LayerPatterns} {
		prior, _ := layer.Prior()
		_, priorUnlocked := unlocks[prior]
		if prior == domain.LayerFundamentals {
			priorUnlocked = true
		}

		lp, err := s.gate.Evaluate(layer, domain.GateInput{
			PriorTopics:   s.catalog.Layer(prior),
			Skills:        skills,
			PriorUnlocked: priorUnlocked,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		if at, ok := unlocks[layer]; ok {
			lp.Unlocked = true
			unlockedAt := at
			lp.UnlockedAt = &unlockedAt
		}
		report.Layers = append(report.Layers, lp)
	}
	return report, nil
}

// StuckReport is one stuck or at-risk topic with its criteria breakdown.
type StuckReport struct {
	TopicID    string             `json:"topic_id"`
	TopicName  string             `json:"topic_name"`
	Status     domain.StuckStatus `json:"status"`
	StuckSince *time.Time         `json:"stuck_since,omitempty"`
}

// StuckTopics returns the topics the user is stuck or at risk on,
// ordered stuck-first then by topic ID.
func (s *Service) StuckTopics(ctx context.Context, userID uuid.UUID) ([]StuckReport, error) {
	skills, err := s.store.ListSkills(ctx, userID)
	if err != nil {
		return nil, err
	}

	var reports []StuckReport
	for _, sk := range skills {
		status := s.stuck.Status(sk)
		if !status.Stuck && !status.AtRisk {
			continue
		}
		report := StuckReport{
			TopicID:    sk.TopicID,
			Status:     status,
			StuckSince: sk.StuckSince,
		}
		if topic, ok := s.catalog.Topic(sk.TopicID); ok {
			report.TopicName = topic.Name
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Status.Stuck != reports[j].Status.Stuck {
			return reports[i].Status.Stuck
		}
		return reports[i].TopicID < reports[j].TopicID
	})
	return reports, nil
}

// WeakestPrerequisite walks the prerequisite graph below a topic
// (referenced by ID or slug) and returns the weakest ancestor, or nil
// when the foundation is sound.
func (s *Service) WeakestPrerequisite(ctx context.Context, userID uuid.UUID, topicRef string) (*domain.WeakPrerequisite, error) {
	topic, err := s.catalog.Resolve(topicRef)
	if err != nil {
		return nil, err
	}
	return s.weakestFor(ctx, userID, topic.ID)
}
