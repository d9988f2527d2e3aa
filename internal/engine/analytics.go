package engine

import (
	"context"
	"time"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/google/uuid"
)

// Overview is the aggregate analytics snapshot for one user.
type Overview struct {
	UserID           uuid.UUID                `json:"user_id"`
	TotalTopics      int                      `json:"total_topics"`
	PracticedTopics  int                      `json:"practiced_topics"`
	TotalSubmissions int                      `json:"total_submissions"`
	AvgRating        float64                  `json:"avg_rating"`
	AvgRD            float64                  `json:"avg_rd"`
	StuckCount       int                      `json:"stuck_count"`
	AtRiskCount      int                      `json:"at_risk_count"`
	BandCounts       map[string]int           `json:"band_counts"`
	LayerCoverage    map[domain.Layer]float64 `json:"layer_coverage"`
	StrongestTopic   string                   `json:"strongest_topic,omitempty"`
	WeakestTopic     string                   `json:"weakest_topic,omitempty"`
	LastPracticedAt  *time.Time               `json:"last_practiced_at,omitempty"`
}

// Overview aggregates the user's skills into one snapshot. Averages are
// confidence-weighted by 1/rd, matching the gate's aggregation.
func (s *Service) Overview(ctx context.Context, userID uuid.UUID) (*Overview, error) {
	skills, err := s.store.ListSkills(ctx, userID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		UserID:        userID,
		TotalTopics:   len(s.catalog.All()),
		BandCounts:    make(map[string]int),
		LayerCoverage: make(map[domain.Layer]float64),
	}

	practicedByLayer := make(map[domain.Layer]int)
	var weightSum, ratingSum, rdSum float64
	var strongest, weakest *domain.Skill

	for _, sk := range skills {
		if sk.TimesEncountered == 0 {
			continue
		}
		ov.PracticedTopics++
		ov.TotalSubmissions += sk.TimesEncountered

		weight := 1 / sk.RD
		weightSum += weight
		ratingSum += sk.Rating * weight
		rdSum += sk.RD * weight

		ov.BandCounts[domain.BandFor(sk.Rating).Name]++

		status := s.stuck.Status(sk)
		if status.Stuck {
			ov.StuckCount++
		} else if status.AtRisk {
			ov.AtRiskCount++
		}

		if topic, ok := s.catalog.Topic(sk.TopicID); ok {
			practicedByLayer[topic.Layer]++
		}
		if strongest == nil || sk.Rating > strongest.Rating {
			strongest = sk
		}
		if weakest == nil || sk.Rating < weakest.Rating {
			weakest = sk
		}
		if sk.LastPracticedAt != nil && (ov.LastPracticedAt == nil || sk.LastPracticedAt.After(*ov.LastPracticedAt)) {
			ov.LastPracticedAt = sk.LastPracticedAt
		}
	}

	if weightSum > 0 {
		ov.AvgRating = ratingSum / weightSum
		ov.AvgRD = rdSum / weightSum
	}
	if strongest != nil {
		ov.StrongestTopic = strongest.TopicID
	}
	if weakest != nil {
		ov.WeakestTopic = weakest.TopicID
	}

	for _, layer := range []domain.Layer{domain.LayerFundamentals, domain.LayerIntermediate, domain.LayerPatterns} {
		total := len(s.catalog.Layer(layer))
		if total == 0 {
			continue
		}
		ov.LayerCoverage[layer] = float64(practicedByLayer[layer]) / float64(total)
	}

	return ov, nil
}
