package engine

import (
	"context"
	"time"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/google/uuid"
)

// SkillService defines the engine operations used by the daemon handlers
// and the MCP surface.
type SkillService interface {
	// ProcessSubmission runs one submission through the rating pipeline
	ProcessSubmission(ctx context.Context, sub Submission) (*SubmissionResult, error)

	// UserSkills returns every tracked skill for a user with display bands
	UserSkills(ctx context.Context, userID uuid.UUID) ([]SkillReport, error)

	// Progress returns the per-layer unlock progress for a user
	Progress(ctx context.Context, userID uuid.UUID) (*ProgressReport, error)

	// StuckTopics returns the topics a user is stuck or at risk on
	StuckTopics(ctx context.Context, userID uuid.UUID) ([]StuckReport, error)

	// WeakestPrerequisite walks the prerequisite graph below a topic
	WeakestPrerequisite(ctx context.Context, userID uuid.UUID, topicRef string) (*domain.WeakPrerequisite, error)

	// Overview returns aggregate analytics for a user
	Overview(ctx context.Context, userID uuid.UUID) (*Overview, error)
}

// Ensure Service implements SkillService
var _ SkillService = (*Service)(nil)

// SkillStore defines the persistence interface for skills, performance
// history and layer unlocks. Both the SQLite store and the Postgres
// repository implement this.
type SkillStore interface {
	GetSkill(ctx context.Context, userID uuid.UUID, topicID string) (*domain.Skill, error)
	ListSkills(ctx context.Context, userID uuid.UUID) ([]*domain.Skill, error)
	SaveSkill(ctx context.Context, skill *domain.Skill) error
	AddPerformance(ctx context.Context, perf *domain.Performance) error
	RecentPerformances(ctx context.Context, userID uuid.UUID, topicID string, limit int) ([]domain.Performance, error)
	Unlocks(ctx context.Context, userID uuid.UUID) (map[domain.Layer]time.Time, error)
	Unlock(ctx context.Context, userID uuid.UUID, layer domain.Layer, at time.Time) error
}

// TopicCatalog is the read-only topic registry the engine navigates.
type TopicCatalog interface {
	domain.TopicGraph
	Resolve(ref string) (*domain.Topic, error)
	Layer(layer domain.Layer) []domain.Topic
	All() []domain.Topic
}

// EventPublisher emits skill-change events after a submission is
// processed. A nil publisher disables eventing.
type EventPublisher interface {
	PublishSkillChange(ctx context.Context, event SkillChangeEvent) error
}

// SkillChangeEvent is the event emitted for each rated topic.
type SkillChangeEvent struct {
	SubmissionID uuid.UUID         `json:"submission_id"`
	UserID       uuid.UUID         `json:"user_id"`
	TopicID      string            `json:"topic_id"`
	Score        float64           `json:"score"`
	ErrorType    *domain.ErrorType `json:"error_type,omitempty"`
	Rating       float64           `json:"rating"`
	RatingChange float64           `json:"rating_change"`
	RD           float64           `json:"rd"`
	Stuck        bool              `json:"stuck"`
	OccurredAt   time.Time         `json:"occurred_at"`
}
