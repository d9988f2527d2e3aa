package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attunelabs/attune/internal/engine"
)

// Producer publishes submission jobs and skill-change events.
type Producer struct {
	conn *Connection
}

// Ensure Producer implements the engine's event publisher
var _ engine.EventPublisher = (*Producer)(nil)

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishSubmission enqueues a submission for asynchronous rating.
func (p *Producer) PublishSubmission(ctx context.Context, job *SubmissionJob) error {
	if err := p.conn.PublishJSON(ctx, SubmissionQueueName, job); err != nil {
		return fmt.Errorf("failed to publish submission: %w", err)
	}

	slog.Info("published submission",
		"submission_id", job.ID,
		"user_id", job.UserID,
		"detections", len(job.Detections),
	)

	return nil
}

// PublishSkillChange emits one skill-change event.
func (p *Producer) PublishSkillChange(ctx context.Context, event engine.SkillChangeEvent) error {
	if err := p.conn.PublishJSON(ctx, SkillChangeQueueName, event); err != nil {
		return fmt.Errorf("failed to publish skill change: %w", err)
	}

	slog.Debug("published skill change",
		"submission_id", event.SubmissionID,
		"topic_id", event.TopicID,
		"rating_change", event.RatingChange,
	)

	return nil
}
