package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// SubmissionRepository keeps an audit log of raw submission payloads as
// they arrive off the queue.
type SubmissionRepository struct {
	db *sql.DB
}

// NewSubmissionRepository creates a submission audit repository.
func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Log records a raw submission payload. A nil payload stores SQL NULL.
func (r *SubmissionRepository) Log(ctx context.Context, id, userID uuid.UUID, payload []byte, receivedAt time.Time) error {
	var raw pqtype.NullRawMessage
	if payload != nil {
		raw = pqtype.NullRawMessage{RawMessage: payload, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO submissions (id, user_id, payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		id, userID, raw, receivedAt)
	if err != nil {
		return fmt.Errorf("log submission: %w", err)
	}
	return nil
}

// Payload fetches a logged submission payload by ID.
func (r *SubmissionRepository) Payload(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var raw pqtype.NullRawMessage
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM submissions WHERE id = $1", id).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("get submission payload: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	return raw.RawMessage, nil
}
