package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/attunelabs/attune/internal/engine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SkillRepository implements skill persistence using PostgreSQL.
// Cross-process write serialization comes from routing submissions
// through the queue with a single consumer group; reads are lock-free.
type SkillRepository struct {
	pool *pgxpool.Pool
}

// Ensure SkillRepository implements the engine's store interface
var _ engine.SkillStore = (*SkillRepository)(nil)

// NewSkillRepository creates a new PostgreSQL skill repository.
func NewSkillRepository(pool *pgxpool.Pool) *SkillRepository {
	return &SkillRepository{pool: pool}
}

// GetSkill retrieves one (user, topic) skill record.
func (r *SkillRepository) GetSkill(ctx context.Context, userID uuid.UUID, topicID string) (*domain.Skill, error) {
	query := `
		SELECT user_id, topic_id, rating, rd, volatility, times_encountered,
			last_practiced_at, is_stuck, stuck_since, created_at, updated_at
		FROM skills WHERE user_id = $1 AND topic_id = $2
	`
	skill := &domain.Skill{}
	err := r.pool.QueryRow(ctx, query, userID, topicID).Scan(
		&skill.UserID, &skill.TopicID, &skill.Rating, &skill.RD,
		&skill.Volatility, &skill.TimesEncountered, &skill.LastPracticedAt,
		&skill.IsStuck, &skill.StuckSince, &skill.CreatedAt, &skill.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return skill, nil
}

// ListSkills retrieves every skill record for a user.
func (r *SkillRepository) ListSkills(ctx context.Context, userID uuid.UUID) ([]*domain.Skill, error) {
	query := `
		SELECT user_id, topic_id, rating, rd, volatility, times_encountered,
			last_practiced_at, is_stuck, stuck_since, created_at, updated_at
		FROM skills WHERE user_id = $1 ORDER BY topic_id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var skills []*domain.Skill
	for rows.Next() {
		skill := &domain.Skill{}
		if err := rows.Scan(
			&skill.UserID, &skill.TopicID, &skill.Rating, &skill.RD,
			&skill.Volatility, &skill.TimesEncountered, &skill.LastPracticedAt,
			&skill.IsStuck, &skill.StuckSince, &skill.CreatedAt, &skill.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

// SaveSkill persists a skill record (insert or update).
func (r *SkillRepository) SaveSkill(ctx context.Context, skill *domain.Skill) error {
	query := `
		INSERT INTO skills (user_id, topic_id, rating, rd, volatility,
			times_encountered, last_practiced_at, is_stuck, stuck_since,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, topic_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			rd = EXCLUDED.rd,
			volatility = EXCLUDED.volatility,
			times_encountered = EXCLUDED.times_encountered,
			last_practiced_at = EXCLUDED.last_practiced_at,
			is_stuck = EXCLUDED.is_stuck,
			stuck_since = EXCLUDED.stuck_since,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		skill.UserID, skill.TopicID, skill.Rating, skill.RD, skill.Volatility,
		skill.TimesEncountered, skill.LastPracticedAt, skill.IsStuck,
		skill.StuckSince, skill.CreatedAt, skill.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert skill: %w", err)
	}
	return nil
}

// AddPerformance appends one immutable history entry.
func (r *SkillRepository) AddPerformance(ctx context.Context, perf *domain.Performance) error {
	query := `
		INSERT INTO performances (id, user_id, topic_id, submission_id, score,
			error_type, rating_before, rating_after, rd_before, rd_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var errorType *string
	if perf.ErrorType != nil {
		s := string(*perf.ErrorType)
		errorType = &s
	}
	_, err := r.pool.Exec(ctx, query,
		perf.ID, perf.UserID, perf.TopicID, perf.SubmissionID, perf.Score,
		errorType, perf.RatingBefore, perf.RatingAfter, perf.RDBefore,
		perf.RDAfter, perf.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert performance: %w", err)
	}
	return nil
}

// RecentPerformances returns up to limit entries, most recent first.
func (r *SkillRepository) RecentPerformances(ctx context.Context, userID uuid.UUID, topicID string, limit int) ([]domain.Performance, error) {
	query := `
		SELECT id, user_id, topic_id, submission_id, score, error_type,
			rating_before, rating_after, rd_before, rd_after, created_at
		FROM performances
		WHERE user_id = $1 AND topic_id = $2
		ORDER BY created_at DESC LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("list performances: %w", err)
	}
	defer rows.Close()

	var perfs []domain.Performance
	for rows.Next() {
		var p domain.Performance
		var errorType *string
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.TopicID, &p.SubmissionID, &p.Score,
			&errorType, &p.RatingBefore, &p.RatingAfter, &p.RDBefore,
			&p.RDAfter, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		if errorType != nil {
			et := domain.ErrorType(*errorType)
			p.ErrorType = &et
		}
		perfs = append(perfs, p)
	}
	return perfs, rows.Err()
}

// Unlocks returns the persisted layer unlocks for a user.
func (r *SkillRepository) Unlocks(ctx context.Context, userID uuid.UUID) (map[domain.Layer]time.Time, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT layer, unlocked_at FROM layer_unlocks WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	unlocks := make(map[domain.Layer]time.Time)
	for rows.Next() {
		var layer string
		var at time.Time
		if err := rows.Scan(&layer, &at); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		unlocks[domain.Layer(layer)] = at
	}
	return unlocks, rows.Err()
}

// Unlock records a layer unlock, keeping the original timestamp on
// conflict.
func (r *SkillRepository) Unlock(ctx context.Context, userID uuid.UUID, layer domain.Layer, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO layer_unlocks (user_id, layer, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, layer) DO NOTHING`,
		userID, string(layer), at)
	if err != nil {
		return fmt.Errorf("insert unlock: %w", err)
	}
	return nil
}
