package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/attunelabs/attune/internal/engine"
	"github.com/google/uuid"
)

// SkillStore implements skill persistence backed by SQLite.
type SkillStore struct {
	db *DB
}

// Ensure SkillStore implements the engine's store interface
var _ engine.SkillStore = (*SkillStore)(nil)

// NewSkillStore creates a new SQLite-backed skill store.
func NewSkillStore(db *DB) *SkillStore {
	return &SkillStore{db: db}
}

// GetSkill retrieves one (user, topic) skill record.
func (s *SkillStore) GetSkill(ctx context.Context, userID uuid.UUID, topicID string) (*domain.Skill, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, topic_id, rating, rd, volatility, times_encountered,
			last_practiced_at, is_stuck, stuck_since, created_at, updated_at
		FROM skills WHERE user_id = ? AND topic_id = ?`,
		userID.String(), topicID)

	skill, err := scanSkill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return skill, nil
}

// ListSkills retrieves every skill record for a user.
func (s *SkillStore) ListSkills(ctx context.Context, userID uuid.UUID) ([]*domain.Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, topic_id, rating, rd, volatility, times_encountered,
			last_practiced_at, is_stuck, stuck_since, created_at, updated_at
		FROM skills WHERE user_id = ? ORDER BY topic_id`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var skills []*domain.Skill
	for rows.Next() {
		skill, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

// SaveSkill persists a skill record (insert or update).
func (s *SkillStore) SaveSkill(ctx context.Context, skill *domain.Skill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (user_id, topic_id, rating, rd, volatility,
			times_encountered, last_practiced_at, is_stuck, stuck_since,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, topic_id) DO UPDATE SET
			rating=excluded.rating,
			rd=excluded.rd,
			volatility=excluded.volatility,
			times_encountered=excluded.times_encountered,
			last_practiced_at=excluded.last_practiced_at,
			is_stuck=excluded.is_stuck,
			stuck_since=excluded.stuck_since,
			updated_at=excluded.updated_at`,
		skill.UserID.String(), skill.TopicID, skill.Rating, skill.RD,
		skill.Volatility, skill.TimesEncountered, nullTime(skill.LastPracticedAt),
		skill.IsStuck, nullTime(skill.StuckSince), skill.CreatedAt, skill.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert skill: %w", err)
	}
	return nil
}

// AddPerformance appends one immutable history entry.
func (s *SkillStore) AddPerformance(ctx context.Context, perf *domain.Performance) error {
	var errorType sql.NullString
	if perf.ErrorType != nil {
		errorType = sql.NullString{String: string(*perf.ErrorType), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performances (id, user_id, topic_id, submission_id, score,
			error_type, rating_before, rating_after, rd_before, rd_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		perf.ID.String(), perf.UserID.String(), perf.TopicID,
		perf.SubmissionID.String(), perf.Score, errorType,
		perf.RatingBefore, perf.RatingAfter, perf.RDBefore, perf.RDAfter,
		perf.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert performance: %w", err)
	}
	return nil
}

// RecentPerformances returns up to limit entries, most recent first.
func (s *SkillStore) RecentPerformances(ctx context.Context, userID uuid.UUID, topicID string, limit int) ([]domain.Performance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, topic_id, submission_id, score, error_type,
			rating_before, rating_after, rd_before, rd_after, created_at
		FROM performances
		WHERE user_id = ? AND topic_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		userID.String(), topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("list performances: %w", err)
	}
	defer rows.Close()

	var perfs []domain.Performance
	for rows.Next() {
		var (
			p          domain.Performance
			id, user   string
			submission string
			errorType  sql.NullString
		)
		if err := rows.Scan(&id, &user, &p.TopicID, &submission, &p.Score,
			&errorType, &p.RatingBefore, &p.RatingAfter, &p.RDBefore,
			&p.RDAfter, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		if p.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse performance id: %w", err)
		}
		if p.UserID, err = uuid.Parse(user); err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		if p.SubmissionID, err = uuid.Parse(submission); err != nil {
			return nil, fmt.Errorf("parse submission id: %w", err)
		}
		if errorType.Valid {
			et := domain.ErrorType(errorType.String)
			p.ErrorType = &et
		}
		perfs = append(perfs, p)
	}
	return perfs, rows.Err()
}

// Unlocks returns the persisted layer unlocks for a user.
func (s *SkillStore) Unlocks(ctx context.Context, userID uuid.UUID) (map[domain.Layer]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT layer, unlocked_at FROM layer_unlocks WHERE user_id = ?",
		userID.String())
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

// Unlock records a layer unlock. Unlocks are monotonic: re-recording
// keeps the original timestamp.
func (s *SkillStore) Unlock(ctx context.Context, userID uuid.UUID, layer domain.Layer, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO layer_unlocks (user_id, layer, unlocked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, layer) DO NOTHING`,
		userID.String(), string(layer), at)
	if err != nil {
		return fmt.Errorf("insert unlock: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanSkill.
type scanner interface {
	Scan(dest ...any) error
}

func scanSkill(row scanner) (*domain.Skill, error) {
	var (
		skill         domain.Skill
		user          string
		lastPracticed sql.NullTime
		stuckSince    sql.NullTime
	)
	err := row.Scan(&user, &skill.TopicID, &skill.Rating, &skill.RD,
		&skill.Volatility, &skill.TimesEncountered, &lastPracticed,
		&skill.IsStuck, &stuckSince, &skill.CreatedAt, &skill.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if skill.UserID, err = uuid.Parse(user); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if lastPracticed.Valid {
		t := lastPracticed.Time
		skill.LastPracticedAt = &t
	}
	if stuckSince.Valid {
		t := stuckSince.Time
		skill.StuckSince = &t
	}
	return &skill, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
