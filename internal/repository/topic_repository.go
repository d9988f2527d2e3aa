package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/lib/pq"
)

// TopicRepository mirrors the embedded topic catalog into Postgres so
// reporting queries can join against topic metadata.
type TopicRepository struct {
	db *sql.DB
}

// NewTopicRepository creates a topic repository over a database/sql
// connection.
func NewTopicRepository(db *sql.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// Sync upserts the catalog topics. Rows for topics removed from the
// catalog are left in place so old performance history keeps its join.
func (r *TopicRepository) Sync(ctx context.Context, topics []domain.Topic) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO topics (id, slug, name, layer, category, prerequisites)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			layer = EXCLUDED.layer,
			category = EXCLUDED.category,
			prerequisites = EXCLUDED.prerequisites`)
	if err != nil {
		return fmt.Errorf("prepare topic upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range topics {
		if _, err := stmt.ExecContext(ctx, t.ID, t.Slug, t.Name,
			string(t.Layer), t.Category, pq.Array(t.Prerequisites)); err != nil {
			return fmt.Errorf("upsert topic %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// List returns all topics from the database, prerequisites included.
func (r *TopicRepository) List(ctx context.Context) ([]domain.Topic, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, slug, name, layer, category, prerequisites FROM topics ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var t domain.Topic
		var layer string
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &layer, &t.Category,
			pq.Array(&t.Prerequisites)); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.Layer = domain.Layer(layer)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
