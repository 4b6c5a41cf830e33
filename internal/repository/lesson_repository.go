package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// LessonRepository persists lessons and the participants of their source class or request.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

func (r *LessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores lessons.
func (r *LessonRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson) error {
	if len(lessons) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO lessons (id, source_id, owner_id, created_at) VALUES (:id, :source_id, :owner_id, :created_at)`
	for i := range lessons {
		lesson := &lessons[i]
		if lesson.ID == "" {
			lesson.ID = uuid.NewString()
		}
		if lesson.CreatedAt.IsZero() {
			lesson.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, lesson); err != nil {
			return fmt.Errorf("insert lesson: %w", err)
		}
	}
	return nil
}

// FindByID returns a live lesson.
func (r *LessonRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	const query = `SELECT id, source_id, owner_id, created_at, deleted_at FROM lessons WHERE id = $1 AND deleted_at IS NULL`
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// SoftDelete removes a live lesson.
func (r *LessonRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE lessons SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("lesson rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddParticipants records learner-side profiles (students, parents) of a source.
func (r *LessonRepository) AddParticipants(ctx context.Context, exec sqlx.ExtContext, sourceID string, participantIDs []string) error {
	if len(participantIDs) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	const query = `INSERT INTO source_participants (source_id, participant_id, created_at) VALUES ($1, $2, $3)
ON CONFLICT (source_id, participant_id) DO NOTHING`
	for _, id := range participantIDs {
		if _, err := target.ExecContext(ctx, query, sourceID, id, now); err != nil {
			return fmt.Errorf("add source participant: %w", err)
		}
	}
	return nil
}

// IsParticipant reports whether profileID stands on the learner side of sourceID.
func (r *LessonRepository) IsParticipant(ctx context.Context, exec sqlx.ExtContext, sourceID, profileID string) (bool, error) {
	const query = `SELECT 1 FROM source_participants WHERE source_id = $1 AND participant_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, sourceID, profileID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check source participant: %w", err)
	}
	return true, nil
}

// ListParticipants returns learner-side profiles of a source.
func (r *LessonRepository) ListParticipants(ctx context.Context, exec sqlx.ExtContext, sourceID string) ([]string, error) {
	const query = `SELECT participant_id FROM source_participants WHERE source_id = $1 ORDER BY participant_id ASC`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, sourceID); err != nil {
		return nil, fmt.Errorf("list source participants: %w", err)
	}
	return ids, nil
}
