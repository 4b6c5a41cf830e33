package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

const scheduleEntryColumns = `id, owner_id, start_at, end_at, kind, lesson_ref, block_ref, created_at, updated_at, deleted_at`

// ScheduleEntryRepository persists booked calendar intervals.
type ScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewScheduleEntryRepository constructs the repository.
func NewScheduleEntryRepository(db *sqlx.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

func (r *ScheduleEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores entries in order. IDs and timestamps are filled in when missing.
func (r *ScheduleEntryRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO schedule_entries (id, owner_id, start_at, end_at, kind, lesson_ref, block_ref, created_at, updated_at)
VALUES (:id, :owner_id, :start_at, :end_at, :kind, :lesson_ref, :block_ref, :created_at, :updated_at)`

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.UpdatedAt = entry.CreatedAt
		entry.StartAt = entry.StartAt.UTC()
		entry.EndAt = entry.EndAt.UTC()
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}
	return nil
}

// ListOverlapping returns the owner's live entries intersecting interval, ordered by start.
func (r *ScheduleEntryRepository) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval) ([]models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleEntryColumns + ` FROM schedule_entries
WHERE owner_id = $1 AND deleted_at IS NULL AND start_at < $3 AND end_at > $2
ORDER BY start_at ASC, id ASC`
	var entries []models.ScheduleEntry
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query, ownerID, interval.Start.UTC(), interval.End.UTC()); err != nil {
		return nil, fmt.Errorf("list overlapping schedule entries: %w", err)
	}
	return entries, nil
}

// FindByID returns a live entry.
func (r *ScheduleEntryRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleEntryColumns + ` FROM schedule_entries WHERE id = $1 AND deleted_at IS NULL`
	var entry models.ScheduleEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindActiveByLesson returns the live entry backing a lesson.
func (r *ScheduleEntryRepository) FindActiveByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) (*models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleEntryColumns + ` FROM schedule_entries WHERE lesson_ref = $1 AND deleted_at IS NULL LIMIT 1`
	var entry models.ScheduleEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, lessonID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateInterval moves a live entry.
func (r *ScheduleEntryRepository) UpdateInterval(ctx context.Context, exec sqlx.ExtContext, id string, interval models.Interval) error {
	const query = `UPDATE schedule_entries SET start_at = $1, end_at = $2, updated_at = $3 WHERE id = $4 AND deleted_at IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, interval.Start.UTC(), interval.End.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update schedule entry interval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule entry interval rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete removes entries by id and reports how many were live.
func (r *ScheduleEntryRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE schedule_entries SET deleted_at = $1, updated_at = $1 WHERE id = ANY($2) AND deleted_at IS NULL`
	return r.softDelete(ctx, exec, query, pq.Array(ids))
}

// SoftDeleteByBlock removes every live entry a block produced.
func (r *ScheduleEntryRepository) SoftDeleteByBlock(ctx context.Context, exec sqlx.ExtContext, blockID string) (int64, error) {
	const query = `UPDATE schedule_entries SET deleted_at = $1, updated_at = $1 WHERE block_ref = $2 AND deleted_at IS NULL`
	return r.softDelete(ctx, exec, query, blockID)
}

// SoftDeleteByLesson removes the live entry backing a lesson.
func (r *ScheduleEntryRepository) SoftDeleteByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) (int64, error) {
	const query = `UPDATE schedule_entries SET deleted_at = $1, updated_at = $1 WHERE lesson_ref = $2 AND deleted_at IS NULL`
	return r.softDelete(ctx, exec, query, lessonID)
}

func (r *ScheduleEntryRepository) softDelete(ctx context.Context, exec sqlx.ExtContext, query string, arg interface{}) (int64, error) {
	result, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), arg)
	if err != nil {
		return 0, fmt.Errorf("soft delete schedule entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("schedule entry rows affected: %w", err)
	}
	return affected, nil
}
