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

const availabilityBlockColumns = `id, owner_id, title, notes, start_at, end_at, days_of_week, start_time, end_time, horizon_date, created_at, updated_at, deleted_at`

// AvailabilityBlockRepository persists tutor free-time blocks.
type AvailabilityBlockRepository struct {
	db *sqlx.DB
}

// NewAvailabilityBlockRepository constructs the repository.
func NewAvailabilityBlockRepository(db *sqlx.DB) *AvailabilityBlockRepository {
	return &AvailabilityBlockRepository{db: db}
}

func (r *AvailabilityBlockRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a block.
func (r *AvailabilityBlockRepository) Create(ctx context.Context, exec sqlx.ExtContext, block *models.AvailabilityBlock) error {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = block.CreatedAt

	const query = `
INSERT INTO availability_blocks (id, owner_id, title, notes, start_at, end_at, days_of_week, start_time, end_time, horizon_date, created_at, updated_at)
VALUES (:id, :owner_id, :title, :notes, :start_at, :end_at, :days_of_week, :start_time, :end_time, :horizon_date, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, block); err != nil {
		return fmt.Errorf("create availability block: %w", err)
	}
	return nil
}

// FindOwned returns a live block belonging to ownerID.
func (r *AvailabilityBlockRepository) FindOwned(ctx context.Context, exec sqlx.ExtContext, id, ownerID string) (*models.AvailabilityBlock, error) {
	const query = `SELECT ` + availabilityBlockColumns + ` FROM availability_blocks WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`
	var block models.AvailabilityBlock
	if err := sqlx.GetContext(ctx, r.exec(exec), &block, query, id, ownerID); err != nil {
		return nil, err
	}
	return &block, nil
}

// UpdateDetails writes the descriptive fields and top-level interval.
func (r *AvailabilityBlockRepository) UpdateDetails(ctx context.Context, exec sqlx.ExtContext, block *models.AvailabilityBlock) error {
	block.UpdatedAt = time.Now().UTC()
	const query = `UPDATE availability_blocks
SET title = :title, notes = :notes, start_at = :start_at, end_at = :end_at, updated_at = :updated_at
WHERE id = :id AND owner_id = :owner_id AND deleted_at IS NULL`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, block)
	if err != nil {
		return fmt.Errorf("update availability block: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("availability block rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete removes a live block.
func (r *AvailabilityBlockRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE availability_blocks SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("delete availability block: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("availability block rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListWithEntriesIn returns distinct live blocks of ownerID with at least one live entry
// intersecting interval.
func (r *AvailabilityBlockRepository) ListWithEntriesIn(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval) ([]models.AvailabilityBlock, error) {
	const query = `SELECT ` + availabilityBlockColumns + ` FROM availability_blocks b
WHERE b.owner_id = $1 AND b.deleted_at IS NULL AND EXISTS (
    SELECT 1 FROM schedule_entries e
    WHERE e.block_ref = b.id AND e.deleted_at IS NULL AND e.start_at < $3 AND e.end_at > $2
)
ORDER BY b.start_at ASC, b.id ASC`
	var blocks []models.AvailabilityBlock
	if err := sqlx.SelectContext(ctx, r.exec(exec), &blocks, query, ownerID, interval.Start.UTC(), interval.End.UTC()); err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}
	return blocks, nil
}
