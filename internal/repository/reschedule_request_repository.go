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

const rescheduleRequestColumns = `id, lesson_id, entry_id, old_start, old_end, new_start, new_end, requester_id, requester_party, responder_id, status, reason, created_at, responded_at`

// RescheduleRequestRepository persists reschedule requests.
type RescheduleRequestRepository struct {
	db *sqlx.DB
}

// NewRescheduleRequestRepository constructs the repository.
func NewRescheduleRequestRepository(db *sqlx.DB) *RescheduleRequestRepository {
	return &RescheduleRequestRepository{db: db}
}

func (r *RescheduleRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a request.
func (r *RescheduleRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO reschedule_requests (id, lesson_id, entry_id, old_start, old_end, new_start, new_end, requester_id, requester_party, status, reason, created_at)
VALUES (:id, :lesson_id, :entry_id, :old_start, :old_end, :new_start, :new_end, :requester_id, :requester_party, :status, :reason, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, req); err != nil {
		return fmt.Errorf("create reschedule request: %w", err)
	}
	return nil
}

// FindByIDForUpdate loads a request and row-locks it for the rest of the transaction.
func (r *RescheduleRequestRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RescheduleRequest, error) {
	const query = `SELECT ` + rescheduleRequestColumns + ` FROM reschedule_requests WHERE id = $1 FOR UPDATE`
	var req models.RescheduleRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// HasPending reports whether the lesson has an undecided request.
func (r *RescheduleRequestRepository) HasPending(ctx context.Context, exec sqlx.ExtContext, lessonID string) (bool, error) {
	const query = `SELECT 1 FROM reschedule_requests WHERE lesson_id = $1 AND status = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, lessonID, models.RescheduleStatusPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending reschedule request: %w", err)
	}
	return true, nil
}

// Decide records the terminal status of a pending request.
func (r *RescheduleRequestRepository) Decide(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error {
	const query = `UPDATE reschedule_requests SET status = $1, responder_id = $2, responded_at = $3 WHERE id = $4 AND status = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, req.Status, req.ResponderID, req.RespondedAt, req.ID, models.RescheduleStatusPending)
	if err != nil {
		return fmt.Errorf("decide reschedule request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reschedule request rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByLesson returns a lesson's requests, newest first.
func (r *RescheduleRequestRepository) ListByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) ([]models.RescheduleRequest, error) {
	const query = `SELECT ` + rescheduleRequestColumns + ` FROM reschedule_requests WHERE lesson_id = $1 ORDER BY created_at DESC, id ASC`
	var requests []models.RescheduleRequest
	if err := sqlx.SelectContext(ctx, r.exec(exec), &requests, query, lessonID); err != nil {
		return nil, fmt.Errorf("list reschedule requests: %w", err)
	}
	return requests, nil
}
