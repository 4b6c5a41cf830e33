package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/database"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type atomicRunner interface {
	RunAtomic(ctx context.Context, fn database.UnitOfWork) error
}

type ownerLocker interface {
	Lock(ctx context.Context, exec sqlx.ExtContext, keys ...string) error
}

type conflictFinder interface {
	FindConflict(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval, exclude mo.Option[string]) (*models.ScheduleEntry, error)
}

type scheduleEntryStore interface {
	entryRangeReader
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduleEntry, error)
	FindActiveByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) (*models.ScheduleEntry, error)
	UpdateInterval(ctx context.Context, exec sqlx.ExtContext, id string, interval models.Interval) error
	SoftDeleteByBlock(ctx context.Context, exec sqlx.ExtContext, blockID string) (int64, error)
	SoftDeleteByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) (int64, error)
}

type lessonStore interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error)
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error
	AddParticipants(ctx context.Context, exec sqlx.ExtContext, sourceID string, participantIDs []string) error
	IsParticipant(ctx context.Context, exec sqlx.ExtContext, sourceID, profileID string) (bool, error)
	ListParticipants(ctx context.Context, exec sqlx.ExtContext, sourceID string) ([]string, error)
}

// lockOwner serialises every calendar write of ownerID for the rest of the transaction.
func lockOwner(ctx context.Context, locker ownerLocker, exec sqlx.ExtContext, ownerID string) error {
	if err := locker.Lock(ctx, exec, database.OwnerLockKey(ownerID)); err != nil {
		return appErrors.Internal(err, "failed to lock tutor calendar")
	}
	return nil
}

// insertEntries writes entries, reporting storage-level overlap guards as conflicts.
func insertEntries(ctx context.Context, store scheduleEntryStore, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if err := store.InsertBatch(ctx, exec, entries); err != nil {
		if database.IsOverlapViolation(err) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "booking overlaps an existing schedule entry")
		}
		return appErrors.Internal(err, "failed to store schedule entries")
	}
	return nil
}

// txError normalises what RunAtomic returned: domain errors pass through, storage overlap guards
// become conflicts and everything else is an internal error.
func txError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if database.IsOverlapViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "booking overlaps an existing schedule entry")
	}
	return appErrors.Internal(err, message)
}

func notFoundOr(err error, notFound, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, message)
}

// isEntityID reports whether id can name a stored row; anything else cannot exist.
func isEntityID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
