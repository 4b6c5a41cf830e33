package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type entryRangeReader interface {
	ListOverlapping(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval) ([]models.ScheduleEntry, error)
}

// ConflictChecker detects overlaps against a tutor's live bookings.
type ConflictChecker struct {
	entries entryRangeReader
}

// NewConflictChecker constructs the checker.
func NewConflictChecker(entries entryRangeReader) *ConflictChecker {
	return &ConflictChecker{entries: entries}
}

// FindConflict returns the first live entry of ownerID overlapping interval, skipping the entry
// named by exclude. It returns nil when the interval is free. Reads go through exec so callers
// can check and write in one transaction.
func (c *ConflictChecker) FindConflict(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval, exclude mo.Option[string]) (*models.ScheduleEntry, error) {
	if ownerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "owner id is required")
	}
	if !interval.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "interval start must be before end")
	}
	entries, err := c.entries.ListOverlapping(ctx, exec, ownerID, interval)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule entries")
	}
	return FirstOverlap(entries, interval, exclude), nil
}

// HasConflict reports whether FindConflict finds anything.
func (c *ConflictChecker) HasConflict(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval, exclude mo.Option[string]) (bool, error) {
	entry, err := c.FindConflict(ctx, exec, ownerID, interval, exclude)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// FirstOverlap scans entries in order and returns the first live one overlapping interval.
func FirstOverlap(entries []models.ScheduleEntry, interval models.Interval, exclude mo.Option[string]) *models.ScheduleEntry {
	excludedID, excluding := exclude.Get()
	for i := range entries {
		entry := &entries[i]
		if !entry.Active() {
			continue
		}
		if excluding && entry.ID == excludedID {
			continue
		}
		if entry.Interval().Overlaps(interval) {
			return entry
		}
	}
	return nil
}
