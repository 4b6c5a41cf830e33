package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

const (
	defaultDayHorizon      = 100
	defaultSessionsPerRule = 4
)

// AllocationRequest describes one slot search.
type AllocationRequest struct {
	OwnerID     string
	SearchStart time.Time
	Slots       []models.WeeklySlot
	// TargetCount defaults to len(Slots) * sessions per rule when zero.
	TargetCount int
	// DayHorizon defaults to the allocator's configured horizon when zero.
	DayHorizon int
}

// SlotAllocatorConfig sets the allocator defaults.
type SlotAllocatorConfig struct {
	DayHorizon      int
	SessionsPerRule int
}

// SlotAllocator searches a tutor's calendar for conflict-free weekly occurrences.
type SlotAllocator struct {
	entries         entryRangeReader
	expander        *RecurrenceExpander
	dayHorizon      int
	sessionsPerRule int
}

// NewSlotAllocator constructs the allocator.
func NewSlotAllocator(entries entryRangeReader, expander *RecurrenceExpander, cfg SlotAllocatorConfig) *SlotAllocator {
	if cfg.DayHorizon <= 0 {
		cfg.DayHorizon = defaultDayHorizon
	}
	if cfg.SessionsPerRule <= 0 {
		cfg.SessionsPerRule = defaultSessionsPerRule
	}
	return &SlotAllocator{
		entries:         entries,
		expander:        expander,
		dayHorizon:      cfg.DayHorizon,
		sessionsPerRule: cfg.SessionsPerRule,
	}
}

// TargetFor returns the default number of sessions for a slot set.
func (a *SlotAllocator) TargetFor(slots int) int {
	return slots * a.sessionsPerRule
}

// Allocate walks day by day from SearchStart for at most DayHorizon days and returns the first
// TargetCount occurrences that overlap neither existing bookings nor each other, in ascending
// order. It only reads, so it is safe to re-run inside a retried transaction. When the horizon
// runs out first it fails with ErrInsufficientCapacity.
func (a *SlotAllocator) Allocate(ctx context.Context, exec sqlx.ExtContext, req AllocationRequest) ([]models.Interval, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	target := req.TargetCount
	if target <= 0 {
		target = a.TargetFor(len(req.Slots))
	}
	horizonDays := req.DayHorizon
	if horizonDays <= 0 {
		horizonDays = a.dayHorizon
	}

	loc := a.expander.Location()
	firstDay := startOfDay(req.SearchStart, loc)
	window := models.NewInterval(firstDay, firstDay.AddDate(0, 0, horizonDays))

	working, err := a.entries.ListOverlapping(ctx, exec, req.OwnerID, window)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule entries")
	}

	lastDay := firstDay.AddDate(0, 0, horizonDays-1)
	iters := make([]*OccurrenceIterator, 0, len(req.Slots))
	for _, slot := range req.Slots {
		iter, err := a.expander.Expand(models.RecurrenceRule{
			DaysOfWeek: []time.Weekday{slot.DayOfWeek},
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
			Horizon:    lastDay,
		}, firstDay)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to expand weekly slot")
		}
		iters = append(iters, iter)
	}
	stream := a.expander.Merge(iters...)

	accepted := make([]models.Interval, 0, target)
	for occ, ok := stream.Next(); ok && len(accepted) < target; occ, ok = stream.Next() {
		candidate := occ.Interval(loc)
		if candidate.Start.Before(req.SearchStart) {
			continue
		}
		if FirstOverlap(working, candidate, mo.None[string]()) != nil {
			continue
		}
		accepted = append(accepted, candidate)
		working = append(working, models.ScheduleEntry{StartAt: candidate.Start, EndAt: candidate.End})
	}

	if len(accepted) < target {
		return nil, appErrors.Clone(appErrors.ErrInsufficientCapacity,
			fmt.Sprintf("found %d of %d sessions within %d days", len(accepted), target, horizonDays))
	}
	return accepted, nil
}

func (a *SlotAllocator) validate(req AllocationRequest) error {
	if req.OwnerID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "owner id is required")
	}
	if req.SearchStart.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "search start is required")
	}
	if len(req.Slots) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one weekly slot is required")
	}
	if req.TargetCount < 0 || req.DayHorizon < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "target count and day horizon must not be negative")
	}
	for _, slot := range req.Slots {
		if slot.DayOfWeek < time.Sunday || slot.DayOfWeek > time.Saturday {
			return appErrors.Clone(appErrors.ErrValidation, "weekly slot day is out of range")
		}
		if slot.EndTime <= slot.StartTime {
			return appErrors.Clone(appErrors.ErrValidation, "weekly slot end time must be after start time")
		}
	}
	return nil
}
