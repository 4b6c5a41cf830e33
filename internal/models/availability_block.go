package models

import (
	"time"

	"github.com/lib/pq"
)

// AvailabilityBlock is tutor-declared non-teaching time.
type AvailabilityBlock struct {
	ID          string        `db:"id" json:"id"`
	OwnerID     string        `db:"owner_id" json:"owner_id"`
	Title       string        `db:"title" json:"title"`
	Notes       string        `db:"notes" json:"notes"`
	StartAt     time.Time     `db:"start_at" json:"start_at"`
	EndAt       time.Time     `db:"end_at" json:"end_at"`
	DaysOfWeek  pq.Int32Array `db:"days_of_week" json:"days_of_week"`
	StartTime   TimeOfDay     `db:"start_time" json:"start_time"`
	EndTime     TimeOfDay     `db:"end_time" json:"end_time"`
	HorizonDate time.Time     `db:"horizon_date" json:"horizon_date"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Rule rebuilds the block's declared recurrence in loc.
func (b AvailabilityBlock) Rule(loc *time.Location) RecurrenceRule {
	days := make([]time.Weekday, 0, len(b.DaysOfWeek))
	for _, d := range b.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}
	y, m, d := b.HorizonDate.Date()
	return RecurrenceRule{
		DaysOfWeek: days,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Horizon:    time.Date(y, m, d, 0, 0, 0, 0, loc),
	}
}

// BlockWithEntries pairs a block with the entries it materialised.
type BlockWithEntries struct {
	Block   AvailabilityBlock `json:"block"`
	Entries []ScheduleEntry   `json:"entries"`
}
