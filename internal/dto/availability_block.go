package dto

import "time"

// RecurrenceRuleRequest declares a weekly pattern. Days use ISO numbering (1 = Monday, 7 = Sunday)
// and HorizonDate is a calendar date (YYYY-MM-DD), inclusive.
type RecurrenceRuleRequest struct {
	DaysOfWeek  []int  `json:"daysOfWeek" validate:"omitempty,dive,min=1,max=7"`
	StartTime   string `json:"startTime" validate:"required"`
	EndTime     string `json:"endTime" validate:"required"`
	HorizonDate string `json:"horizonDate" validate:"required"`
}

// CreateAvailabilityBlockRequest declares tutor free time.
type CreateAvailabilityBlockRequest struct {
	Title      string                 `json:"title" validate:"required,max=200"`
	Notes      string                 `json:"notes" validate:"max=2000"`
	StartAt    time.Time              `json:"startAt" validate:"required"`
	EndAt      time.Time              `json:"endAt" validate:"required"`
	Recurrence *RecurrenceRuleRequest `json:"recurrence"`
}

// UpdateAvailabilityBlockRequest edits descriptive block fields. Materialised entries are not touched.
type UpdateAvailabilityBlockRequest struct {
	Title   *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Notes   *string    `json:"notes" validate:"omitempty,max=2000"`
	StartAt *time.Time `json:"startAt"`
	EndAt   *time.Time `json:"endAt"`
}
