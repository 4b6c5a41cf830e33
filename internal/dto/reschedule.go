package dto

import "time"

// CreateRescheduleRequest proposes a new interval for one lesson.
type CreateRescheduleRequest struct {
	NewStart time.Time `json:"newStart" validate:"required"`
	NewEnd   time.Time `json:"newEnd" validate:"required"`
	Reason   string    `json:"reason" validate:"max=500"`
}
