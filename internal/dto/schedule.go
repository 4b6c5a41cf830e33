package dto

import (
	"time"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// WeeklySlotRequest is one recurring weekly time range. Days use ISO numbering (1 = Monday, 7 = Sunday).
type WeeklySlotRequest struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"required,min=1,max=7"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

// GenerateScheduleRequest materialises lessons for a class or class request.
type GenerateScheduleRequest struct {
	SourceID       string              `json:"sourceId" validate:"required,max=100"`
	OwnerID        string              `json:"ownerId" validate:"required,max=100"`
	StartDate      time.Time           `json:"startDate" validate:"required"`
	Slots          []WeeklySlotRequest `json:"slots" validate:"required,min=1,max=14,dive"`
	ParticipantIDs []string            `json:"participantIds" validate:"omitempty,dive,required"`
	TargetCount    int                 `json:"targetCount" validate:"omitempty,min=1,max=500"`
	DayHorizon     int                 `json:"dayHorizon" validate:"omitempty,min=1,max=366"`
}

// ScheduledLesson is one lesson produced by generation.
type ScheduledLesson struct {
	LessonID string    `json:"lessonId"`
	EntryID  string    `json:"entryId"`
	StartAt  time.Time `json:"startAt"`
	EndAt    time.Time `json:"endAt"`
}

// GenerateScheduleResponse lists the generated lessons in chronological order.
type GenerateScheduleResponse struct {
	SourceID string            `json:"sourceId"`
	OwnerID  string            `json:"ownerId"`
	Lessons  []ScheduledLesson `json:"lessons"`
}

// ConflictCheckRequest asks whether an interval collides with a tutor's calendar.
type ConflictCheckRequest struct {
	OwnerID        string    `json:"ownerId"`
	StartAt        time.Time `json:"startAt" validate:"required"`
	EndAt          time.Time `json:"endAt" validate:"required"`
	ExcludeEntryID string    `json:"excludeEntryId"`
}

// ConflictCheckResponse carries the conflicting entry when there is one.
type ConflictCheckResponse struct {
	Conflict bool                  `json:"conflict"`
	Entry    *models.ScheduleEntry `json:"entry,omitempty"`
}

// CalendarRange bounds a calendar read.
type CalendarRange struct {
	From time.Time
	To   time.Time
}

// ExportFormat selects the calendar export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered calendar export.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}
