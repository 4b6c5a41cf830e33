package models

import "time"

// NotificationKind identifies the event a notification reports.
type NotificationKind string

const (
	NotificationRescheduleRequested NotificationKind = "RESCHEDULE_REQUESTED"
	NotificationRescheduleAccepted  NotificationKind = "RESCHEDULE_ACCEPTED"
	NotificationRescheduleRejected  NotificationKind = "RESCHEDULE_REJECTED"
	NotificationLessonCancelled     NotificationKind = "LESSON_CANCELLED"
)

// Notification is handed to the delivery collaborator after a unit of work commits.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	RecipientIDs []string         `json:"recipient_ids"`
	LessonID     string           `json:"lesson_id"`
	RequestID    string           `json:"request_id,omitempty"`
	Interval     *Interval        `json:"interval,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
