package models

import "time"

// Lesson is a logical teaching session. Its identity survives reschedules.
type Lesson struct {
	ID        string     `db:"id" json:"id"`
	SourceID  string     `db:"source_id" json:"source_id"`
	OwnerID   string     `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
