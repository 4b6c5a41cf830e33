package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// EntryKind tells what a schedule entry is backing.
type EntryKind int

const (
	EntryKindLesson EntryKind = iota + 1
	EntryKindBlock
)

const (
	entryKindLessonCode = "LESSON"
	entryKindBlockCode  = "BLOCK"
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindLesson:
		return entryKindLessonCode
	case EntryKindBlock:
		return entryKindBlockCode
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// ParseEntryKind maps a stored code back to its variant.
func ParseEntryKind(code string) (EntryKind, error) {
	switch code {
	case entryKindLessonCode:
		return EntryKindLesson, nil
	case entryKindBlockCode:
		return EntryKindBlock, nil
	default:
		return 0, fmt.Errorf("unknown entry kind %q", code)
	}
}

// Value implements driver.Valuer.
func (k EntryKind) Value() (driver.Value, error) {
	if k != EntryKindLesson && k != EntryKindBlock {
		return nil, fmt.Errorf("invalid entry kind %d", int(k))
	}
	return k.String(), nil
}

// Scan implements sql.Scanner.
func (k *EntryKind) Scan(src interface{}) error {
	code, err := scanCode(src)
	if err != nil {
		return fmt.Errorf("scan entry kind: %w", err)
	}
	parsed, err := ParseEntryKind(code)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k EntryKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EntryKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEntryKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ScheduleEntry is one booked interval on a tutor's calendar.
type ScheduleEntry struct {
	ID        string     `db:"id" json:"id"`
	OwnerID   string     `db:"owner_id" json:"owner_id"`
	StartAt   time.Time  `db:"start_at" json:"start_at"`
	EndAt     time.Time  `db:"end_at" json:"end_at"`
	Kind      EntryKind  `db:"kind" json:"kind"`
	LessonRef *string    `db:"lesson_ref" json:"lesson_ref,omitempty"`
	BlockRef  *string    `db:"block_ref" json:"block_ref,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Interval returns the booked range.
func (e ScheduleEntry) Interval() Interval {
	return Interval{Start: e.StartAt, End: e.EndAt}
}

// Active reports whether the entry still occupies the calendar.
func (e ScheduleEntry) Active() bool {
	return e.DeletedAt == nil
}

func scanCode(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("unexpected NULL")
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}
