package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// RescheduleStatus is the state of a reschedule request.
type RescheduleStatus int

const (
	RescheduleStatusPending RescheduleStatus = iota + 1
	RescheduleStatusAccepted
	RescheduleStatusRejected
)

var rescheduleStatusCodes = map[RescheduleStatus]string{
	RescheduleStatusPending:  "PENDING",
	RescheduleStatusAccepted: "ACCEPTED",
	RescheduleStatusRejected: "REJECTED",
}

func (s RescheduleStatus) String() string {
	if code, ok := rescheduleStatusCodes[s]; ok {
		return code
	}
	return fmt.Sprintf("RescheduleStatus(%d)", int(s))
}

// ParseRescheduleStatus maps a stored code back to its variant.
func ParseRescheduleStatus(code string) (RescheduleStatus, error) {
	for status, c := range rescheduleStatusCodes {
		if c == code {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown reschedule status %q", code)
}

// Terminal reports whether no further transition is allowed.
func (s RescheduleStatus) Terminal() bool {
	return s == RescheduleStatusAccepted || s == RescheduleStatusRejected
}

// Value implements driver.Valuer.
func (s RescheduleStatus) Value() (driver.Value, error) {
	code, ok := rescheduleStatusCodes[s]
	if !ok {
		return nil, fmt.Errorf("invalid reschedule status %d", int(s))
	}
	return code, nil
}

// Scan implements sql.Scanner.
func (s *RescheduleStatus) Scan(src interface{}) error {
	code, err := scanCode(src)
	if err != nil {
		return fmt.Errorf("scan reschedule status: %w", err)
	}
	parsed, err := ParseRescheduleStatus(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s RescheduleStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RescheduleStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRescheduleStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PartySide is the side of a lesson an actor stands on.
type PartySide int

const (
	PartyTutor PartySide = iota + 1
	PartyLearner
)

func (p PartySide) String() string {
	switch p {
	case PartyTutor:
		return "TUTOR"
	case PartyLearner:
		return "LEARNER"
	default:
		return fmt.Sprintf("PartySide(%d)", int(p))
	}
}

// ParsePartySide maps a stored code back to its variant.
func ParsePartySide(code string) (PartySide, error) {
	switch code {
	case "TUTOR":
		return PartyTutor, nil
	case "LEARNER":
		return PartyLearner, nil
	default:
		return 0, fmt.Errorf("unknown party side %q", code)
	}
}

// Value implements driver.Valuer.
func (p PartySide) Value() (driver.Value, error) {
	if p != PartyTutor && p != PartyLearner {
		return nil, fmt.Errorf("invalid party side %d", int(p))
	}
	return p.String(), nil
}

// Scan implements sql.Scanner.
func (p *PartySide) Scan(src interface{}) error {
	code, err := scanCode(src)
	if err != nil {
		return fmt.Errorf("scan party side: %w", err)
	}
	parsed, err := ParsePartySide(code)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p PartySide) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PartySide) UnmarshalText(text []byte) error {
	parsed, err := ParsePartySide(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RescheduleRequest proposes moving one lesson occurrence to a new interval.
type RescheduleRequest struct {
	ID             string           `db:"id" json:"id"`
	LessonID       string           `db:"lesson_id" json:"lesson_id"`
	EntryID        string           `db:"entry_id" json:"entry_id"`
	OldStart       time.Time        `db:"old_start" json:"old_start"`
	OldEnd         time.Time        `db:"old_end" json:"old_end"`
	NewStart       time.Time        `db:"new_start" json:"new_start"`
	NewEnd         time.Time        `db:"new_end" json:"new_end"`
	RequesterID    string           `db:"requester_id" json:"requester_id"`
	RequesterParty PartySide        `db:"requester_party" json:"requester_party"`
	ResponderID    *string          `db:"responder_id" json:"responder_id,omitempty"`
	Status         RescheduleStatus `db:"status" json:"status"`
	Reason         string           `db:"reason" json:"reason"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	RespondedAt    *time.Time       `db:"responded_at" json:"responded_at,omitempty"`
}

func (r RescheduleRequest) OldInterval() Interval { return Interval{Start: r.OldStart, End: r.OldEnd} }
func (r RescheduleRequest) NewInterval() Interval { return Interval{Start: r.NewStart, End: r.NewEnd} }
