package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const timeOfDayLayout = "15:04"

// TimeOfDay is a wall-clock time stored as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parsed, err := time.Parse(timeOfDayLayout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", value)
	}
	return TimeOfDay(parsed.Hour()*60 + parsed.Minute()), nil
}

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On anchors the time of day to date's calendar day in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements sql.Scanner.
func (t *TimeOfDay) Scan(src interface{}) error {
	code, err := scanCode(src)
	if err != nil {
		return fmt.Errorf("scan time of day: %w", err)
	}
	parsed, err := ParseTimeOfDay(code)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// RecurrenceRule describes a weekly pattern bounded by a horizon date (inclusive).
type RecurrenceRule struct {
	DaysOfWeek []time.Weekday
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	Horizon    time.Time
}

// HasValidTimes reports whether the time range is non-empty.
func (r RecurrenceRule) HasValidTimes() bool {
	return r.EndTime > r.StartTime
}

// Includes reports whether weekday is part of the rule.
func (r RecurrenceRule) Includes(weekday time.Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

// WeeklySlot is one weekday and time range requested for a recurring lesson.
type WeeklySlot struct {
	DayOfWeek time.Weekday
	StartTime TimeOfDay
	EndTime   TimeOfDay
}

// Occurrence is one dated instance produced by expanding a rule.
type Occurrence struct {
	Date      time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
}

// Interval anchors the occurrence in loc and converts it to UTC.
func (o Occurrence) Interval(loc *time.Location) Interval {
	return NewInterval(o.StartTime.On(o.Date, loc), o.EndTime.On(o.Date, loc))
}
