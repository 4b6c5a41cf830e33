package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// RecurrenceExpander turns weekly rules into dated occurrences in the scheduling location.
type RecurrenceExpander struct {
	loc *time.Location
}

// NewRecurrenceExpander builds an expander anchored in loc (UTC when nil).
func NewRecurrenceExpander(loc *time.Location) *RecurrenceExpander {
	if loc == nil {
		loc = time.UTC
	}
	return &RecurrenceExpander{loc: loc}
}

// Location returns the scheduling location.
func (e *RecurrenceExpander) Location() *time.Location {
	return e.loc
}

// Expand yields one occurrence per day from searchStart's date up to rule.Horizon (inclusive) whose
// weekday is in rule.DaysOfWeek. An empty day set yields nothing. Each call returns a fresh iterator.
func (e *RecurrenceExpander) Expand(rule models.RecurrenceRule, searchStart time.Time) (*OccurrenceIterator, error) {
	if len(rule.DaysOfWeek) == 0 {
		return &OccurrenceIterator{}, nil
	}

	start := startOfDay(searchStart, e.loc)
	horizon := civilDate(rule.Horizon, e.loc)
	if horizon.Before(start) {
		return &OccurrenceIterator{}, nil
	}

	days := make([]rrule.Weekday, 0, len(rule.DaysOfWeek))
	for _, day := range uniqueWeekdays(rule.DaysOfWeek) {
		wd, ok := rruleWeekdays[day]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %d", int(day))
		}
		days = append(days, wd)
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   start,
		Until:     horizon.AddDate(0, 0, 1).Add(-time.Second),
		Byweekday: days,
	})
	if err != nil {
		return nil, fmt.Errorf("build recurrence: %w", err)
	}
	return &OccurrenceIterator{next: r.Iterator(), startTime: rule.StartTime, endTime: rule.EndTime}, nil
}

// Intervals expands rule and converts every occurrence to a UTC interval.
func (e *RecurrenceExpander) Intervals(rule models.RecurrenceRule, searchStart time.Time) ([]models.Interval, error) {
	iter, err := e.Expand(rule, searchStart)
	if err != nil {
		return nil, err
	}
	var intervals []models.Interval
	for occ, ok := iter.Next(); ok; occ, ok = iter.Next() {
		intervals = append(intervals, occ.Interval(e.loc))
	}
	return intervals, nil
}

// Merge interleaves several iterators chronologically. Ties keep argument order.
func (e *RecurrenceExpander) Merge(iters ...*OccurrenceIterator) *OccurrenceStream {
	stream := &OccurrenceStream{
		sources: iters,
		heads:   make([]models.Occurrence, len(iters)),
		live:    make([]bool, len(iters)),
	}
	for i, it := range iters {
		stream.heads[i], stream.live[i] = it.Next()
	}
	return stream
}

// OccurrenceIterator lazily yields occurrences in date order.
type OccurrenceIterator struct {
	next      rrule.Next
	startTime models.TimeOfDay
	endTime   models.TimeOfDay
}

// Next returns the following occurrence, or false once exhausted.
func (it *OccurrenceIterator) Next() (models.Occurrence, bool) {
	if it == nil || it.next == nil {
		return models.Occurrence{}, false
	}
	date, ok := it.next()
	if !ok {
		it.next = nil
		return models.Occurrence{}, false
	}
	return models.Occurrence{Date: date, StartTime: it.startTime, EndTime: it.endTime}, true
}

// OccurrenceStream is a k-way merge of occurrence iterators.
type OccurrenceStream struct {
	sources []*OccurrenceIterator
	heads   []models.Occurrence
	live    []bool
}

// Next returns the earliest pending occurrence across all sources.
func (s *OccurrenceStream) Next() (models.Occurrence, bool) {
	pick := -1
	for i := range s.sources {
		if !s.live[i] {
			continue
		}
		if pick < 0 || occursBefore(s.heads[i], s.heads[pick]) {
			pick = i
		}
	}
	if pick < 0 {
		return models.Occurrence{}, false
	}
	occ := s.heads[pick]
	s.heads[pick], s.live[pick] = s.sources[pick].Next()
	return occ, true
}

func occursBefore(a, b models.Occurrence) bool {
	ay, am, ad := a.Date.Date()
	by, bm, bd := b.Date.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	if ad != bd {
		return ad < bd
	}
	return a.StartTime < b.StartTime
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// civilDate reads t as a calendar date in its own location and re-anchors it in loc.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func uniqueWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
