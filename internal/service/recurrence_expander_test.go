package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

func drain(it *OccurrenceIterator) []models.Occurrence {
	var out []models.Occurrence
	for occ, ok := it.Next(); ok; occ, ok = it.Next() {
		out = append(out, occ)
	}
	return out
}

func mondayEvening(horizon time.Time) models.RecurrenceRule {
	return models.RecurrenceRule{
		DaysOfWeek: []time.Weekday{time.Monday},
		StartTime:  models.NewTimeOfDay(18, 0),
		EndTime:    models.NewTimeOfDay(19, 0),
		Horizon:    horizon,
	}
}

func TestExpandYieldsMatchingWeekdaysThroughHorizon(t *testing.T) {
	expander := NewRecurrenceExpander(jakarta)
	start := mustDate(jakarta, "2024-01-01 00:00")
	rule := mondayEvening(mustDate(jakarta, "2024-01-29 00:00"))

	it, err := expander.Expand(rule, start)
	require.NoError(t, err)
	occurrences := drain(it)

	require.Len(t, occurrences, 5)
	for i, occ := range occurrences {
		assert.Equal(t, time.Monday, occ.Date.Weekday())
		assert.Equal(t, 1+7*i, occ.Date.Day())
		assert.Equal(t, rule.StartTime, occ.StartTime)
	}
}

func TestExpandStartsAtSearchDateNotItsInstant(t *testing.T) {
	expander := NewRecurrenceExpander(jakarta)
	start := mustDate(jakarta, "2024-01-01 20:00")

	intervals, err := expander.Intervals(mondayEvening(mustDate(jakarta, "2024-01-08 00:00")), start)
	require.NoError(t, err)

	require.Len(t, intervals, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), intervals[0].Start)
	assert.Equal(t, time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC), intervals[1].End)
}

func TestExpandEmptyDaysYieldsNothing(t *testing.T) {
	expander := NewRecurrenceExpander(time.UTC)
	rule := models.RecurrenceRule{
		StartTime: models.NewTimeOfDay(9, 0),
		EndTime:   models.NewTimeOfDay(10, 0),
		Horizon:   time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	it, err := expander.Expand(rule, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, drain(it))
}

func TestExpandHorizonBeforeStartYieldsNothing(t *testing.T) {
	expander := NewRecurrenceExpander(time.UTC)
	rule := mondayEvening(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC))

	intervals, err := expander.Intervals(rule, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, intervals)
}

func TestExpandIsRestartable(t *testing.T) {
	expander := NewRecurrenceExpander(jakarta)
	rule := mondayEvening(mustDate(jakarta, "2024-02-26 00:00"))
	start := mustDate(jakarta, "2024-01-01 00:00")

	first, err := expander.Intervals(rule, start)
	require.NoError(t, err)
	second, err := expander.Intervals(rule, start)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandReadsHorizonAsCivilDate(t *testing.T) {
	newYork := time.FixedZone("EST", -5*60*60)
	expander := NewRecurrenceExpander(newYork)
	// A DATE column scans as UTC midnight; the 29th must still be included.
	rule := mondayEvening(time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC))

	intervals, err := expander.Intervals(rule, mustDate(newYork, "2024-01-22 00:00"))
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.Equal(t, time.Date(2024, 1, 29, 23, 0, 0, 0, time.UTC), intervals[1].Start)
}

func TestMergeOrdersByDateThenStartTime(t *testing.T) {
	expander := NewRecurrenceExpander(time.UTC)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	horizon := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	evening, err := expander.Expand(mondayEvening(horizon), start)
	require.NoError(t, err)
	morning, err := expander.Expand(models.RecurrenceRule{
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday},
		StartTime:  models.NewTimeOfDay(8, 0),
		EndTime:    models.NewTimeOfDay(9, 0),
		Horizon:    horizon,
	}, start)
	require.NoError(t, err)

	stream := expander.Merge(evening, morning)
	var got []string
	for occ, ok := stream.Next(); ok; occ, ok = stream.Next() {
		got = append(got, occ.Date.Format("01-02")+" "+occ.StartTime.String())
	}
	assert.Equal(t, []string{
		"01-01 08:00", "01-01 18:00",
		"01-03 08:00",
		"01-08 08:00", "01-08 18:00",
		"01-10 08:00",
	}, got)
}
