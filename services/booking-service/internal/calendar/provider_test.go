package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventTime(t *testing.T) {
	got, err := ParseEventTime("2025-11-28T17:00:00-07:00", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 29, 0, 0, 0, 0, time.UTC), got.UTC())

	got, err = ParseEventTime("2025-11-28T17:00:00", "America/Phoenix")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 29, 0, 0, 0, 0, time.UTC), got.UTC())

	// Same wall clock across a DST change resolves to different offsets.
	summer, err := ParseEventTime("2025-07-01T09:00", "America/New_York")
	require.NoError(t, err)
	winter, err := ParseEventTime("2025-12-01T09:00", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 13, summer.UTC().Hour())
	assert.Equal(t, 14, winter.UTC().Hour())

	_, err = ParseEventTime("2025-11-28T17:00:00", "Nowhere/Special")
	require.Error(t, err)
	_, err = ParseEventTime("tomorrow", "")
	require.Error(t, err)
}

func TestBusyIntervals_SkipsAllDay(t *testing.T) {
	start := time.Date(2025, 11, 28, 10, 0, 0, 0, time.FixedZone("X", -7*3600))
	end := start.Add(time.Hour)
	events := []Event{
		{ID: "timed", Start: &start, End: &end},
		{ID: "holiday"},
	}

	busy := BusyIntervals(events)
	require.Len(t, busy, 1)
	assert.Equal(t, time.UTC, busy[0].Start.Location())
	assert.True(t, busy[0].Start.Equal(start))
	assert.True(t, busy[0].End.Equal(end))
}
