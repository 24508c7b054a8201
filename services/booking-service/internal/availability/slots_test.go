package availability

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phoenix(t *testing.T) *time.Location {
	t.Helper()
	return zone(t, "America/Phoenix")
}

func mustEngine(t *testing.T, p Policy) *Engine {
	t.Helper()
	e, err := New(p)
	require.NoError(t, err)
	return e
}

func TestComputeDaySlots_Basic(t *testing.T) {
	loc := phoenix(t)
	e := mustEngine(t, DefaultPolicy())
	day := Date{Year: 2026, Month: time.January, Day: 28}

	busy := []Interval{
		{Start: time.Date(2026, 1, 28, 9, 15, 0, 0, loc), End: time.Date(2026, 1, 28, 9, 45, 0, 0, loc)},
	}

	grid := e.ComputeDaySlots(day, loc, busy)
	require.Len(t, grid.Slots, 26)
	assert.Equal(t, []string{"09:00", "09:30"}, grid.BusyLabels())
	assert.Len(t, grid.Available(), 24)
}

func TestUnavailableLabels_SkipsPast(t *testing.T) {
	loc := phoenix(t)
	e := mustEngine(t, DefaultPolicy())
	day := Date{Year: 2026, Month: time.January, Day: 28}

	now := time.Date(2026, 1, 28, 8, 1, 0, 0, loc)
	// 07:00, 07:30, 08:00 have started; 08:30 is future.
	assert.Equal(t, []string{"07:00", "07:30", "08:00"}, e.ComputeDaySlots(day, loc, nil).UnavailableLabels(now))
}
