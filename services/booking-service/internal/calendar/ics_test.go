package calendar

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:single@test
SUMMARY:Client call
DTSTART;TZID=America/Phoenix:20251128T170000
DTEND;TZID=America/Phoenix:20251128T180000
END:VEVENT
BEGIN:VEVENT
UID:allday@test
SUMMARY:Thanksgiving
DTSTART;VALUE=DATE:20251127
DTEND;VALUE=DATE:20251128
END:VEVENT
BEGIN:VEVENT
UID:weekly@test
SUMMARY:Office hours
DTSTART:20251107T160000Z
DTEND:20251107T163000Z
RRULE:FREQ=WEEKLY;BYDAY=FR
EXDATE:20251121T160000Z
END:VEVENT
BEGIN:VEVENT
UID:cancelled@test
SUMMARY:Dropped
STATUS:CANCELLED
DTSTART:20251128T150000Z
DTEND:20251128T160000Z
END:VEVENT
BEGIN:VEVENT
UID:free@test
SUMMARY:Focus
TRANSP:TRANSPARENT
DTSTART:20251128T180000Z
DTEND:20251128T190000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParseFeed(t *testing.T) {
	events, err := parseFeed([]byte(crlf(testFeed)), time.UTC, slog.Default())
	require.NoError(t, err)
	require.Len(t, events, 3)

	byUID := map[string]feedEvent{}
	for _, ev := range events {
		byUID[ev.UID] = ev
	}
	single := byUID["single@test"]
	assert.Equal(t, time.Date(2025, 11, 29, 0, 0, 0, 0, time.UTC), single.Start.UTC())
	assert.True(t, byUID["allday@test"].AllDay)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=FR", byUID["weekly@test"].RRule)
	assert.Len(t, byUID["weekly@test"].ExDates, 1)
}

const durationFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:duration@test
SUMMARY:Workshop
DTSTART:20251128T170000Z
DURATION:PT1H30M
END:VEVENT
END:VCALENDAR
`

func TestParseFeed_DurationWithoutDTEND(t *testing.T) {
	events, err := parseFeed([]byte(crlf(durationFeed)), time.UTC, slog.Default())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2025, 11, 28, 18, 30, 0, 0, time.UTC), events[0].End.UTC())

	day := time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC)
	busy := BusyIntervals(expandFeed(events, day, day.Add(24*time.Hour), slog.Default()))
	require.Len(t, busy, 1)
	assert.Equal(t, 90*time.Minute, busy[0].End.Sub(busy[0].Start))
}

func TestParseICSDuration(t *testing.T) {
	d, err := parseICSDuration("P1DT2H")
	require.NoError(t, err)
	assert.Equal(t, 26*time.Hour, d)

	_, err = parseICSDuration("one hour")
	assert.Error(t, err)
}

func TestExpandFeed_RecurrenceAndExdate(t *testing.T) {
	events, err := parseFeed([]byte(crlf(testFeed)), time.UTC, slog.Default())
	require.NoError(t, err)

	from := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	var weekly []time.Time
	for _, ev := range expandFeed(events, from, to, slog.Default()) {
		if ev.ID == "weekly@test" {
			weekly = append(weekly, ev.Start.UTC())
		}
	}
	// Nov 7, 14, 28; Nov 21 is excluded.
	require.Len(t, weekly, 3)
	assert.Equal(t, 14, weekly[1].Day())
	assert.Equal(t, 28, weekly[2].Day())
}

func TestExpandFeed_RangeClipping(t *testing.T) {
	events, err := parseFeed([]byte(crlf(testFeed)), time.UTC, slog.Default())
	require.NoError(t, err)

	day := time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC)
	got := expandFeed(events, day, day.Add(24*time.Hour), slog.Default())
	ids := map[string]bool{}
	for _, ev := range got {
		ids[ev.ID] = true
	}
	assert.True(t, ids["weekly@test"])
	assert.False(t, ids["single@test"], "single event starts at 00:00Z on the 29th")
	assert.False(t, ids["allday@test"], "all-day event ends at the start of the 28th")
}

func TestICSFeed_HTTPAndReadOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(crlf(testFeed)))
	}))
	defer srv.Close()

	feed, err := NewICSFeed(ICSConfig{URL: srv.URL}, nil)
	require.NoError(t, err)

	day := time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC)
	events, err := feed.ListEvents(context.Background(), day, day.Add(48*time.Hour), "UTC")
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	_, err = feed.ListEvents(context.Background(), day, day.Add(48*time.Hour), "UTC")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second call served from memory")

	_, err = feed.CreateEvent(context.Background(), NewEvent{})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestICSFeed_LocalFileAndSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	require.NoError(t, os.WriteFile(path, []byte(crlf(testFeed)), 0o600))

	feed, err := NewICSFeed(ICSConfig{URL: path, Refresh: "@every 1h"}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, feed.Start(ctx))

	feed.mu.RLock()
	n := len(feed.events)
	feed.mu.RUnlock()
	assert.Equal(t, 3, n)

	bad, err := NewICSFeed(ICSConfig{URL: path, Refresh: "not a schedule"}, nil)
	require.NoError(t, err)
	require.Error(t, bad.Start(ctx))
}
