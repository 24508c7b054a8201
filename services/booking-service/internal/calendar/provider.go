package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/availability"
)

var (
	// ErrUnavailable is returned while the provider is considered down.
	ErrUnavailable   = errors.New("calendar unavailable")
	ErrReadOnly      = errors.New("calendar is read-only")
	ErrNotConfigured = errors.New("calendar provider not configured")
)

// Event is an existing calendar entry. Start and End are nil for all-day or floating events.
type Event struct {
	ID      string
	Summary string
	Start   *time.Time
	End     *time.Time
}

func (e Event) AllDay() bool {
	return e.Start == nil || e.End == nil
}

// NewEvent describes a meeting to create.
type NewEvent struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
}

// Created identifies a newly created event and its conferencing link, if any.
type Created struct {
	EventID     string
	MeetingLink string
}

// Provider is the external calendar used both as the source of busy time and as the sink
// for confirmed meetings.
type Provider interface {
	ListEvents(ctx context.Context, rangeStart, rangeEnd time.Time, tz string) ([]Event, error)
	CreateEvent(ctx context.Context, ev NewEvent) (Created, error)
}

// BusyIntervals drops all-day events and returns the rest as absolute intervals.
func BusyIntervals(events []Event) []availability.Interval {
	out := make([]availability.Interval, 0, len(events))
	for _, ev := range events {
		if ev.AllDay() {
			continue
		}
		out = append(out, availability.Interval{Start: ev.Start.UTC(), End: ev.End.UTC()})
	}
	return out
}

var wallClockLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseEventTime converts a calendar timestamp to an absolute instant. RFC3339 values carry
// their own offset; bare wall-clock values are resolved in the IANA zone tz.
func ParseEventTime(value, tz string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown time zone %q: %w", tz, err)
		}
		loc = l
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized event time %q", value)
}

// DayRange is [local midnight, next local midnight) of date in loc.
func DayRange(date availability.Date, loc *time.Location) (time.Time, time.Time) {
	return date.StartIn(loc), date.AddDays(1).StartIn(loc)
}
