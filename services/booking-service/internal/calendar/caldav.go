package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type CalDAVConfig struct {
	URL      string
	Username string
	Password string
	// CalendarPath selects a calendar; empty means the first one in the home set.
	CalendarPath string
	// MeetingURL is returned as the meeting link, since CalDAV has no conferencing.
	MeetingURL string
	Timeout    time.Duration
}

// CalDAV reads and writes a CalDAV calendar (iCloud, Fastmail, Nextcloud).
type CalDAV struct {
	client     *caldav.Client
	meetingURL string
	logger     *slog.Logger

	mu      sync.Mutex
	calPath string
}

func NewCalDAV(cfg CalDAVConfig, logger *slog.Logger) (*CalDAV, error) {
	if cfg.URL == "" || cfg.Username == "" {
		return nil, fmt.Errorf("caldav: url and username are required: %w", ErrNotConfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}
	return &CalDAV{
		client:     client,
		meetingURL: cfg.MeetingURL,
		logger:     logger,
		calPath:    cfg.CalendarPath,
	}, nil
}

func (c *CalDAV) calendarPath(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calPath != "" {
		return c.calPath, nil
	}
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	cals, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found")
	}
	c.calPath = cals[0].Path
	return c.calPath, nil
}

func (c *CalDAV) ListEvents(ctx context.Context, rangeStart, rangeEnd time.Time, tz string) ([]Event, error) {
	calPath, err := c.calendarPath(ctx)
	if err != nil {
		return nil, fmt.Errorf("caldav: %w", err)
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{{
				Name:  "VEVENT",
				Props: []string{"UID", "SUMMARY", "DTSTART", "DTEND", "STATUS", "TRANSP"},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: rangeStart.UTC(),
				End:   rangeEnd.UTC(),
			}},
		},
	}
	objects, err := c.client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, fmt.Errorf("caldav query: %w", err)
	}

	loc := time.UTC
	if l, err := time.LoadLocation(tz); err == nil && tz != "" {
		loc = l
	}
	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events = append(events, eventsFromCalendar(obj.Path, obj.Data, loc)...)
	}
	return events, nil
}

// eventsFromCalendar extracts VEVENTs. Floating times resolve in loc; DATE values are all-day.
func eventsFromCalendar(path string, cal *ical.Calendar, loc *time.Location) []Event {
	var out []Event
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if strings.EqualFold(propValue(child, ical.PropStatus), "CANCELLED") ||
			strings.EqualFold(propValue(child, "TRANSP"), "TRANSPARENT") {
			continue
		}
		ev := Event{ID: path, Summary: propValue(child, ical.PropSummary)}
		if uid := propValue(child, ical.PropUID); uid != "" {
			ev.ID = uid
		}
		dtStart := child.Props.Get(ical.PropDateTimeStart)
		if dtStart == nil || isDateValue(dtStart) {
			out = append(out, ev)
			continue
		}
		vevent := &ical.Event{Component: child}
		start, err := vevent.DateTimeStart(loc)
		if err != nil {
			continue
		}
		end, err := vevent.DateTimeEnd(loc)
		if err != nil || !end.After(start) {
			continue
		}
		ev.Start, ev.End = &start, &end
		out = append(out, ev)
	}
	return out
}

func isDateValue(p *ical.Prop) bool {
	return strings.EqualFold(p.Params.Get("VALUE"), "DATE") || !strings.Contains(p.Value, "T")
}

func propValue(comp *ical.Component, name string) string {
	if p := comp.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}

func (c *CalDAV) CreateEvent(ctx context.Context, ev NewEvent) (Created, error) {
	calPath, err := c.calendarPath(ctx)
	if err != nil {
		return Created{}, fmt.Errorf("caldav: %w", err)
	}
	uid := uuid.NewString()
	cal := buildCalendar(uid, ev, c.meetingURL, time.Now())
	objectPath := strings.TrimSuffix(calPath, "/") + "/" + uid + ".ics"
	if _, err := c.client.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return Created{}, fmt.Errorf("caldav put %s: %w", objectPath, err)
	}
	return Created{EventID: uid, MeetingLink: c.meetingURL}, nil
}

func buildCalendar(uid string, ev NewEvent, meetingURL string, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Phoesis//Booking//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
	event.Props.SetText(ical.PropSummary, ev.Summary)
	if ev.Description != "" {
		event.Props.SetText(ical.PropDescription, ev.Description)
	}
	if meetingURL != "" {
		event.Props.SetText(ical.PropLocation, meetingURL)
	}
	for _, email := range ev.Attendees {
		if email == "" {
			continue
		}
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = "mailto:" + email
		event.Props.Add(attendee)
	}
	cal.Children = append(cal.Children, event.Component)
	return cal
}
