package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"
	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
)

const (
	defaultICSRefresh      = "*/5 * * * *"
	maxOccurrencesPerEvent = 2000
	maxICSBodyBytes        = 8 << 20
)

type ICSConfig struct {
	// URL is an http(s) feed address or a local file path.
	URL string
	// Refresh is a cron schedule for re-fetching the feed.
	Refresh string
	// DefaultZone resolves floating times in the feed.
	DefaultZone string
	Timeout     time.Duration
}

// ICSFeed is a read-only provider backed by a published iCalendar feed. The parsed feed is
// held in memory and replaced on every scheduled refresh.
type ICSFeed struct {
	url        string
	refresh    string
	defaultLoc *time.Location
	client     *http.Client
	logger     *slog.Logger

	mu       sync.RWMutex
	events   []feedEvent
	loadedAt time.Time

	cron *cron.Cron
}

type feedEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	RRule   string
	ExDates []time.Time
}

func NewICSFeed(cfg ICSConfig, logger *slog.Logger) (*ICSFeed, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ics: feed url is required: %w", ErrNotConfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}
	refresh := cfg.Refresh
	if refresh == "" {
		refresh = defaultICSRefresh
	}
	loc := time.UTC
	if cfg.DefaultZone != "" {
		l, err := time.LoadLocation(cfg.DefaultZone)
		if err != nil {
			return nil, fmt.Errorf("ics: default zone: %w", err)
		}
		loc = l
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ICSFeed{
		url:        cfg.URL,
		refresh:    refresh,
		defaultLoc: loc,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Start loads the feed once and schedules refreshes until ctx is done.
func (f *ICSFeed) Start(ctx context.Context) error {
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warn("initial ics load failed", "err", err)
	}
	c := cron.New()
	if _, err := c.AddFunc(f.refresh, func() {
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := f.Refresh(rctx); err != nil {
			f.logger.Warn("ics refresh failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("ics refresh schedule %q: %w", f.refresh, err)
	}
	f.cron = c
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// Refresh fetches and parses the feed, replacing the cached events on success.
func (f *ICSFeed) Refresh(ctx context.Context) error {
	body, err := f.fetch(ctx)
	if err != nil {
		return err
	}
	events, err := parseFeed(body, f.defaultLoc, f.logger)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.events = events
	f.loadedAt = time.Now()
	f.mu.Unlock()
	f.logger.Info("ics feed loaded", "event_count", len(events))
	return nil
}

func (f *ICSFeed) fetch(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(f.url, "http://") && !strings.HasPrefix(f.url, "https://") {
		body, err := os.ReadFile(f.url)
		if err != nil {
			return nil, fmt.Errorf("ics read: %w", err)
		}
		return body, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ics fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics fetch: %w", responseError(resp))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxICSBodyBytes))
}

func (f *ICSFeed) snapshot(ctx context.Context) ([]feedEvent, error) {
	f.mu.RLock()
	events, loaded := f.events, !f.loadedAt.IsZero()
	f.mu.RUnlock()
	if loaded {
		return events, nil
	}
	if err := f.Refresh(ctx); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.events, nil
}

func (f *ICSFeed) ListEvents(ctx context.Context, rangeStart, rangeEnd time.Time, _ string) ([]Event, error) {
	events, err := f.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return expandFeed(events, rangeStart, rangeEnd, f.logger), nil
}

func (f *ICSFeed) CreateEvent(context.Context, NewEvent) (Created, error) {
	return Created{}, ErrReadOnly
}

func parseFeed(body []byte, defaultLoc *time.Location, logger *slog.Logger) ([]feedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics parse: %w", err)
	}
	var out []feedEvent
	for _, ve := range cal.Events() {
		ev, ok, err := parseVEvent(ve, defaultLoc)
		if err != nil {
			logger.Warn("skip ics event", "err", err)
			continue
		}
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, defaultLoc *time.Location) (feedEvent, bool, error) {
	var ev feedEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return ev, false, nil
	}
	if p := ve.GetProperty(ical.ComponentProperty("TRANSP")); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return ev, false, nil
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, false, fmt.Errorf("event %q has no DTSTART", ev.UID)
	}
	ev.AllDay = paramEquals(dtStart.ICalParameters, "VALUE", "DATE") || !strings.Contains(dtStart.Value, "T")
	start, err := parseICSValue(dtStart.Value, firstParam(dtStart.ICalParameters, "TZID"), defaultLoc)
	if err != nil {
		return ev, false, fmt.Errorf("event %q DTSTART: %w", ev.UID, err)
	}
	ev.Start = start
	ev.End = start
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, err := parseICSValue(dtEnd.Value, firstParam(dtEnd.ICalParameters, "TZID"), defaultLoc)
		if err != nil {
			return ev, false, fmt.Errorf("event %q DTEND: %w", ev.UID, err)
		}
		ev.End = end
	} else if p := ve.GetProperty(ical.ComponentPropertyDuration); p != nil {
		d, err := parseICSDuration(p.Value)
		if err != nil {
			return ev, false, fmt.Errorf("event %q DURATION: %w", ev.UID, err)
		}
		ev.End = start.Add(d)
	} else if ev.AllDay {
		ev.End = start.AddDate(0, 0, 1)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tzid := firstParam(p.ICalParameters, "TZID")
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSValue(part, tzid, start.Location()); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	return ev, true, nil
}

// parseICSValue handles UTC, zoned, floating and DATE forms.
func parseICSValue(v, tzid string, defaultLoc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	loc := defaultLoc
	if tzid != "" {
		l, err := time.LoadLocation(tzid)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown TZID %q: %w", tzid, err)
		}
		loc = l
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// parseICSDuration reads an RFC 5545 duration such as PT1H or P1DT30M.
func parseICSDuration(v string) (time.Duration, error) {
	prop := goical.NewProp(goical.PropDuration)
	prop.Value = strings.TrimSpace(v)
	return prop.Duration()
}

func firstParam(params map[string][]string, key string) string {
	if vs := params[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func paramEquals(params map[string][]string, key, want string) bool {
	return strings.EqualFold(firstParam(params, key), want)
}

// expandFeed returns the events overlapping [rangeStart, rangeEnd), expanding RRULEs.
// All-day events are returned without times.
func expandFeed(events []feedEvent, rangeStart, rangeEnd time.Time, logger *slog.Logger) []Event {
	var out []Event
	for _, ev := range events {
		if ev.RRule == "" {
			if overlaps(ev.Start, ev.End, rangeStart, rangeEnd) {
				out = append(out, toEvent(ev, ev.Start, ev.End))
			}
			continue
		}
		r, err := rrule.StrToRRule(ev.RRule)
		if err != nil {
			logger.Warn("skip ics recurrence", "uid", ev.UID, "rrule", ev.RRule, "err", err)
			continue
		}
		r.DTStart(ev.Start)
		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(ev.Start.Location()))
		}
		dur := ev.End.Sub(ev.Start)
		from := rangeStart.Add(-dur).In(ev.Start.Location())
		occurrences := set.Between(from, rangeEnd.In(ev.Start.Location()), true)
		if len(occurrences) > maxOccurrencesPerEvent {
			occurrences = occurrences[:maxOccurrencesPerEvent]
		}
		for _, occ := range occurrences {
			end := occ.Add(dur)
			if ev.AllDay {
				end = occ.AddDate(0, 0, 1)
			}
			if overlaps(occ, end, rangeStart, rangeEnd) {
				out = append(out, toEvent(ev, occ, end))
			}
		}
	}
	return out
}

func toEvent(ev feedEvent, start, end time.Time) Event {
	out := Event{ID: ev.UID, Summary: ev.Summary}
	if !ev.AllDay {
		out.Start, out.End = &start, &end
	}
	return out
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
