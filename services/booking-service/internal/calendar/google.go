package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	defaultGoogleBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
	BaseURL      string
	TokenURL     string
	Timeout      time.Duration
}

// Google talks to the Calendar v3 REST API with an offline refresh token.
type Google struct {
	client     *http.Client
	baseURL    string
	calendarID string
	logger     *slog.Logger
}

func NewGoogle(cfg GoogleConfig, logger *slog.Logger) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("google: client id, secret and refresh token are required: %w", ErrNotConfigured)
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultGoogleTokenURL
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	src := conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewGoogleWithTokenSource(cfg, src, logger), nil
}

// NewGoogleWithTokenSource builds a client around an existing token source.
func NewGoogleWithTokenSource(cfg GoogleConfig, src oauth2.TokenSource, logger *slog.Logger) *Google {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Google{
		client: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, src),
				Base:   otelhttp.NewTransport(http.DefaultTransport),
			},
		},
		baseURL:    baseURL,
		calendarID: calendarID,
		logger:     logger,
	}
}

type googleTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleItem struct {
	ID           string     `json:"id"`
	Summary      string     `json:"summary"`
	Status       string     `json:"status"`
	Transparency string     `json:"transparency"`
	Start        googleTime `json:"start"`
	End          googleTime `json:"end"`
}

type googleList struct {
	Items         []googleItem `json:"items"`
	NextPageToken string       `json:"nextPageToken"`
}

func (g *Google) eventsURL() string {
	return fmt.Sprintf("%s/calendars/%s/events", g.baseURL, url.PathEscape(g.calendarID))
}

func (g *Google) ListEvents(ctx context.Context, rangeStart, rangeEnd time.Time, tz string) ([]Event, error) {
	q := url.Values{}
	q.Set("timeMin", rangeStart.UTC().Format(time.RFC3339))
	q.Set("timeMax", rangeEnd.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", "250")
	if tz != "" {
		q.Set("timeZone", tz)
	}

	var events []Event
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.eventsURL()+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var page googleList
		if err := g.do(req, &page); err != nil {
			return nil, fmt.Errorf("google list events: %w", err)
		}
		for _, item := range page.Items {
			ev, ok := g.toEvent(item, tz)
			if ok {
				events = append(events, ev)
			}
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		q.Set("pageToken", page.NextPageToken)
	}
}

func (g *Google) toEvent(item googleItem, tz string) (Event, bool) {
	if item.Status == "cancelled" || item.Transparency == "transparent" {
		return Event{}, false
	}
	ev := Event{ID: item.ID, Summary: item.Summary}
	if item.Start.DateTime == "" || item.End.DateTime == "" {
		// start.date: all-day
		return ev, item.Start.Date != ""
	}
	start, err := ParseEventTime(item.Start.DateTime, firstNonEmpty(item.Start.TimeZone, tz))
	if err != nil {
		g.logger.Warn("skip google event", "event_id", item.ID, "err", err)
		return Event{}, false
	}
	end, err := ParseEventTime(item.End.DateTime, firstNonEmpty(item.End.TimeZone, tz))
	if err != nil {
		g.logger.Warn("skip google event", "event_id", item.ID, "err", err)
		return Event{}, false
	}
	ev.Start, ev.End = &start, &end
	return ev, true
}

type googleAttendee struct {
	Email string `json:"email"`
}

type googleInsert struct {
	Summary        string           `json:"summary"`
	Description    string           `json:"description,omitempty"`
	Start          googleTime       `json:"start"`
	End            googleTime       `json:"end"`
	Attendees      []googleAttendee `json:"attendees,omitempty"`
	ConferenceData struct {
		CreateRequest struct {
			RequestID             string `json:"requestId"`
			ConferenceSolutionKey struct {
				Type string `json:"type"`
			} `json:"conferenceSolutionKey"`
		} `json:"createRequest"`
	} `json:"conferenceData"`
}

type googleInserted struct {
	ID             string `json:"id"`
	HangoutLink    string `json:"hangoutLink"`
	ConferenceData struct {
		EntryPoints []struct {
			EntryPointType string `json:"entryPointType"`
			URI            string `json:"uri"`
		} `json:"entryPoints"`
	} `json:"conferenceData"`
}

// CreateEvent inserts the meeting with a Google Meet conference and invites the attendees.
func (g *Google) CreateEvent(ctx context.Context, ev NewEvent) (Created, error) {
	body := googleInsert{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       googleTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         googleTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
	}
	for _, email := range ev.Attendees {
		if email != "" {
			body.Attendees = append(body.Attendees, googleAttendee{Email: email})
		}
	}
	body.ConferenceData.CreateRequest.RequestID = uuid.NewString()
	body.ConferenceData.CreateRequest.ConferenceSolutionKey.Type = "hangoutsMeet"

	payload, err := json.Marshal(body)
	if err != nil {
		return Created{}, err
	}
	q := url.Values{}
	q.Set("conferenceDataVersion", "1")
	q.Set("sendUpdates", "all")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.eventsURL()+"?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return Created{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out googleInserted
	if err := g.do(req, &out); err != nil {
		return Created{}, fmt.Errorf("google create event: %w", err)
	}
	created := Created{EventID: out.ID, MeetingLink: out.HangoutLink}
	if created.MeetingLink == "" {
		for _, ep := range out.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				created.MeetingLink = ep.URI
				break
			}
		}
	}
	return created, nil
}

func (g *Google) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
