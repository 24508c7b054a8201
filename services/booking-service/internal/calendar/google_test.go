package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestGoogle(t *testing.T, h http.HandlerFunc) *Google {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
	return NewGoogleWithTokenSource(GoogleConfig{BaseURL: srv.URL, CalendarID: "team@example.com"}, src, nil)
}

func TestGoogle_ListEvents(t *testing.T) {
	var calls int
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/calendars/team@example.com/events", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "2025-11-28T07:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "America/Phoenix", q.Get("timeZone"))

		if q.Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"items":[
				{"id":"a","summary":"Standup","start":{"dateTime":"2025-11-28T17:00:00-07:00"},"end":{"dateTime":"2025-11-28T18:00:00-07:00"}},
				{"id":"b","summary":"Holiday","start":{"date":"2025-11-28"},"end":{"date":"2025-11-29"}},
				{"id":"c","status":"cancelled","start":{"dateTime":"2025-11-28T09:00:00-07:00"},"end":{"dateTime":"2025-11-28T10:00:00-07:00"}}
			],"nextPageToken":"p2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[
			{"id":"d","transparency":"transparent","start":{"dateTime":"2025-11-28T11:00:00-07:00"},"end":{"dateTime":"2025-11-28T12:00:00-07:00"}},
			{"id":"e","start":{"dateTime":"2025-11-28T13:00:00","timeZone":"America/Phoenix"},"end":{"dateTime":"2025-11-28T13:30:00","timeZone":"America/Phoenix"}}
		]}`))
	})

	start := time.Date(2025, 11, 28, 7, 0, 0, 0, time.UTC)
	events, err := g.ListEvents(context.Background(), start, start.Add(24*time.Hour), "America/Phoenix")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].ID)
	assert.True(t, events[1].AllDay())
	assert.Equal(t, "e", events[2].ID)
	assert.Equal(t, 20, events[2].Start.UTC().Hour())

	busy := BusyIntervals(events)
	require.Len(t, busy, 2)
	assert.Equal(t, time.Date(2025, 11, 29, 0, 0, 0, 0, time.UTC), busy[0].Start)
}

func TestGoogle_CreateEvent(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "1", r.URL.Query().Get("conferenceDataVersion"))

		var body googleInsert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Meeting with Ada", body.Summary)
		assert.Equal(t, "hangoutsMeet", body.ConferenceData.CreateRequest.ConferenceSolutionKey.Type)
		assert.NotEmpty(t, body.ConferenceData.CreateRequest.RequestID)
		assert.Equal(t, "America/New_York", body.Start.TimeZone)
		require.Len(t, body.Attendees, 2)

		_, _ = w.Write([]byte(`{"id":"evt-1","conferenceData":{"entryPoints":[{"entryPointType":"phone","uri":"tel:1"},{"entryPointType":"video","uri":"https://meet.google.com/abc"}]}}`))
	})

	start := time.Date(2025, 11, 28, 10, 0, 0, 0, time.UTC)
	created, err := g.CreateEvent(context.Background(), NewEvent{
		Summary:   "Meeting with Ada",
		Start:     start,
		End:       start.Add(time.Hour),
		TimeZone:  "America/New_York",
		Attendees: []string{"ada@example.com", "", "team@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", created.EventID)
	assert.Equal(t, "https://meet.google.com/abc", created.MeetingLink)
}

func TestGoogle_ErrorStatus(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rateLimitExceeded"}`, http.StatusTooManyRequests)
	})

	_, err := g.ListEvents(context.Background(), time.Now(), time.Now().Add(time.Hour), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestNewGoogle_RequiresCredentials(t *testing.T) {
	_, err := NewGoogle(GoogleConfig{ClientID: "id"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
