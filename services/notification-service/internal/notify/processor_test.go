package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyphoesis/phoesis-website/libs/kafkax"
	"github.com/tonyphoesis/phoesis-website/libs/outbox"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/email"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/storage"
)

type fakeSender struct {
	sent []email.Message
	fail map[string]error
}

func (f *fakeSender) ProviderID() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, m email.Message) error {
	if err := f.fail[m.To[0]]; err != nil {
		return err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeRecorder struct {
	rows []storage.Notification
	err  error
}

func (f *fakeRecorder) Insert(_ context.Context, n storage.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, n)
	return nil
}

var team = []string{"tony@phoesis.io", "eric@phoesis.io"}

func phoenix(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Phoenix")
	require.NoError(t, err)
	return loc
}

func eventMessage(t *testing.T, eventType, id string, payload any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafka.Message{
		Topic:   eventType,
		Value:   raw,
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: id, EventType: eventType}),
	}
}

func bookedEvent() outbox.MeetingBooked {
	return outbox.MeetingBooked{
		BookingID:   "b-1",
		Name:        "Ada",
		Email:       "ada@example.com",
		TimeZone:    "America/New_York",
		StartTime:   time.Date(2025, 11, 28, 15, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 11, 28, 16, 0, 0, 0, time.UTC),
		MeetingLink: "https://meet.google.com/abc",
	}
}

func TestHandle_BookingNotifiesTeamAndRequester(t *testing.T) {
	sender := &fakeSender{}
	rec := &fakeRecorder{}
	p := NewProcessor(Config{Sender: sender, Recorder: rec, Team: team, OfficeZone: phoenix(t)})

	err := p.Handle(context.Background(), eventMessage(t, outbox.EventMeetingBooked, "e-1", bookedEvent()))
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, team, sender.sent[0].To)
	assert.Equal(t, "New meeting booked with Ada", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "8:00 AM MST")
	assert.Contains(t, sender.sent[0].Body, "10:00 AM EST")
	assert.Equal(t, []string{"ada@example.com"}, sender.sent[1].To)
	assert.Contains(t, sender.sent[1].Body, "https://meet.google.com/abc")

	require.Len(t, rec.rows, 2)
	for _, row := range rec.rows {
		assert.Equal(t, storage.StatusSent, row.Status)
		assert.Equal(t, "e-1", row.EventID)
		assert.Equal(t, "fake", row.Provider)
	}
}

func TestHandle_ContactSubject(t *testing.T) {
	sender := &fakeSender{}
	p := NewProcessor(Config{Sender: sender, Recorder: &fakeRecorder{}, Team: team, OfficeZone: phoenix(t)})

	err := p.Handle(context.Background(), eventMessage(t, outbox.EventContactReceived, "e-2", outbox.ContactReceived{
		ContactID: "c-1",
		Name:      "Grace",
		Email:     "grace@example.com",
		Interest:  "AI strategy",
		Message:   "hello",
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "New AI strategy inquiry from Grace", sender.sent[0].Subject)
	assert.Equal(t, "grace@example.com", sender.sent[0].ReplyTo)
	assert.Contains(t, sender.sent[0].Body, "Company: Not provided")
}

func TestHandle_SendFailureIsRecorded(t *testing.T) {
	sender := &fakeSender{fail: map[string]error{"ada@example.com": errors.New("mailbox unavailable")}}
	rec := &fakeRecorder{}
	p := NewProcessor(Config{Sender: sender, Recorder: rec, Team: team, OfficeZone: phoenix(t)})

	require.NoError(t, p.Handle(context.Background(), eventMessage(t, outbox.EventMeetingBooked, "e-3", bookedEvent())))
	require.Len(t, rec.rows, 2)
	assert.Equal(t, storage.StatusSent, rec.rows[0].Status)
	assert.Equal(t, storage.StatusFailed, rec.rows[1].Status)
	assert.Equal(t, "mailbox unavailable", rec.rows[1].Error)
}

func TestHandle_RecorderErrorPropagates(t *testing.T) {
	p := NewProcessor(Config{Sender: &fakeSender{}, Recorder: &fakeRecorder{err: errors.New("db down")}, Team: team})
	err := p.Handle(context.Background(), eventMessage(t, outbox.EventMeetingBooked, "e-4", bookedEvent()))
	assert.Error(t, err)
}

func TestHandle_DropsMalformedAndUnknown(t *testing.T) {
	sender := &fakeSender{}
	p := NewProcessor(Config{Sender: sender, Recorder: &fakeRecorder{}, Team: team})

	bad := kafka.Message{
		Topic:   outbox.EventMeetingBooked,
		Value:   []byte("{"),
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: "e-5", EventType: outbox.EventMeetingBooked}),
	}
	assert.NoError(t, p.Handle(context.Background(), bad))
	assert.NoError(t, p.Handle(context.Background(), eventMessage(t, "billing.invoice.v1", "e-6", map[string]string{})))
	assert.Empty(t, sender.sent)
}
