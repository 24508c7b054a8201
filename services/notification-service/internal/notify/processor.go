package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tonyphoesis/phoesis-website/libs/kafkax"
	"github.com/tonyphoesis/phoesis-website/libs/outbox"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/email"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/storage"
)

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Config struct {
	Sender     email.Sender
	Recorder   Recorder
	Team       []string
	OfficeZone *time.Location
	Logger     *slog.Logger
	Now        func() time.Time
}

// Processor turns booking and contact events into emails. Delivery is attempted once per message and the
// outcome is recorded either way.
type Processor struct {
	cfg Config
}

func NewProcessor(cfg Config) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OfficeZone == nil {
		cfg.OfficeZone = time.UTC
	}
	return &Processor{cfg: cfg}
}

// Handle is a consumer.Handler. Malformed payloads are logged and dropped.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)

	var messages []email.Message
	switch meta.EventType {
	case outbox.EventMeetingBooked:
		var evt outbox.MeetingBooked
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			p.cfg.Logger.Error("invalid booking payload", "err", err, "event_id", meta.EventID)
			return nil
		}
		if evt.BookingID == "" || evt.StartTime.IsZero() {
			p.cfg.Logger.Error("missing booking fields", "event_id", meta.EventID)
			return nil
		}
		messages = BookingMessages(evt, p.cfg.Team, p.cfg.OfficeZone)
	case outbox.EventContactReceived:
		var evt outbox.ContactReceived
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			p.cfg.Logger.Error("invalid contact payload", "err", err, "event_id", meta.EventID)
			return nil
		}
		if evt.Name == "" || evt.Email == "" {
			p.cfg.Logger.Error("missing contact fields", "event_id", meta.EventID)
			return nil
		}
		if len(p.cfg.Team) == 0 {
			p.cfg.Logger.Warn("no team recipients configured", "event_id", meta.EventID)
			return nil
		}
		messages = []email.Message{ContactMessage(evt, p.cfg.Team, p.cfg.OfficeZone, p.cfg.Now())}
	default:
		p.cfg.Logger.Warn("unsupported event type", "event_type", meta.EventType, "event_id", meta.EventID)
		return nil
	}

	var errs []error
	for _, m := range messages {
		if err := p.deliver(ctx, meta, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) deliver(ctx context.Context, meta kafkax.EventMeta, m email.Message) error {
	n := storage.Notification{
		EventID:    meta.EventID,
		EventType:  meta.EventType,
		Recipients: m.To,
		Subject:    m.Subject,
		Provider:   p.cfg.Sender.ProviderID(),
		Status:     storage.StatusSent,
	}
	if err := p.cfg.Sender.Send(ctx, m); err != nil {
		n.Status = storage.StatusFailed
		n.Error = err.Error()
		p.cfg.Logger.Error("email send failed", "err", err, "event_id", meta.EventID, "recipients", strings.Join(m.To, ","))
	}
	if err := p.cfg.Recorder.Insert(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	p.cfg.Logger.Info("notification processed", "event_id", meta.EventID, "event_type", meta.EventType, "status", n.Status)
	return nil
}
