package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tonyphoesis/phoesis-website/libs/httpx"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/availability"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/calendar"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/model"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/storage"
)

// BookingStore persists confirmed bookings and exposes them as extra busy time.
type BookingStore interface {
	Record(ctx context.Context, b *model.Booking) error
	BookedIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error)
}

// IdempotencyStore guards POST /booking against double submits.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (stored []byte, started bool, err error)
	Complete(ctx context.Context, key string, response []byte) error
	Abort(ctx context.Context, key string) error
}

type invalidator interface {
	Invalidate(ctx context.Context) error
}

type BookingConfig struct {
	Engine *availability.Engine
	// Listing serves the availability query and may be cached.
	Listing calendar.Provider
	// Calendar is read for a fresh snapshot when booking, and receives the new event.
	Calendar calendar.Provider
	Store    BookingStore
	// Idempotency is optional.
	Idempotency IdempotencyStore
	// TeamEmails are invited to every meeting.
	TeamEmails []string
	Logger     *slog.Logger
	Now        func() time.Time
}

type BookingHandler struct {
	engine     *availability.Engine
	listing    calendar.Provider
	calendar   calendar.Provider
	store      BookingStore
	idem       IdempotencyStore
	teamEmails []string
	logger     *slog.Logger
	now        func() time.Time
}

func NewBookingHandler(cfg BookingConfig) *BookingHandler {
	h := &BookingHandler{
		engine:     cfg.Engine,
		listing:    cfg.Listing,
		calendar:   cfg.Calendar,
		store:      cfg.Store,
		idem:       cfg.Idempotency,
		teamEmails: cfg.TeamEmails,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if h.listing == nil {
		h.listing = h.calendar
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// ServeHTTP routes GET to availability and POST to booking.
func (h *BookingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.Availability(w, r)
	case http.MethodPost:
		h.Book(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type slotItem struct {
	Time      string `json:"time"`
	Label     string `json:"label"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type availabilityResponse struct {
	Date      string     `json:"date"`
	TimeZone  string     `json:"timezone"`
	BusySlots []string   `json:"busySlots"`
	Slots     []slotItem `json:"slots"`
	Degraded  bool       `json:"degraded,omitempty"`
}

// Availability answers GET /api/v1/booking?date=YYYY-MM-DD&timezone=<IANA>.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := availability.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	tz, loc, err := h.resolveZone(q.Get("timezone"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	rangeStart, rangeEnd := calendar.DayRange(date, loc)
	busy, err := h.busy(ctx, h.listing, rangeStart, rangeEnd, tz)
	degraded := err != nil
	if degraded {
		h.logger.Warn("calendar lookup failed; reporting no availability", "err", err, "date", date.String(), "timezone", tz)
	}

	grid := h.engine.ComputeDaySlots(date, loc, busy)
	now := h.now()
	resp := availabilityResponse{
		Date:      date.String(),
		TimeZone:  tz,
		BusySlots: grid.UnavailableLabels(now),
		Slots:     make([]slotItem, 0, len(grid.Slots)),
		Degraded:  degraded,
	}
	if degraded {
		resp.BusySlots = make([]string, 0, len(grid.Slots))
	}
	for _, s := range grid.Slots {
		available := !degraded && s.Bookable && !s.Start.Before(now)
		if degraded {
			resp.BusySlots = append(resp.BusySlots, s.Label)
		}
		resp.Slots = append(resp.Slots, slotItem{
			Time:      s.Label,
			Label:     s.Start.Format("3:04 PM"),
			Start:     s.Start.Format(time.RFC3339),
			End:       s.End.Format(time.RFC3339),
			Available: available,
		})
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type bookRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	TimeZone string `json:"timezone"`
	Message  string `json:"message"`
}

type bookResponse struct {
	BookingID   string `json:"bookingId"`
	EventID     string `json:"eventId"`
	MeetingLink string `json:"meetingLink,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

const (
	maxNameLen    = 200
	maxMessageLen = 5000
)

// Book answers POST /api/v1/booking.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Message = strings.TrimSpace(req.Message)

	if req.Name == "" || req.Email == "" || strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.Time) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name, email, date and time are required")
		return
	}
	if len(req.Name) > maxNameLen || len(req.Message) > maxMessageLen {
		httpx.WriteError(w, http.StatusBadRequest, "field too long")
		return
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		httpx.WriteError(w, http.StatusBadRequest, "invalid email")
		return
	}
	date, err := availability.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	tz, loc, err := h.resolveZone(req.TimeZone)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	chosen, err := h.engine.ResolveSlot(date, loc, strings.TrimSpace(req.Time))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "time must be HH:MM")
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idem != nil {
		stored, started, err := h.idem.Begin(ctx, key)
		switch {
		case err != nil:
			h.logger.Warn("idempotency lookup failed; continuing without it", "err", err)
			key = ""
		case stored != nil:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(stored)
			return
		case !started:
			httpx.WriteError(w, http.StatusConflict, "a booking with this Idempotency-Key is in progress")
			return
		}
	} else {
		key = ""
	}

	status, body := h.book(ctx, req, date, tz, loc, chosen)
	payload, err := json.Marshal(body)
	if err != nil {
		status, payload = http.StatusInternalServerError, []byte(`{"error":"failed to build response"}`)
	}
	if key != "" {
		// Detached from the request so a client disconnect still settles the key.
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		var ierr error
		if status == http.StatusCreated {
			ierr = h.idem.Complete(ictx, key, payload)
		} else {
			ierr = h.idem.Abort(ictx, key)
		}
		cancel()
		if ierr != nil {
			h.logger.Warn("idempotency update failed", "err", ierr)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (h *BookingHandler) book(ctx context.Context, req bookRequest, date availability.Date, tz string, loc *time.Location, chosen time.Time) (int, any) {
	if chosen.Before(h.now()) {
		return http.StatusUnprocessableEntity, httpx.ErrorBody{
			Error:  "selected time has already passed",
			Reason: string(availability.ReasonOutOfWindow),
		}
	}

	rangeStart, rangeEnd := calendar.DayRange(date, loc)
	snapshot, err := h.busy(ctx, h.calendar, rangeStart, rangeEnd, tz)
	if err != nil {
		h.logger.Error("calendar snapshot failed", "err", err)
		return http.StatusBadGateway, httpx.ErrorBody{Error: "calendar unavailable, please try again"}
	}

	res := h.engine.ReserveSlot(date, loc, chosen, snapshot)
	if !res.Confirmed {
		status := http.StatusUnprocessableEntity
		msg := "selected time is outside working hours"
		switch res.Reason {
		case availability.ReasonAlreadyBooked:
			status, msg = http.StatusConflict, "selected time is no longer available"
		case availability.ReasonInvalidAlignment:
			msg = "selected time is not a valid slot"
		}
		return status, httpx.ErrorBody{Error: msg, Reason: string(res.Reason)}
	}

	attendees := append([]string{req.Email}, h.teamEmails...)
	created, err := h.calendar.CreateEvent(ctx, calendar.NewEvent{
		Summary:     "Meeting with " + req.Name,
		Description: describe(req, tz),
		Start:       res.Start,
		End:         res.End,
		TimeZone:    tz,
		Attendees:   attendees,
	})
	if err != nil {
		h.logger.Error("calendar create event failed", "err", err)
		return http.StatusBadGateway, httpx.ErrorBody{Error: "could not create the meeting, please try again"}
	}
	if inv, ok := h.listing.(invalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			h.logger.Warn("availability cache invalidation failed", "err", err)
		}
	}

	booking := &model.Booking{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Message:         req.Message,
		TimeZone:        tz,
		StartTime:       res.Start,
		EndTime:         res.End,
		CalendarEventID: created.EventID,
		MeetingLink:     created.MeetingLink,
	}
	if h.store != nil {
		// The event exists in the calendar; the audit trail is best effort.
		if err := h.store.Record(ctx, booking); storage.IsConflict(err) {
			h.logger.Warn("booking already recorded", "err", err, "booking_id", booking.ID, "event_id", created.EventID)
		} else if err != nil {
			h.logger.Error("booking audit record failed", "err", err, "booking_id", booking.ID, "event_id", created.EventID)
		}
	}
	h.logger.Info("meeting booked", "booking_id", booking.ID, "event_id", created.EventID, "start", res.Start.UTC().Format(time.RFC3339))

	return http.StatusCreated, bookResponse{
		BookingID:   booking.ID,
		EventID:     created.EventID,
		MeetingLink: created.MeetingLink,
		Start:       res.Start.Format(time.RFC3339),
		End:         res.End.Format(time.RFC3339),
	}
}

// busy merges calendar events with recorded bookings. Only the calendar is authoritative; a
// failing store is logged and ignored.
func (h *BookingHandler) busy(ctx context.Context, p calendar.Provider, start, end time.Time, tz string) ([]availability.Interval, error) {
	events, err := p.ListEvents(ctx, start, end, tz)
	if err != nil {
		return nil, err
	}
	busy := calendar.BusyIntervals(events)
	if h.store != nil {
		booked, err := h.store.BookedIntervals(ctx, start, end)
		if err != nil {
			h.logger.Warn("booked intervals lookup failed", "err", err)
		} else {
			busy = append(busy, booked...)
		}
	}
	return busy, nil
}

var errUnknownZone = errors.New("timezone must be an IANA zone name")

func (h *BookingHandler) resolveZone(raw string) (string, *time.Location, error) {
	tz := strings.TrimSpace(raw)
	if tz == "" {
		home := h.engine.Policy().HomeZone
		return home.String(), home, nil
	}
	if tz == "Local" {
		return "", nil, errUnknownZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", nil, errUnknownZone
	}
	return tz, loc, nil
}

func describe(req bookRequest, tz string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\n", req.Name, req.Email)
	if req.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", req.Phone)
	}
	fmt.Fprintf(&b, "Time zone: %s\n", tz)
	if req.Message != "" {
		fmt.Fprintf(&b, "\nMessage:\n%s\n", req.Message)
	}
	return b.String()
}
