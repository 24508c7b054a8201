package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tonyphoesis/phoesis-website/libs/db"
	"github.com/tonyphoesis/phoesis-website/libs/outbox"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/availability"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

// Record stores the booking and its booking.meeting.booked.v1 event in one transaction.
func (r *BookingRepository) Record(ctx context.Context, b *model.Booking) error {
	payload, err := json.Marshal(outbox.MeetingBooked{
		BookingID:   b.ID,
		Name:        b.Name,
		Email:       b.Email,
		Phone:       b.Phone,
		Message:     b.Message,
		TimeZone:    b.TimeZone,
		StartTime:   b.StartTime.UTC(),
		EndTime:     b.EndTime.UTC(),
		EventID:     b.CalendarEventID,
		MeetingLink: b.MeetingLink,
	})
	if err != nil {
		return fmt.Errorf("build booking event: %w", err)
	}

	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO bookings
				(id, name, email, phone, message, requester_timezone, start_time, end_time, calendar_event_id, meeting_link)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`, b.ID, b.Name, b.Email, b.Phone, b.Message, b.TimeZone, b.StartTime, b.EndTime,
			b.CalendarEventID, b.MeetingLink).Scan(&b.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if _, err := r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "booking",
			AggregateID:   b.ID,
			EventType:     outbox.EventMeetingBooked,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}

// BookedIntervals returns recorded meetings overlapping [start, end).
func (r *BookingRepository) BookedIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE start_time < $2 AND end_time > $1
		ORDER BY start_time
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// IsConflict reports a booking id that was already recorded.
func IsConflict(err error) bool {
	return db.IsUniqueViolation(err)
}
