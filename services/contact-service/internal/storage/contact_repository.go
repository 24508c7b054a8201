package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tonyphoesis/phoesis-website/libs/db"
	"github.com/tonyphoesis/phoesis-website/libs/outbox"
)

const SourceWebsite = "website"

type Contact struct {
	ID       string
	Name     string
	Email    string
	Company  string
	Interest string
	Message  string
	Source   string
}

type ContactRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewContactRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ContactRepository {
	return &ContactRepository{pool: pool, outbox: outboxRepo}
}

// Save stores the submission in website_contacts together with a contact.message.received.v1
// event for the notification service.
func (r *ContactRepository) Save(ctx context.Context, c *Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Source == "" {
		c.Source = SourceWebsite
	}
	payload, err := json.Marshal(outbox.ContactReceived{
		ContactID: c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Company:   c.Company,
		Interest:  c.Interest,
		Message:   c.Message,
	})
	if err != nil {
		return fmt.Errorf("build contact event: %w", err)
	}

	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO website_contacts (id, name, email, company, interest, message, source)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		`, c.ID, c.Name, c.Email, c.Company, c.Interest, c.Message, c.Source); err != nil {
			return fmt.Errorf("insert contact: %w", err)
		}
		if _, err := r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "contact",
			AggregateID:   c.ID,
			EventType:     outbox.EventContactReceived,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}
