package storage

import (
	"context"

	"github.com/tonyphoesis/phoesis-website/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	EventID    string
	EventType  string
	Recipients []string
	Subject    string
	Provider   string
	Status     string
	Error      string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, event_type, recipients, subject, provider, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, n.EventID, n.EventType, n.Recipients, n.Subject, n.Provider, n.Status, n.Error)
	return err
}
