package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPending = "pending"

// Idempotency remembers the response for an Idempotency-Key so a double-submitted booking
// form replays the first result instead of creating a second event.
type Idempotency struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewIdempotency(rdb redis.Cmdable, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{rdb: rdb, ttl: ttl, prefix: "booking:idem:"}
}

// Begin claims key. It returns started=true for the first caller, the stored response for a
// completed key, or neither while another request holds the claim.
func (s *Idempotency) Begin(ctx context.Context, key string) (stored []byte, started bool, err error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, idempotencyPending, s.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}
	val, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try again once.
		ok, err = s.rdb.SetNX(ctx, s.prefix+key, idempotencyPending, s.ttl).Result()
		return nil, ok, err
	}
	if err != nil {
		return nil, false, err
	}
	if string(val) == idempotencyPending {
		return nil, false, nil
	}
	return val, false, nil
}

func (s *Idempotency) Complete(ctx context.Context, key string, response []byte) error {
	return s.rdb.Set(ctx, s.prefix+key, response, s.ttl).Err()
}

// Abort releases a claim so the client can retry with the same key.
func (s *Idempotency) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}
