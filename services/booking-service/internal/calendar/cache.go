package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore is the subset of a Redis client the busy cache uses.
type CacheStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Cache is a read-through Redis cache in front of ListEvents. Creating an event bumps a
// generation counter so cached ranges are not served after a booking.
type Cache struct {
	next   Provider
	store  CacheStore
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCache(next Provider, store CacheStore, ttl time.Duration, prefix string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "calendar:busy:"
	}
	return &Cache{next: next, store: store, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *Cache) generation(ctx context.Context) string {
	gen, err := c.store.Get(ctx, c.prefix+"gen").Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("calendar cache generation read failed", "err", err)
		}
		return "0"
	}
	return gen
}

func (c *Cache) key(gen string, rangeStart, rangeEnd time.Time, tz string) string {
	return fmt.Sprintf("%s%s:%d:%d:%s", c.prefix, gen, rangeStart.Unix(), rangeEnd.Unix(), tz)
}

func (c *Cache) ListEvents(ctx context.Context, rangeStart, rangeEnd time.Time, tz string) ([]Event, error) {
	key := c.key(c.generation(ctx), rangeStart, rangeEnd, tz)

	raw, err := c.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var events []Event
		if jerr := json.Unmarshal(raw, &events); jerr == nil {
			return events, nil
		}
		c.logger.Warn("calendar cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("calendar cache read failed", "err", err)
	}

	events, err := c.next.ListEvents(ctx, rangeStart, rangeEnd, tz)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(events); err == nil {
		if err := c.store.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("calendar cache write failed", "err", err)
		}
	}
	return events, nil
}

func (c *Cache) CreateEvent(ctx context.Context, ev NewEvent) (Created, error) {
	created, err := c.next.CreateEvent(ctx, ev)
	if err != nil {
		return Created{}, err
	}
	if err := c.store.Incr(ctx, c.prefix+"gen").Err(); err != nil {
		c.logger.Warn("calendar cache invalidation failed", "err", err)
	}
	return created, nil
}

// Invalidate drops every cached range.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.Incr(ctx, c.prefix+"gen").Err()
}
