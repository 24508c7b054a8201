package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func (c *BreakerConfig) normalize() {
	if c.Name == "" {
		c.Name = "calendar"
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
}

// Breaker stops calling a failing provider for a while and reports ErrUnavailable instead.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreaker(next Provider, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.normalize()
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("calendar circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations and read-only refusals say nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrReadOnly)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (b *Breaker) ListEvents(ctx context.Context, rangeStart, rangeEnd time.Time, tz string) ([]Event, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.ListEvents(ctx, rangeStart, rangeEnd, tz)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	events, _ := res.([]Event)
	return events, nil
}

func (b *Breaker) CreateEvent(ctx context.Context, ev NewEvent) (Created, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.CreateEvent(ctx, ev)
	})
	if err != nil {
		return Created{}, mapBreakerErr(err)
	}
	created, _ := res.(Created)
	return created, nil
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
