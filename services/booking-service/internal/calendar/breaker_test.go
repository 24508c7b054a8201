package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeProvider{listErr: boom}
	b := NewBreaker(fake, BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.ListEvents(ctx, time.Time{}, time.Time{}, "")
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.ListEvents(ctx, time.Time{}, time.Time{}, "")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = b.CreateEvent(ctx, NewEvent{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, fake.lists)
	assert.Equal(t, 0, fake.creates)
}

func TestBreaker_ReadOnlyDoesNotTrip(t *testing.T) {
	fake := &fakeProvider{createErr: ErrReadOnly}
	b := NewBreaker(fake, BreakerConfig{FailureThreshold: 1}, nil)

	for i := 0; i < 3; i++ {
		_, err := b.CreateEvent(context.Background(), NewEvent{})
		require.ErrorIs(t, err, ErrReadOnly)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_PassesResults(t *testing.T) {
	start := time.Now()
	end := start.Add(time.Hour)
	fake := &fakeProvider{events: []Event{{ID: "x", Start: &start, End: &end}}}
	b := NewBreaker(fake, BreakerConfig{}, nil)

	events, err := b.ListEvents(context.Background(), start, end, "")
	require.NoError(t, err)
	require.Len(t, events, 1)

	created, err := b.CreateEvent(context.Background(), NewEvent{})
	require.NoError(t, err)
	assert.Equal(t, "evt", created.EventID)
}
