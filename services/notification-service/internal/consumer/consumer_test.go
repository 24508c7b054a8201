package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tonyphoesis/phoesis-website/libs/kafkax"
)

type queueReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (q *queueReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	q.mu.Lock()
	if len(q.msgs) > 0 {
		msg := q.msgs[0]
		q.msgs = q.msgs[1:]
		q.mu.Unlock()
		return msg, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (q *queueReader) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

type setInbox struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (s *setInbox) Record(_ context.Context, eventID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.seen[eventID] {
		return false, nil
	}
	s.seen[eventID] = true
	return true, nil
}

func message(id string) kafka.Message {
	return kafka.Message{
		Topic:   "booking.meeting.booked.v1",
		Key:     []byte(id),
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: id, EventType: "booking.meeting.booked.v1"}),
	}
}

func runUntilDrained(t *testing.T, c *Consumer, reader *queueReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		reader.mu.Lock()
		empty := len(reader.msgs) == 0
		reader.mu.Unlock()
		if empty || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestConsumer_SkipsDuplicates(t *testing.T) {
	reader := &queueReader{msgs: []kafka.Message{message("a"), message("a"), message("b")}}
	var mu sync.Mutex
	var handled []string
	c := NewWithReader(nil, &setInbox{seen: map[string]bool{}}, reader, func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		handled = append(handled, string(msg.Key))
		mu.Unlock()
		return nil
	})

	runUntilDrained(t, c, reader)

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 || handled[0] != "a" || handled[1] != "b" {
		t.Fatalf("expected [a b], got %v", handled)
	}
	if !reader.closed {
		t.Fatalf("expected reader to be closed on shutdown")
	}
}

func TestConsumer_InboxErrorSkipsHandler(t *testing.T) {
	reader := &queueReader{msgs: []kafka.Message{message("a")}}
	called := make(chan struct{}, 1)
	c := NewWithReader(nil, &setInbox{seen: map[string]bool{}, err: errors.New("db down")}, reader, func(context.Context, kafka.Message) error {
		called <- struct{}{}
		return nil
	})

	runUntilDrained(t, c, reader)

	select {
	case <-called:
		t.Fatalf("handler must not run when the inbox fails")
	default:
	}
}
