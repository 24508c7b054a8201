package calendar

import (
	"context"
	"sync"
	"time"
)

type fakeProvider struct {
	mu        sync.Mutex
	events    []Event
	listErr   error
	createErr error
	lists     int
	creates   int
}

func (f *fakeProvider) ListEvents(context.Context, time.Time, time.Time, string) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeProvider) CreateEvent(context.Context, NewEvent) (Created, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return Created{}, f.createErr
	}
	return Created{EventID: "evt"}, nil
}
