package core

import (
	"context"
	"sync"

	"handoff/pkg/domain"
)

// EventSubscriber is notified of events after their transaction commits.
type EventSubscriber interface {
	Publish(ctx context.Context, event domain.Event)
}

// EventSubscriberFunc adapts a function to EventSubscriber.
type EventSubscriberFunc func(ctx context.Context, event domain.Event)

// Publish implements EventSubscriber.
func (f EventSubscriberFunc) Publish(ctx context.Context, event domain.Event) { f(ctx, event) }

func (s *Service) publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		s.logger.Debug("registry event", "kind", ev.Kind, "resource", ev.ResourceID)
		for _, sub := range s.subscribers {
			sub.Publish(ctx, ev)
		}
	}
}

// EventLog retains the most recent committed events in memory.
type EventLog struct {
	mu       sync.RWMutex
	capacity int
	events   []domain.Event
}

// NewEventLog keeps up to capacity events; non-positive capacity means 1024.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EventLog{capacity: capacity}
}

// Publish implements EventSubscriber.
func (l *EventLog) Publish(_ context.Context, event domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append([]domain.Event(nil), l.events[over:]...)
	}
}

// Events returns retained events, oldest first. A non-zero id filters to
// events about that resource.
func (l *EventLog) Events(id domain.ResourceID) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Event, 0, len(l.events))
	for _, ev := range l.events {
		if id == domain.NoResource || ev.ResourceID == id {
			out = append(out, ev)
		}
	}
	return out
}
