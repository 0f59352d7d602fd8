package events

import (
	"context"
	"log/slog"
	"sync"
)

// MockEventPublisher records events in memory
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*Event
	logger *slog.Logger
	err    error
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (m *MockEventPublisher) Publish(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	if m.logger != nil {
		m.logger.Debug("Mock event published", "type", event.Type, "event_id", event.ID)
	}
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

// FailWith makes subsequent Publish calls return err
func (m *MockEventPublisher) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MockEventPublisher) GetPublishedEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockEventPublisher) EventsOfType(t EventType) []*Event {
	var out []*Event
	for _, e := range m.GetPublishedEvents() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}
