package analytics

import (
	"context"
	"sync"
)

var (
	_ Service = (*Analytics)(nil)
	_ Service = (*MockAnalytics)(nil)
)

// MockAnalytics keeps recorded events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned by every call and nothing is recorded.
	Err error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordSimulationEvent validates and stores the event.
func (m *MockAnalytics) RecordSimulationEvent(ctx context.Context, event Event) error {
	return m.RecordSimulationEvents(ctx, []Event{event})
}

// RecordSimulationEvents validates and stores the batch.
func (m *MockAnalytics) RecordSimulationEvents(_ context.Context, events []Event) error {
	if m.Err != nil {
		return m.Err
	}
	for _, ev := range events {
		if err := ev.validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MockAnalytics) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType filters recorded events by type.
func (m *MockAnalytics) EventsOfType(eventType string) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
