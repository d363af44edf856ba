package analytics

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

func TestRecordWithoutDatabase(t *testing.T) {
	var nilAnalytics *Analytics
	ev := Event{EventType: EventQSUpdate, RunID: "run-1"}

	assert.True(t, errors.Is(nilAnalytics.RecordSimulationEvent(context.Background(), ev), ErrUnavailable))

	metrics := observability.NewMockMetricsRegistry()
	a := &Analytics{Metrics: metrics}
	assert.True(t, errors.Is(a.RecordSimulationEvent(context.Background(), ev), ErrUnavailable))
	assert.True(t, errors.Is(a.RecordSimulationEvents(context.Background(), []Event{ev}), ErrUnavailable))
	assert.Equal(t, 0, metrics.Count("analytics_errors"), "unconfigured analytics is not an error")

	_, err := a.EventsByRun(context.Background(), "run-1")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestEventValidation(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		valid bool
	}{
		{"qs update", Event{EventType: EventQSUpdate, RunID: "r"}, true},
		{"rsa serve", Event{EventType: EventRSAServe, RunID: "r"}, true},
		{"impression share", Event{EventType: EventImpressionShare, RunID: "r"}, true},
		{"unknown type", Event{EventType: "click", RunID: "r"}, false},
		{"missing run", Event{EventType: EventQSUpdate}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidEvent))
			}
		})
	}
}

func TestInvalidEventRejectedBeforeInsert(t *testing.T) {
	// sql.Open does not dial, so validation is exercised without a server
	db, err := sql.Open("clickhouse", "clickhouse://127.0.0.1:1/default")
	require.NoError(t, err)
	metrics := observability.NewMockMetricsRegistry()
	a := &Analytics{DB: db, Metrics: metrics}
	defer a.Close()

	err = a.RecordSimulationEvent(context.Background(), Event{EventType: "bogus", RunID: "r"})
	assert.True(t, errors.Is(err, ErrInvalidEvent))

	batch := []Event{{EventType: EventQSUpdate, RunID: "r"}, {EventType: EventRSAServe}}
	err = a.RecordSimulationEvents(context.Background(), batch)
	assert.True(t, errors.Is(err, ErrInvalidEvent))
	assert.Equal(t, 0, metrics.Count("analytics_errors"))
}

func TestMockAnalytics(t *testing.T) {
	m := NewMockAnalytics()
	ctx := context.Background()

	require.NoError(t, m.RecordSimulationEvent(ctx, Event{EventType: EventQSUpdate, RunID: "r", KeywordID: "kw", QualityScore: 6.2}))
	require.NoError(t, m.RecordSimulationEvents(ctx, []Event{
		{EventType: EventRSAServe, RunID: "r", AdID: "ad", Impressions: 100},
		{EventType: EventImpressionShare, RunID: "r", SearchIS: 42.5},
	}))
	assert.Len(t, m.Events(), 3)
	assert.Len(t, m.EventsOfType(EventRSAServe), 1)

	err := m.RecordSimulationEvent(ctx, Event{EventType: "nope", RunID: "r"})
	assert.True(t, errors.Is(err, ErrInvalidEvent))
	assert.Len(t, m.Events(), 3)

	m.Err = ErrUnavailable
	assert.True(t, errors.Is(m.RecordSimulationEvent(ctx, Event{EventType: EventQSUpdate, RunID: "r"}), ErrUnavailable))
	assert.Len(t, m.Events(), 3)
}
