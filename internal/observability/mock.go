package observability

import (
	"sync"
	"time"
)

var _ MetricsRegistry = (*MockMetricsRegistry)(nil)

// MockMetricsRegistry records metric calls in memory so tests can assert on
// what an engine reported. Counters are keyed by the joined label values.
type MockMetricsRegistry struct {
	mu       sync.Mutex
	Counters map[string]int
	Gauges   map[string]float64
	Observed []float64
}

// NewMockMetricsRegistry returns an empty recording registry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Counters: make(map[string]int),
		Gauges:   make(map[string]float64),
	}
}

func (m *MockMetricsRegistry) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Counters == nil {
		m.Counters = make(map[string]int)
	}
	m.Counters[key]++
}

// Count returns how many times the counter identified by key was incremented.
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counters[key]
}

// Gauge returns the last value set for key.
func (m *MockMetricsRegistry) Gauge(key string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Gauges[key]
	return v, ok
}

// HTTP Request metrics
func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests:" + endpoint + ":" + method + ":" + status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementRateLimited(endpoint string)                                 { m.inc("rate_limited:" + endpoint) }

// Quality score metrics
func (m *MockMetricsRegistry) IncrementQSUpdates(outcome string) { m.inc("qs_updates:" + outcome) }
func (m *MockMetricsRegistry) SetKeywordQS(keywordID string, qs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Gauges == nil {
		m.Gauges = make(map[string]float64)
	}
	m.Gauges["qs:"+keywordID] = qs
}

// Responsive search ad metrics
func (m *MockMetricsRegistry) IncrementRSAServes(rotation, outcome string) {
	m.inc("rsa_serves:" + rotation + ":" + outcome)
}
func (m *MockMetricsRegistry) IncrementRSAFeedback(assetType, outcome string) {
	m.inc("rsa_feedback:" + assetType + ":" + outcome)
}

// Impression share metrics
func (m *MockMetricsRegistry) RecordImpressionShare(searchIS float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Observed = append(m.Observed, searchIS)
}

// Simulation driver metrics
func (m *MockMetricsRegistry) IncrementSimulationDays(campaign string) {
	m.inc("simulation_days:" + campaign)
}
func (m *MockMetricsRegistry) IncrementSnapshotErrors(op string) { m.inc("snapshot_errors:" + op) }
func (m *MockMetricsRegistry) IncrementAnalyticsErrors()         { m.inc("analytics_errors") }
