package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)
	IncrementRateLimited(endpoint string)

	// Quality score metrics
	IncrementQSUpdates(outcome string)
	SetKeywordQS(keywordID string, qs float64)

	// Responsive search ad metrics
	IncrementRSAServes(rotation, outcome string)
	IncrementRSAFeedback(assetType, outcome string)

	// Impression share metrics
	RecordImpressionShare(searchIS float64)

	// Simulation driver metrics
	IncrementSimulationDays(campaign string)
	IncrementSnapshotErrors(op string)
	IncrementAnalyticsErrors()
}

// PrometheusRegistry implements MetricsRegistry using the existing global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRateLimited(endpoint string) {
	RateLimited.WithLabelValues(endpoint).Inc()
}

// Quality score metrics
func (r *PrometheusRegistry) IncrementQSUpdates(outcome string) {
	QSUpdateCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) SetKeywordQS(keywordID string, qs float64) {
	KeywordQS.WithLabelValues(keywordID).Set(qs)
}

// Responsive search ad metrics
func (r *PrometheusRegistry) IncrementRSAServes(rotation, outcome string) {
	RSAServeCount.WithLabelValues(rotation, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementRSAFeedback(assetType, outcome string) {
	RSAFeedbackCount.WithLabelValues(assetType, outcome).Inc()
}

// Impression share metrics
func (r *PrometheusRegistry) RecordImpressionShare(searchIS float64) {
	ImpressionShare.Observe(searchIS)
}

// Simulation driver metrics
func (r *PrometheusRegistry) IncrementSimulationDays(campaign string) {
	SimulationDays.WithLabelValues(campaign).Inc()
}

func (r *PrometheusRegistry) IncrementSnapshotErrors(op string) {
	SnapshotErrors.WithLabelValues(op).Inc()
}

func (r *PrometheusRegistry) IncrementAnalyticsErrors() {
	AnalyticsErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

// HTTP Request metrics
func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementRateLimited(endpoint string)                                 {}

// Quality score metrics
func (r *NoOpRegistry) IncrementQSUpdates(outcome string)         {}
func (r *NoOpRegistry) SetKeywordQS(keywordID string, qs float64) {}

// Responsive search ad metrics
func (r *NoOpRegistry) IncrementRSAServes(rotation, outcome string)    {}
func (r *NoOpRegistry) IncrementRSAFeedback(assetType, outcome string) {}

// Impression share metrics
func (r *NoOpRegistry) RecordImpressionShare(searchIS float64) {}

// Simulation driver metrics
func (r *NoOpRegistry) IncrementSimulationDays(campaign string) {}
func (r *NoOpRegistry) IncrementSnapshotErrors(op string)       {}
func (r *NoOpRegistry) IncrementAnalyticsErrors()               {}
