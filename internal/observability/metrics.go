package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsim_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsim_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// calls rejected by a per-client rate limiter
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsim_rate_limited_total",
			Help: "Total API calls rejected by rate limiting",
		},
		[]string{"endpoint"},
	)

	// quality score recalculations per keyword, labelled by outcome
	QSUpdateCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsim_quality_score_updates_total",
			Help: "Total keyword quality score recalculations",
		},
		[]string{"outcome"},
	)

	// latest quality score per keyword
	KeywordQS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adsim_keyword_quality_score",
			Help: "Current simulated quality score per keyword",
		},
		[]string{"keyword"},
	)

	// responsive search ad combinations generated
	RSAServeCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsim_rsa_serves_total",
			Help: "Total responsive search ad combinations generated",
		},
		[]string{"rotation", "outcome"},
	)

	// feedback events applied to RSA assets
	RSAFeedbackCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsim_rsa_feedback_total",
			Help: "Total performance feedback events applied to RSA assets",
		},
		[]string{"asset_type", "outcome"},
	)

	// distribution of computed search impression share (percentage)
	ImpressionShare = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adsim_search_impression_share_percent",
			Help:    "Histogram of computed search impression share",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// simulated days completed per campaign
	SimulationDays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsim_simulation_days_total",
			Help: "Total simulated days completed",
		},
		[]string{"campaign"},
	)

	// errors persisting engine snapshots
	SnapshotErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsim_snapshot_errors_total",
			Help: "Total engine snapshot persistence errors",
		},
		[]string{"op"},
	)

	// errors writing simulation events to analytics storage
	AnalyticsErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsim_analytics_errors_total",
			Help: "Total analytics write errors",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		RateLimited,
		QSUpdateCount,
		KeywordQS,
		RSAServeCount,
		RSAFeedbackCount,
		ImpressionShare,
		SimulationDays,
		SnapshotErrors,
		AnalyticsErrors,
	)
}
