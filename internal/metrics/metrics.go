// Package metrics provides Prometheus metrics for the chat analyst
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Store metrics
	MessagesIngestedTotal prometheus.Counter
	MessagesEvictedTotal  prometheus.Counter
	ChatsTracked          prometheus.Gauge

	// Gate metrics
	RateLimitedTotal      prometheus.Counter
	PermissionDeniedTotal *prometheus.CounterVec
	AccessChangesTotal    *prometheus.CounterVec

	// Analysis metrics
	AnalysisRequestsTotal *prometheus.CounterVec
	AnalysisDuration      *prometheus.HistogramVec
	ProviderCallDuration  *prometheus.HistogramVec
	PromptChars           prometheus.Histogram

	// Delivery metrics
	DeliveriesTotal *prometheus.CounterVec

	StartTime time.Time
}

// New creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{StartTime: time.Now()}

	m.MessagesIngestedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "analyst_messages_ingested_total",
		Help: "Total number of chat messages ingested into buffers",
	})
	m.MessagesEvictedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "analyst_messages_evicted_total",
		Help: "Total number of messages evicted from full chat buffers",
	})
	m.ChatsTracked = f.NewGauge(prometheus.GaugeOpts{
		Name: "analyst_chats_tracked",
		Help: "Number of chats with a message buffer",
	})

	m.RateLimitedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "analyst_rate_limited_total",
		Help: "Total number of commands rejected by the cooldown",
	})
	m.PermissionDeniedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_permission_denied_total",
			Help: "Total number of privileged operations rejected",
		},
		[]string{"operation"},
	)
	m.AccessChangesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_access_changes_total",
			Help: "Total number of authorized-user set mutations",
		},
		[]string{"operation"},
	)

	m.AnalysisRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_analysis_requests_total",
			Help: "Total number of analysis requests by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)
	m.AnalysisDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyst_analysis_duration_seconds",
			Help:    "End-to-end duration of analysis requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"},
	)
	m.ProviderCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyst_provider_call_duration_seconds",
			Help:    "Duration of analysis provider calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		},
		[]string{"provider", "status"},
	)
	m.PromptChars = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyst_prompt_chars",
		Help:    "Size of rendered prompts in characters",
		Buckets: prometheus.ExponentialBuckets(500, 2, 10),
	})

	m.DeliveriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_private_deliveries_total",
			Help: "Total number of private deliveries by status",
		},
		[]string{"status"},
	)

	return m
}

// RecordProviderCall records one analysis provider call
func (m *Metrics) RecordProviderCall(provider string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProviderCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// RecordAnalysis records the terminal outcome of an analysis request
func (m *Metrics) RecordAnalysis(scope, outcome string, duration time.Duration) {
	m.AnalysisRequestsTotal.WithLabelValues(scope, outcome).Inc()
	m.AnalysisDuration.WithLabelValues(scope).Observe(duration.Seconds())
}
