package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instruments for the lifecycle engine.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	VersionConflicts     prometheus.Counter
	SweepDuration        prometheus.Histogram
	SweepErrors          prometheus.Counter
	NotificationFailures prometheus.Counter
	TranscriptRetries    prometheus.Counter
	RequestCount         *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	ErrorCount           *prometheus.CounterVec
}

// NewMetrics registers instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_transitions_total",
			Help: "Lifecycle operations by type and outcome.",
		}, []string{"op", "outcome"}),
		VersionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketdesk_version_conflicts_total",
			Help: "Optimistic write conflicts, including internally retried ones.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticketdesk_sweep_duration_seconds",
			Help:    "Duration of inactivity sweep runs.",
			Buckets: prometheus.DefBuckets,
		}),
		SweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketdesk_sweep_errors_total",
			Help: "Per-ticket failures recorded during sweeps.",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketdesk_notification_failures_total",
			Help: "Outbound notifications that could not be delivered.",
		}),
		TranscriptRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketdesk_transcript_retries_total",
			Help: "Transcript generation attempts beyond the first.",
		}),
		RequestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketdesk_http_request_duration_seconds",
			Help:    "HTTP request latency by path and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		ErrorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketdesk_http_errors_total",
			Help: "HTTP errors by path, method and domain error code.",
		}, []string{"path", "method", "code"}),
	}
}

// RecordRequest counts one served HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError counts one failed HTTP request by domain error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.ErrorCount.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts one lifecycle operation result.
func (m *Metrics) RecordTransition(op, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(op, outcome).Inc()
}

// RecordConflict counts one optimistic write conflict.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}
