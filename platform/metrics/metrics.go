// Package metrics exposes the Prometheus collectors shared by the API and scheduler processes.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadsync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_ticks_total",
			Help: "Reconciliation ticks by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadsync_tick_duration_seconds",
			Help:    "Duration of a full reconciliation tick",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_transitions_total",
			Help: "Applied lead status transitions",
		},
		[]string{"to", "source"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_notifications_total",
			Help: "Notification sends by kind, channel and outcome",
		},
		[]string{"kind", "channel", "outcome"},
	)

	integrationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_integration_errors_total",
			Help: "Failed calls to external systems",
		},
		[]string{"service"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveTick records a finished reconciliation tick.
func ObserveTick(trigger, outcome string, elapsed time.Duration) {
	ticksTotal.WithLabelValues(trigger, outcome).Inc()
	if outcome != "skipped" {
		tickDuration.Observe(elapsed.Seconds())
	}
}

// RecordTransition counts an applied status transition.
func RecordTransition(to, source string) {
	transitionsTotal.WithLabelValues(to, source).Inc()
}

// RecordNotification counts one channel send attempt.
func RecordNotification(kind, channel string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	notificationsTotal.WithLabelValues(kind, channel, outcome).Inc()
}

// RecordIntegrationError counts a failed call to an external system.
func RecordIntegrationError(service string) {
	integrationErrors.WithLabelValues(service).Inc()
}
