// Package metrics holds the Prometheus collectors of the notification backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "communityevents"

// Result labels.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
)

var (
	// Change delivery metrics
	ChangesHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_handled_total",
			Help:      "Document changes handled by source, collection and result",
		},
		[]string{"source", "collection", "result"},
	)

	// Outbox metrics
	MailEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_enqueued_total",
			Help:      "Mail outbox writes by result",
		},
		[]string{"result"},
	)

	ClaimsUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_updates_total",
			Help:      "Custom claims updates by sink and result",
		},
		[]string{"sink", "result"},
	)

	ImagesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_removed_total",
			Help:      "Event image objects removed from the bucket",
		},
	)

	// Reminder metrics
	ReminderRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_runs_total",
			Help:      "Reminder runs by result",
		},
		[]string{"result"},
	)

	ReminderRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_run_duration_seconds",
			Help:      "Duration of a reminder run in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Participation API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

func init() {
	prometheus.MustRegister(ChangesHandled)
	prometheus.MustRegister(MailEnqueued)
	prometheus.MustRegister(ClaimsUpdates)
	prometheus.MustRegister(ImagesRemoved)
	prometheus.MustRegister(ReminderRuns)
	prometheus.MustRegister(ReminderRunDuration)
	prometheus.MustRegister(APIRequests)
}

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
