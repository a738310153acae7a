package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "cpcal"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Feed metrics.
var (
	FeedFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "fetch_total",
			Help:      "Feed fetches by outcome (ok, not_modified, cache_fallback, error)",
		},
		[]string{"kind", "outcome"},
	)

	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Feed fetch duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	ContestsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "contest",
			Name:      "loaded",
			Help:      "Contests in the current snapshot by platform",
		},
		[]string{"platform"},
	)

	ContestsUnclassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "contest",
			Name:      "unclassified_total",
			Help:      "Feed events whose platform tag was missing or not in the allowlist",
		},
		[]string{"kind"},
	)

	ContestIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "contest",
			Name:      "issues_total",
			Help:      "Feed events with missing or malformed fields",
		},
		[]string{"field"},
	)

	LastRefresh = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "contest",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh",
		},
	)
)

// Reminder and store metrics.
var (
	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "notify",
			Name:      "reminders_total",
			Help:      "Reminder deliveries by notifier and status",
		},
		[]string{"notifier", "status"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Preference store operation errors",
		},
		[]string{"driver", "operation"},
	)
)

func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordFeedFetch(kind, outcome string, d time.Duration) {
	FeedFetchTotal.WithLabelValues(kind, outcome).Inc()
	FeedFetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetContestsLoaded replaces the per-platform gauge values.
func SetContestsLoaded(byPlatform map[string]int) {
	ContestsLoaded.Reset()
	for p, n := range byPlatform {
		ContestsLoaded.WithLabelValues(p).Set(float64(n))
	}
}

func RecordReminder(notifier string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RemindersSent.WithLabelValues(notifier, status).Inc()
}
