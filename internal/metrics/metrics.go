package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "barberbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Requested lifecycle transitions by event and result.",
		},
		[]string{"event", "result"},
	)

	sweepExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_total",
			Help:      "Appointments expired by the sweep, by where the cancel was applied.",
		},
		[]string{"source"},
	)

	availabilityFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_fallback_total",
			Help:      "Slot queries answered with the full grid because booked slots were unavailable.",
		},
	)

	viewFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_snapshot_fallback_total",
			Help:      "Views served from the cached snapshot because the authority was unreachable.",
		},
	)

	reconcileTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_tasks_total",
			Help:      "Processed reconcile tasks by result.",
		},
		[]string{"result"},
	)

	authorityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authority_request_duration_seconds",
			Help:      "Latency of calls to the remote authority.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"op", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			transitions,
			sweepExpired,
			availabilityFallbacks,
			viewFallbacks,
			reconcileTasks,
			authorityDuration,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, statusLabel(code)).Inc()
}

func IncTransition(event, result string) {
	transitions.WithLabelValues(event, result).Inc()
}

func IncSweepExpired(source string) {
	sweepExpired.WithLabelValues(source).Inc()
}

func IncAvailabilityFallback() {
	availabilityFallbacks.Inc()
}

func IncViewFallback() {
	viewFallbacks.Inc()
}

func IncReconcile(result string) {
	reconcileTasks.WithLabelValues(result).Inc()
}

// ObserveAuthority records one authority call that started at start.
func ObserveAuthority(op string, err error, start time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	authorityDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
