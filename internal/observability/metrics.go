package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	authAttemptsTotal      *prometheus.CounterVec
	authEventClients       prometheus.Gauge
	enrollmentCacheTotal   *prometheus.CounterVec
	enrollmentsTotal       prometheus.Counter
	notesSavedTotal        prometheus.Counter
	progressUpdatesTotal   *prometheus.CounterVec
	notificationsSentTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors exported by the portal backend.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		authAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_attempts_total",
			Help: "Sign-in attempts partitioned by outcome.",
		}, []string{"outcome"})

		authEventClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_auth_event_clients_active",
			Help: "Number of connected auth event stream clients.",
		})

		enrollmentCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_enrollment_cache_total",
			Help: "Enrollment cache lookups partitioned by result.",
		}, []string{"result"})

		enrollmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_enrollments_total",
			Help: "Enrollments created or re-activated.",
		})

		notesSavedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_notes_saved_total",
			Help: "Module notes written.",
		})

		progressUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_progress_updates_total",
			Help: "Module progress writes partitioned by completion flag.",
		}, []string{"completed"})

		notificationsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_notifications_sent_total",
			Help: "Out-of-band notifications partitioned by channel and kind.",
		}, []string{"channel", "kind"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			authAttemptsTotal,
			authEventClients,
			enrollmentCacheTotal,
			enrollmentsTotal,
			notesSavedTotal,
			progressUpdatesTotal,
			notificationsSentTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// AuthAttempts exposes the sign-in outcome counter.
func AuthAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return authAttemptsTotal
}

// AuthEventClients exposes the gauge of connected event stream clients.
func AuthEventClients() prometheus.Gauge {
	RegisterMetrics()
	return authEventClients
}

// EnrollmentCache exposes the enrollment cache hit/miss counter.
func EnrollmentCache() *prometheus.CounterVec {
	RegisterMetrics()
	return enrollmentCacheTotal
}

// Enrollments exposes the enrollment counter.
func Enrollments() prometheus.Counter {
	RegisterMetrics()
	return enrollmentsTotal
}

// NotesSaved exposes the note write counter.
func NotesSaved() prometheus.Counter {
	RegisterMetrics()
	return notesSavedTotal
}

// ProgressUpdates exposes the progress write counter.
func ProgressUpdates() *prometheus.CounterVec {
	RegisterMetrics()
	return progressUpdatesTotal
}

// NotificationsSent exposes the notification delivery counter.
func NotificationsSent() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsSentTotal
}
