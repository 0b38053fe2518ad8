package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionDownstream = "downstream"
	DirectionUpstream   = "upstream"

	OutcomeAccepted = "accepted"
	OutcomeDeclined = "declined"
)

var (
	registerOnce sync.Once

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "netspeed",
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "Admitted sessions currently running.",
		},
	)
	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netspeed",
			Subsystem: "server",
			Name:      "admissions_total",
			Help:      "Connection admission decisions.",
		},
		[]string{"outcome"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netspeed",
			Subsystem: "server",
			Name:      "transfer_bytes_total",
			Help:      "Payload bytes moved by transfer tests.",
		},
		[]string{"direction"},
	)
	testDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "netspeed",
			Subsystem: "server",
			Name:      "test_duration_seconds",
			Help:      "Wall-clock duration of transfer tests.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 10, 15},
		},
		[]string{"direction"},
	)
	workerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netspeed",
			Subsystem: "server",
			Name:      "worker_errors_total",
			Help:      "Worker sessions that ended with an error, by error kind.",
		},
		[]string{"kind"},
	)
	adminRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netspeed",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin HTTP requests by route template.",
		},
		[]string{"method", "route", "status"},
	)
	adminDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "netspeed",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RegisterMetrics registers every netspeed collector with the default registry
// once per process.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsActive,
			admissions,
			transferBytes,
			testDuration,
			workerErrors,
			adminRequests,
			adminDuration,
		)
	})
}

// RecordAdmission counts one accept or decline decision. An accepted session
// raises the active gauge until SessionEnded is called for it.
func RecordAdmission(accepted bool) {
	RegisterMetrics()
	if !accepted {
		admissions.WithLabelValues(OutcomeDeclined).Inc()
		return
	}
	admissions.WithLabelValues(OutcomeAccepted).Inc()
	sessionsActive.Inc()
}

// SessionEnded lowers the active gauge for one admitted session.
func SessionEnded() {
	RegisterMetrics()
	sessionsActive.Dec()
}

// RecordTransfer adds the bytes and wall time of one directional test.
func RecordTransfer(direction string, bytes uint64, duration time.Duration) {
	RegisterMetrics()
	transferBytes.WithLabelValues(direction).Add(float64(bytes))
	testDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordWorkerError counts a session that ended with an error of kind.
func RecordWorkerError(kind string) {
	RegisterMetrics()
	workerErrors.WithLabelValues(kind).Inc()
}

// RecordAdminRequest counts one admin HTTP request. route is the matched
// route template, never the raw path.
func RecordAdminRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	adminRequests.WithLabelValues(method, route, statusLabel).Inc()
	adminDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}
