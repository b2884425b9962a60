package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session pool metrics
var (
	ConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtpclient_connects_total",
			Help: "Total number of session establishment attempts",
		},
		[]string{"pool", "result"},
	)

	SessionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smtpclient_sessions_current",
			Help: "Current number of established sessions held by the pool",
		},
		[]string{"pool"},
	)

	AcquiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtpclient_acquires_total",
			Help: "Total number of session acquisitions from the pool",
		},
		[]string{"pool", "result"},
	)

	AcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smtpclient_acquire_duration_seconds",
			Help:    "Time spent acquiring a session from the pool",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0},
		},
		[]string{"pool"},
	)

	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtpclient_health_checks_total",
			Help: "Total number of NOOP probes sent to idle sessions",
		},
		[]string{"pool", "result"},
	)

	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtpclient_breaker_transitions_total",
			Help: "Total number of connect circuit breaker state changes",
		},
		[]string{"pool", "state"},
	)
)

// Delivery metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtpclient_deliveries_total",
			Help: "Total number of message submissions through the pool",
		},
		[]string{"pool", "result"},
	)
)
