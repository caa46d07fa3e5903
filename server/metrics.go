package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics are registered on a per-server registry so several servers can
// live in one process.
type metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration prometheus.Histogram
	panics   prometheus.Counter
	ioErrors prometheus.Counter
}

func newMetrics(activeConns, pendingJobs func() float64) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pageboy",
				Subsystem: "server",
				Name:      "responses_total",
				Help:      "Total number of responses written, by status code",
			},
			[]string{"code"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pageboy",
				Subsystem: "server",
				Name:      "connection_duration_seconds",
				Help:      "Time from accept to response written",
				Buckets:   prometheus.DefBuckets,
			},
		),
		panics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pageboy",
				Subsystem: "server",
				Name:      "handler_panics_total",
				Help:      "Total number of recovered handler panics",
			},
		),
		ioErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pageboy",
				Subsystem: "server",
				Name:      "io_errors_total",
				Help:      "Total number of connection read/write failures",
			},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.panics,
		m.ioErrors,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "pageboy",
				Subsystem: "server",
				Name:      "active_connections",
				Help:      "Connections accepted and not yet closed",
			},
			activeConns,
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "pageboy",
				Subsystem: "dispatcher",
				Name:      "pending_jobs",
				Help:      "Connection jobs queued or running",
			},
			pendingJobs,
		),
	)
	return m
}

func (m *metrics) observeStatus(status Status) {
	m.requests.WithLabelValues(strconv.Itoa(status.Code())).Inc()
}
