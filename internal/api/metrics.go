// ABOUTME: Prometheus collectors for outgoing backend requests
// ABOUTME: Counts and times every adapter operation by outcome

package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the adapter reports into.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics registers adapter collectors on reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadwatch_backend_requests_total",
				Help: "Total count of backend requests by operation and outcome.",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadwatch_backend_request_duration_seconds",
				Help:    "Histogram of backend request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadwatch_backend_inflight_requests",
			Help: "Backend requests currently in flight.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.inFlight)
	return m
}

// observe records one completed request. status is the HTTP status code, or
// the error kind name when no response arrived.
func (m *Metrics) observe(op string, status int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
		var apiErr *Error
		if errors.As(err, &apiErr) {
			label = apiErr.Kind.String()
		}
	}
	m.requests.WithLabelValues(op, label).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) begin() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
