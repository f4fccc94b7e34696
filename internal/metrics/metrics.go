// Package metrics defines the Prometheus collectors for function executions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the execution collectors. All metrics use the edgefn_
// namespace. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActiveUnits       prometheus.Gauge
	AdmissionWait     prometheus.Histogram
	ConsoleEntries    prometheus.Counter
	DispatchTotal     *prometheus.CounterVec
}

// New creates and registers the collectors on reg. Returns nil if reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgefn",
			Subsystem: "execution",
			Name:      "total",
			Help:      "Executions by outcome and result kind.",
		}, []string{"outcome", "kind"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgefn",
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Wall-clock execution time, admission wait excluded.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		ActiveUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgefn",
			Subsystem: "execution",
			Name:      "active_units",
			Help:      "Isolation units currently alive.",
		}),

		AdmissionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgefn",
			Subsystem: "execution",
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for an execution slot.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		ConsoleEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgefn",
			Subsystem: "execution",
			Name:      "console_entries_total",
			Help:      "Console entries captured from user code.",
		}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgefn",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Dispatched requests by HTTP status class.",
		}, []string{"code"}),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ActiveUnits,
		m.AdmissionWait,
		m.ConsoleEntries,
		m.DispatchTotal,
	)

	return m
}

// ObserveExecution records one finished execution.
func (m *Metrics) ObserveExecution(outcome, kind string, d time.Duration, logs int) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(outcome, kind).Inc()
	m.ExecutionDuration.WithLabelValues(outcome).Observe(d.Seconds())
	m.ConsoleEntries.Add(float64(logs))
}

// UnitStarted increments the live unit gauge.
func (m *Metrics) UnitStarted() {
	if m == nil {
		return
	}
	m.ActiveUnits.Inc()
}

// UnitStopped decrements the live unit gauge.
func (m *Metrics) UnitStopped() {
	if m == nil {
		return
	}
	m.ActiveUnits.Dec()
}

// ObserveAdmission records how long a request waited for a slot.
func (m *Metrics) ObserveAdmission(d time.Duration) {
	if m == nil {
		return
	}
	m.AdmissionWait.Observe(d.Seconds())
}

// ObserveDispatch records the final HTTP status of a dispatched request.
func (m *Metrics) ObserveDispatch(status int) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
