// Package metrics exports service measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tms/internal/domain"
	"tms/internal/service"
)

// PromRecorder records dispatch operations in Prometheus metrics.
type PromRecorder struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	available   prometheus.Gauge
	gatherer    prometheus.Gatherer
}

var _ service.MetricsRecorder = (*PromRecorder)(nil)

// NewPromRecorder registers dispatch metrics on the provided Prometheus registry.
// If reg is nil, the default registry is used. If the collectors are already
// registered, the existing ones are reused.
func NewPromRecorder(reg *prometheus.Registry) (*PromRecorder, error) {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_dispatch_operations_total",
		Help: "Dispatch operations by name and outcome",
	}, []string{"operation", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tms_dispatch_operation_duration_seconds",
		Help:    "Time spent serving dispatch operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_dispatch_transitions_total",
		Help: "Committed dispatch status transitions",
	}, []string{"from", "to"})
	available := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tms_available_drivers",
		Help: "Drivers assignable at the last availability query",
	})

	var err error
	if operations, err = register(registerer, operations); err != nil {
		return nil, err
	}
	if latency, err = register(registerer, latency); err != nil {
		return nil, err
	}
	if transitions, err = register(registerer, transitions); err != nil {
		return nil, err
	}
	if available, err = register(registerer, available); err != nil {
		return nil, err
	}

	return &PromRecorder{
		operations:  operations,
		latency:     latency,
		transitions: transitions,
		available:   available,
		gatherer:    gatherer,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveOperation counts an operation and records its latency.
func (r *PromRecorder) ObserveOperation(op, outcome string, elapsed time.Duration) {
	r.operations.WithLabelValues(op, outcome).Inc()
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncTransition counts a committed status transition.
func (r *PromRecorder) IncTransition(from, to domain.DispatchStatus) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// SetAvailableDrivers sets the available-driver gauge.
func (r *PromRecorder) SetAvailableDrivers(n int) {
	r.available.Set(float64(n))
}

// Handler serves the registry this recorder was registered on.
func (r *PromRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
