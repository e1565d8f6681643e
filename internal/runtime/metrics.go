package runtime

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// serviceMetrics holds the Prometheus collectors maintained by the Service.
// Counters mirror the resilience ledger so Prometheus scrapes and the
// /resilience snapshot tell the same story.
type serviceMetrics struct {
	operationsTotal *prometheus.CounterVec
	entriesTotal    *prometheus.CounterVec
}

func newServiceMetrics(reg prometheus.Registerer) (*serviceMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	operations, err := registerCounterVec(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_operations_total",
			Help: "Publish and consume operations by outcome.",
		},
		[]string{"op", "outcome"},
	))
	if err != nil {
		return nil, err
	}

	entries, err := registerCounterVec(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_entries_total",
			Help: "Handled entries by event kind and outcome.",
		},
		[]string{"kind", "outcome"},
	))
	if err != nil {
		return nil, err
	}

	return &serviceMetrics{
		operationsTotal: operations,
		entriesTotal:    entries,
	}, nil
}

// registerCounterVec registers the collector, reusing the already registered
// instance when two services share a registry.
func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

// ledgerCounters returns the success/failure counters for one operation
// class, suitable for attaching to a ledger.
func (m *serviceMetrics) ledgerCounters(op string) (success, failure prometheus.Counter) {
	return m.operationsTotal.WithLabelValues(op, "success"),
		m.operationsTotal.WithLabelValues(op, "failure")
}
