// Package metrics provides Prometheus metrics for cdc-relay components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all cdc-relay metrics.
	Namespace = "cdc_relay"

	SubsystemSource = "source"
	SubsystemRelay  = "relay"
)

// Label constants for consistent labeling across metrics.
const (
	LabelSourceType = "source_type"
	LabelSourceID   = "source_id"
	LabelChannel    = "channel"
)

var (
	// SourceEventsReceivedTotal counts change events received from the
	// capture engine, including those in zero-event batches (counted as 0).
	SourceEventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSource,
			Name:      "events_received_total",
			Help:      "Total number of change events received from the capture engine",
		},
		[]string{LabelSourceType, LabelSourceID},
	)

	// SourceBatchesReceivedTotal counts batches drained from the engine.
	SourceBatchesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSource,
			Name:      "batches_received_total",
			Help:      "Total number of batches drained from the capture engine",
		},
		[]string{LabelSourceType, LabelSourceID},
	)

	// RelayForwardErrorsTotal counts iterations that failed while polling
	// or forwarding. The loop continues after each one.
	RelayForwardErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRelay,
			Name:      "forward_errors_total",
			Help:      "Total number of failed poll/forward iterations",
		},
		[]string{LabelSourceType, LabelSourceID},
	)

	allMetrics = []prometheus.Collector{
		SourceEventsReceivedTotal,
		SourceBatchesReceivedTotal,
		RelayForwardErrorsTotal,
	}
)

// Register registers all cdc-relay metrics with the default Prometheus
// registry. It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all cdc-relay metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a new Prometheus registry with all cdc-relay metrics
// and standard Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	RegisterWith(reg)

	return reg
}
