package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the ingest counters of one pipeline. Dropped samples are
// observable only here; the Throttle drop path surfaces no error.
type Metrics struct {
	// SamplesWritten counts samples successfully written to storage.
	SamplesWritten prometheus.Counter
	// SamplesDropped counts samples dropped under the Throttle policy.
	SamplesDropped prometheus.Counter
	// WriteErrors counts storage write failures surfaced to error callbacks.
	WriteErrors prometheus.Counter
}

// NewMetrics creates unregistered pipeline counters. Register them with a
// prometheus.Registerer via PrometheusCollectors.
func NewMetrics() *Metrics {
	return &Metrics{
		SamplesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "pipeline",
			Name:      "samples_written_total",
			Help:      "Samples successfully written to storage.",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "pipeline",
			Name:      "samples_dropped_total",
			Help:      "Samples dropped under the throttle backoff policy.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "pipeline",
			Name:      "write_errors_total",
			Help:      "Storage write failures surfaced to error callbacks.",
		}),
	}
}

// PrometheusCollectors returns every collector of the pipeline for
// registration.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SamplesWritten,
		m.SamplesDropped,
		m.WriteErrors,
	}
}
