// FILE: siphon/src/internal/events/metrics.go
package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Error taxonomy tag values for component_errors_total.
const (
	ErrorTypeConnectionFailed = "connection_failed"
	ErrorTypeRequestFailed    = "request_failed"
	ErrorTypeParserFailed     = "parser_failed"
	ErrorTypeReaderFailed     = "reader_failed"
	ErrorTypeWriterFailed     = "writer_failed"
)

// Stage tag values for component_errors_total.
const (
	StageReceiving  = "receiving"
	StageProcessing = "processing"
	StageSending    = "sending"
)

// Metrics holds the counter families backing the internal event bus.
// It carries both the current error taxonomy and the legacy per-mode
// counters kept for backward compatibility.
type Metrics struct {
	componentErrors *prometheus.CounterVec // {error_type, stage, error_code}
	receivedEvents  *prometheus.CounterVec // {source_type}

	// Legacy counters, still incremented where the old behavior applies.
	connectionEstablished *prometheus.CounterVec // {mode}
	connectionFailed      *prometheus.CounterVec // {mode}
	connectionErrors      *prometheus.CounterVec // {mode}

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

// NewMetrics creates the counter families. Pass nil to use the default
// Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:            registerer,
		componentErrors:       newCounterVec("component_errors_total", "Total number of errors encountered by a component", []string{"error_type", "stage", "error_code"}),
		receivedEvents:        newCounterVec("component_received_events_total", "Total number of events produced by a source", []string{"source_type"}),
		connectionEstablished: newCounterVec("connection_established_total", "Total number of connections established (deprecated)", []string{"mode"}),
		connectionFailed:      newCounterVec("connection_failed_total", "Total number of connections that failed to establish (deprecated)", []string{"mode"}),
		connectionErrors:      newCounterVec("connection_errors_total", "Total number of errors on established connections (deprecated)", []string{"mode"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.componentErrors,
		m.receivedEvents,
		m.connectionEstablished,
		m.connectionFailed,
		m.connectionErrors,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) incComponentError(errorType, stage, errorCode string) {
	m.componentErrors.WithLabelValues(errorType, stage, errorCode).Inc()
}
