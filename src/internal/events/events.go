// FILE: siphon/src/internal/events/events.go

// Package events renders runtime occurrences to diagnostics and counters.
// Each variant fires one log line and a fixed set of counter increments;
// emission never fails and never blocks the emitting task.
package events

import (
	"github.com/lixenwraith/log"
)

// InternalEvent is one notable occurrence inside a running component.
// Implementations are ephemeral: constructed, emitted and discarded
// within a single call.
type InternalEvent interface {
	emit(b *Bus)
}

// Bus fans an internal event out to the diagnostic log and the counter
// registry.
type Bus struct {
	logger  *log.Logger
	metrics *Metrics
}

// NewBus creates a bus over the given logger and metrics.
func NewBus(logger *log.Logger, metrics *Metrics) *Bus {
	return &Bus{logger: logger, metrics: metrics}
}

// Emit fires the event exactly once. Nil buses and nil events are no-ops
// so call sites never need to guard.
func (b *Bus) Emit(ev InternalEvent) {
	if b == nil || ev == nil {
		return
	}
	ev.emit(b)
}

// HTTPScrapeError reports a failed poll attempt: the endpoint was
// unreachable or the transport failed (DNS, TCP, TLS, auth).
type HTTPScrapeError struct {
	Error error
	URL   string
}

func (e HTTPScrapeError) emit(b *Bus) {
	b.logger.Error("msg", "HTTP scrape failed.",
		"component", "http_scrape",
		"url", e.URL,
		"error", e.Error,
		"error_type", ErrorTypeConnectionFailed,
		"stage", StageReceiving)
	b.metrics.incComponentError(ErrorTypeConnectionFailed, StageReceiving, "")
	// deprecated
	b.metrics.connectionFailed.WithLabelValues("http").Inc()
}

// HTTPScrapeResponseError reports a non-2xx response from the scraped
// endpoint.
type HTTPScrapeResponseError struct {
	StatusCode int
	URL        string
}

func (e HTTPScrapeResponseError) emit(b *Bus) {
	b.logger.Error("msg", "HTTP scrape returned error status.",
		"component", "http_scrape",
		"url", e.URL,
		"status_code", e.StatusCode,
		"error_type", ErrorTypeRequestFailed,
		"stage", StageReceiving)
	b.metrics.incComponentError(ErrorTypeRequestFailed, StageReceiving, "")
	// deprecated
	b.metrics.connectionErrors.WithLabelValues("http").Inc()
}

// DecodeError reports a record that failed framing or format rules.
type DecodeError struct {
	Error      error
	SourceType string
}

func (e DecodeError) emit(b *Bus) {
	b.logger.Error("msg", "Failed to decode record.",
		"component", e.SourceType,
		"error", e.Error,
		"error_type", ErrorTypeParserFailed,
		"stage", StageProcessing)
	b.metrics.incComponentError(ErrorTypeParserFailed, StageProcessing, "")
}

// EventsReceived reports decoded events about to be forwarded downstream.
type EventsReceived struct {
	SourceType string
	Count      int
}

func (e EventsReceived) emit(b *Bus) {
	b.logger.Debug("msg", "Events received.",
		"component", e.SourceType,
		"count", e.Count)
	b.metrics.receivedEvents.WithLabelValues(e.SourceType).Add(float64(e.Count))
}

// SocketConnectionEstablished reports a peer connecting to a
// connection-driven source.
type SocketConnectionEstablished struct {
	Mode string // "unix" or "tcp"
	Peer string
}

func (e SocketConnectionEstablished) emit(b *Bus) {
	b.logger.Debug("msg", "Connected.",
		"mode", e.Mode,
		"peer", e.Peer)
	b.metrics.connectionEstablished.WithLabelValues(e.Mode).Inc()
}

// SocketConnectionError reports a connection that could not be accepted
// or was rejected before use.
type SocketConnectionError struct {
	Mode  string
	Error error
}

func (e SocketConnectionError) emit(b *Bus) {
	b.logger.Error("msg", "Failed to accept connection.",
		"mode", e.Mode,
		"error", e.Error,
		"error_type", ErrorTypeConnectionFailed,
		"stage", StageReceiving)
	b.metrics.incComponentError(ErrorTypeConnectionFailed, StageReceiving, "")
	// deprecated
	b.metrics.connectionFailed.WithLabelValues(e.Mode).Inc()
}

// SocketError reports a failure on an established connection. It
// terminates only that connection, never the accept loop.
type SocketError struct {
	Mode  string
	Error error
	Path  string
}

func (e SocketError) emit(b *Bus) {
	b.logger.Error("msg", "Socket error.",
		"mode", e.Mode,
		"path", e.Path,
		"error", e.Error,
		"error_type", ErrorTypeConnectionFailed,
		"stage", StageProcessing)
	b.metrics.incComponentError(ErrorTypeConnectionFailed, StageProcessing, "")
	// deprecated
	b.metrics.connectionErrors.WithLabelValues(e.Mode).Inc()
}

// UnixSocketFileDeleteError reports a failed removal of the listener's
// socket file at shutdown. Cleanup is best-effort; this never blocks or
// fails the shutdown itself.
type UnixSocketFileDeleteError struct {
	Path  string
	Error error
}

func (e UnixSocketFileDeleteError) emit(b *Bus) {
	b.logger.Error("msg", "Failed in deleting unix socket file.",
		"path", e.Path,
		"error", e.Error,
		"error_code", "delete_socket_file",
		"error_type", ErrorTypeWriterFailed,
		"stage", StageProcessing)
	b.metrics.incComponentError(ErrorTypeWriterFailed, StageProcessing, "delete_socket_file")
}
