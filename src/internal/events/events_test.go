// FILE: siphon/src/internal/events/events_test.go
package events

import (
	"fmt"
	"testing"

	"github.com/lixenwraith/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

func newTestBus(t *testing.T) (*Bus, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, metrics.Register())
	return NewBus(newTestLogger(), metrics), metrics
}

func TestEmit_NilSafety(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() {
		b.Emit(HTTPScrapeError{Error: fmt.Errorf("x"), URL: "http://host"})
	})

	bus, _ := newTestBus(t)
	assert.NotPanics(t, func() {
		bus.Emit(nil)
	})
}

func TestHTTPScrapeError_Counters(t *testing.T) {
	bus, metrics := newTestBus(t)

	bus.Emit(HTTPScrapeError{Error: fmt.Errorf("connection refused"), URL: "http://host/logs"})
	bus.Emit(HTTPScrapeError{Error: fmt.Errorf("connection refused"), URL: "http://host/logs"})

	errs := metrics.componentErrors.WithLabelValues(ErrorTypeConnectionFailed, StageReceiving, "")
	assert.Equal(t, float64(2), testutil.ToFloat64(errs))

	legacy := metrics.connectionFailed.WithLabelValues("http")
	assert.Equal(t, float64(2), testutil.ToFloat64(legacy))
}

func TestHTTPScrapeResponseError_Counters(t *testing.T) {
	bus, metrics := newTestBus(t)

	bus.Emit(HTTPScrapeResponseError{StatusCode: 503, URL: "http://host/logs"})

	errs := metrics.componentErrors.WithLabelValues(ErrorTypeRequestFailed, StageReceiving, "")
	assert.Equal(t, float64(1), testutil.ToFloat64(errs))

	legacy := metrics.connectionErrors.WithLabelValues("http")
	assert.Equal(t, float64(1), testutil.ToFloat64(legacy))
}

func TestDecodeError_Counters(t *testing.T) {
	bus, metrics := newTestBus(t)

	bus.Emit(DecodeError{Error: fmt.Errorf("invalid JSON"), SourceType: "http_scrape"})

	errs := metrics.componentErrors.WithLabelValues(ErrorTypeParserFailed, StageProcessing, "")
	assert.Equal(t, float64(1), testutil.ToFloat64(errs))
}

func TestEventsReceived_Counters(t *testing.T) {
	bus, metrics := newTestBus(t)

	bus.Emit(EventsReceived{SourceType: "unix_socket", Count: 7})
	bus.Emit(EventsReceived{SourceType: "unix_socket", Count: 3})

	received := metrics.receivedEvents.WithLabelValues("unix_socket")
	assert.Equal(t, float64(10), testutil.ToFloat64(received))
}

func TestSocketEvents_Counters(t *testing.T) {
	bus, metrics := newTestBus(t)

	bus.Emit(SocketConnectionEstablished{Mode: "unix", Peer: "/tmp/test.sock"})
	bus.Emit(SocketConnectionError{Mode: "unix", Error: fmt.Errorf("rejected")})
	bus.Emit(SocketError{Mode: "tcp", Error: fmt.Errorf("reset"), Path: "127.0.0.1:9000"})

	established := metrics.connectionEstablished.WithLabelValues("unix")
	assert.Equal(t, float64(1), testutil.ToFloat64(established))

	failed := metrics.connectionFailed.WithLabelValues("unix")
	assert.Equal(t, float64(1), testutil.ToFloat64(failed))

	connErrs := metrics.connectionErrors.WithLabelValues("tcp")
	assert.Equal(t, float64(1), testutil.ToFloat64(connErrs))
}

func TestUnixSocketFileDeleteError_Counters(t *testing.T) {
	bus, metrics := newTestBus(t)

	bus.Emit(UnixSocketFileDeleteError{Path: "/tmp/test.sock", Error: fmt.Errorf("no such file")})

	errs := metrics.componentErrors.WithLabelValues(ErrorTypeWriterFailed, StageProcessing, "delete_socket_file")
	assert.Equal(t, float64(1), testutil.ToFloat64(errs))
}

func TestMetrics_RegisterIdempotent(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, metrics.Register())
	require.NoError(t, metrics.Register())
}
