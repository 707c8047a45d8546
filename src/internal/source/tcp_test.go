// FILE: siphon/src/internal/source/tcp_test.go
package source

import (
	"fmt"
	"net"
	"testing"
	"time"

	"siphon/src/internal/config"
	"siphon/src/internal/decode"
	"siphon/src/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTCPPort reserves a free loopback port for the source under test.
func testTCPPort(t *testing.T) int64 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return int64(port)
}

func dialTCP(t *testing.T, port int64) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	require.NoError(t, err)
	return conn
}

func TestNewTCPSocketSource_Validation(t *testing.T) {
	_, sctx := newTestHarness(t, "tcp-validate")

	t.Run("NilOptions", func(t *testing.T) {
		_, err := NewTCPSocketSource(nil, sctx)
		assert.Error(t, err)
	})

	t.Run("ZeroPort", func(t *testing.T) {
		_, err := NewTCPSocketSource(&config.TCPSocketOptions{}, sctx)
		assert.Error(t, err)
	})

	t.Run("PortOutOfRange", func(t *testing.T) {
		_, err := NewTCPSocketSource(&config.TCPSocketOptions{Port: 70000}, sctx)
		assert.Error(t, err)
	})

	t.Run("DefaultFramingIsNewline", func(t *testing.T) {
		src, err := NewTCPSocketSource(&config.TCPSocketOptions{Port: 9000}, sctx)
		require.NoError(t, err)
		assert.Equal(t, decode.FramingNewline, src.pipeline.Framing())
	})

	t.Run("WholeBodyUpgradesToNewline", func(t *testing.T) {
		src, err := NewTCPSocketSource(&config.TCPSocketOptions{
			Port:    9000,
			Framing: "whole_body",
		}, sctx)
		require.NoError(t, err)
		assert.Equal(t, decode.FramingNewline, src.pipeline.Framing())
	})

	t.Run("DefaultHost", func(t *testing.T) {
		src, err := NewTCPSocketSource(&config.TCPSocketOptions{Port: 9000}, sctx)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", src.host)
	})
}

func TestTCPSocket_BindFailure(t *testing.T) {
	// Occupy a port with a plain listener; the engine cannot share it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	port := int64(l.Addr().(*net.TCPAddr).Port)

	_, sctx := newTestHarness(t, "tcp-bind-fail")
	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host: "127.0.0.1",
		Port: port,
	}, sctx)
	require.NoError(t, err)

	assert.Error(t, src.Start())
}

func TestTCPSocket_ReceivesRecords(t *testing.T) {
	port := testTCPPort(t)
	h, sctx := newTestHarness(t, "tcp-receive")

	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host: "127.0.0.1",
		Port: port,
	}, sctx)
	require.NoError(t, err)
	require.NoError(t, src.Start())

	conn := dialTCP(t, port)
	_, err = conn.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)

	first := h.waitEvent(t, 2*time.Second)
	assert.Equal(t, "hello", first.Fields["message"])
	assert.Equal(t, TCPSocketType, first.SourceType())

	second := h.waitEvent(t, 2*time.Second)
	assert.Equal(t, "world", second.Fields["message"])

	assert.GreaterOrEqual(t, h.counterValue(t, "component_received_events_total",
		map[string]string{"source_type": TCPSocketType}), float64(2))

	conn.Close()
	assert.True(t, h.shutdownSource(t, 5*time.Second))
}

func TestTCPSocket_TrailingRecordOnClose(t *testing.T) {
	port := testTCPPort(t)
	h, sctx := newTestHarness(t, "tcp-trailing")

	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host: "127.0.0.1",
		Port: port,
	}, sctx)
	require.NoError(t, err)
	require.NoError(t, src.Start())

	conn := dialTCP(t, port)
	_, err = conn.Write([]byte("no newline at end"))
	require.NoError(t, err)
	conn.Close()

	ev := h.waitEvent(t, 2*time.Second)
	assert.Equal(t, "no newline at end", ev.Fields["message"])

	assert.True(t, h.shutdownSource(t, 5*time.Second))
}

func TestTCPSocket_TruncatedOctetFrameOnClose(t *testing.T) {
	port := testTCPPort(t)
	h, sctx := newTestHarness(t, "tcp-octet-truncated")

	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host:    "127.0.0.1",
		Port:    port,
		Framing: "octet_count",
	}, sctx)
	require.NoError(t, err)
	require.NoError(t, src.Start())

	conn := dialTCP(t, port)
	// Declared length far exceeds the bytes that follow.
	_, err = conn.Write([]byte("100 partial"))
	require.NoError(t, err)
	conn.Close()

	require.Eventually(t, func() bool {
		return h.counterValue(t, "component_errors_total", map[string]string{
			"error_type": events.ErrorTypeParserFailed,
			"stage":      events.StageProcessing,
		}) >= 1
	}, 2*time.Second, 20*time.Millisecond)

	// The unfinished frame never becomes an event.
	assert.Empty(t, h.out)

	assert.True(t, h.shutdownSource(t, 5*time.Second))
}

func TestTCPSocket_DecodeErrorEndsOnlyThatConnection(t *testing.T) {
	port := testTCPPort(t)
	h, sctx := newTestHarness(t, "tcp-decode-error")

	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host:     "127.0.0.1",
		Port:     port,
		Decoding: "json",
	}, sctx)
	require.NoError(t, err)
	require.NoError(t, src.Start())

	bad := dialTCP(t, port)
	_, err = bad.Write([]byte("not json\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.counterValue(t, "component_errors_total", map[string]string{
			"error_type": events.ErrorTypeParserFailed,
			"stage":      events.StageProcessing,
		}) >= 1
	}, 2*time.Second, 20*time.Millisecond)
	bad.Close()

	// A new connection still works; the engine survived.
	good := dialTCP(t, port)
	_, err = good.Write([]byte(`{"ok":true}` + "\n"))
	require.NoError(t, err)

	ev := h.waitEvent(t, 2*time.Second)
	assert.Equal(t, true, ev.Fields["ok"])

	good.Close()
	assert.True(t, h.shutdownSource(t, 5*time.Second))
}

func TestTCPSocket_AcceptRateLimit(t *testing.T) {
	port := testTCPPort(t)
	h, sctx := newTestHarness(t, "tcp-rate-limit")

	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host:             "127.0.0.1",
		Port:             port,
		AcceptsPerSecond: 1,
		AcceptBurst:      1,
	}, sctx)
	require.NoError(t, err)
	require.NoError(t, src.Start())

	first := dialTCP(t, port)
	defer first.Close()

	second := dialTCP(t, port)
	defer second.Close()

	// The second accept exceeds the burst and is rejected.
	require.Eventually(t, func() bool {
		return h.counterValue(t, "connection_failed_total",
			map[string]string{"mode": "tcp"}) >= 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.True(t, h.shutdownSource(t, 5*time.Second))
}

func TestTCPSocket_ShutdownAcksWithoutTraffic(t *testing.T) {
	port := testTCPPort(t)
	h, sctx := newTestHarness(t, "tcp-quick-shutdown")

	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host: "127.0.0.1",
		Port: port,
	}, sctx)
	require.NoError(t, err)
	require.NoError(t, src.Start())

	// Signal immediately after startup; the ack must still arrive.
	assert.True(t, h.shutdownSource(t, 5*time.Second))
}

func TestTCPSocket_Stats(t *testing.T) {
	port := testTCPPort(t)
	h, sctx := newTestHarness(t, "tcp-stats")

	src, err := NewTCPSocketSource(&config.TCPSocketOptions{
		Host: "127.0.0.1",
		Port: port,
	}, sctx)
	require.NoError(t, err)
	require.NoError(t, src.Start())

	conn := dialTCP(t, port)
	_, err = conn.Write([]byte("one\n"))
	require.NoError(t, err)
	h.waitEvent(t, 2*time.Second)

	stats := src.Stats()
	assert.Equal(t, TCPSocketType, stats.Type)
	assert.Equal(t, uint64(1), stats.EventsForwarded)
	assert.Equal(t, "127.0.0.1", stats.Details["host"])
	assert.Equal(t, port, stats.Details["port"])
	assert.Equal(t, uint64(1), stats.Details["total_connections"])

	conn.Close()
	assert.True(t, h.shutdownSource(t, 5*time.Second))
}
