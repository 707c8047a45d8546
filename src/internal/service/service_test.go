// FILE: siphon/src/internal/service/service_test.go
package service

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"siphon/src/internal/config"
	"siphon/src/internal/core"
	"siphon/src/internal/source"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

func testConfig(sources ...config.SourceConfig) *config.Config {
	return &config.Config{
		Logging: config.DefaultLogConfig(),
		Output:  config.OutputConfig{BufferSize: 64},
		Sources: sources,
	}
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "siphon")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestService_EmptyConfig(t *testing.T) {
	svc, err := NewService(testConfig(), newTestLogger())
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	stats := svc.GetStats()
	assert.Equal(t, 0, stats["total_sources"])

	assert.True(t, svc.Shutdown(time.Second))
}

func TestService_UnixSourceEndToEnd(t *testing.T) {
	path := testSocketPath(t)
	cfg := testConfig(config.SourceConfig{
		Name: "app-logs",
		Type: "unix_socket",
		UnixSocket: &config.UnixSocketOptions{
			Path: path,
		},
	})

	svc, err := NewService(cfg, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	_, err = conn.Write([]byte("through the service\n"))
	require.NoError(t, err)

	var ev core.Event
	select {
	case ev = <-svc.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	assert.Equal(t, "through the service", ev.Fields["message"])
	assert.Equal(t, source.UnixSocketType, ev.SourceType())

	stats := svc.GetStats()
	assert.Equal(t, 1, stats["total_sources"])

	conn.Close()
	assert.True(t, svc.Shutdown(3*time.Second))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestService_StartFailurePropagates(t *testing.T) {
	cfg := testConfig(config.SourceConfig{
		Name: "bad-bind",
		Type: "unix_socket",
		UnixSocket: &config.UnixSocketOptions{
			Path: "/nonexistent-dir/siphon/s.sock",
		},
	})

	svc, err := NewService(cfg, newTestLogger())
	require.NoError(t, err)
	assert.Error(t, svc.Start())

	// The identifier is released; a corrected restart can reuse it.
	assert.True(t, svc.Shutdown(time.Second))
}

func TestService_CreateSourceUnknownType(t *testing.T) {
	svc, err := NewService(testConfig(), newTestLogger())
	require.NoError(t, err)

	_, err = svc.createSource(&config.SourceConfig{Name: "x", Type: "kafka"}, source.Context{})
	assert.Error(t, err)
}

func TestService_ShutdownIdempotent(t *testing.T) {
	svc, err := NewService(testConfig(), newTestLogger())
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	assert.True(t, svc.Shutdown(time.Second))
	assert.True(t, svc.Shutdown(time.Second))
}
