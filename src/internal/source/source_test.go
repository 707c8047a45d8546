// FILE: siphon/src/internal/source/source_test.go
package source

import (
	"testing"
	"time"

	"siphon/src/internal/core"
	"siphon/src/internal/events"
	"siphon/src/internal/shutdown"

	"github.com/lixenwraith/log"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

// testHarness wires up the collaborators a source under test needs and
// keeps the counter registry reachable for assertions.
type testHarness struct {
	out      chan core.Event
	coord    *shutdown.Coordinator
	registry *prometheus.Registry
	handle   *shutdown.SignalHandle
	key      string
}

func newTestHarness(t *testing.T, key string) (*testHarness, Context) {
	t.Helper()

	logger := newTestLogger()
	registry := prometheus.NewRegistry()
	metrics := events.NewMetrics(registry)
	require.NoError(t, metrics.Register())

	coord := shutdown.NewCoordinator(logger)
	handle, err := coord.Register(key)
	require.NoError(t, err)

	h := &testHarness{
		out:      make(chan core.Event, 64),
		coord:    coord,
		registry: registry,
		handle:   handle,
		key:      key,
	}
	sctx := Context{
		Key:      key,
		Out:      h.out,
		Shutdown: handle,
		Bus:      events.NewBus(logger, metrics),
		Logger:   logger,
	}
	return h, sctx
}

// shutdownSource signals the source and waits for its acknowledgement.
func (h *testHarness) shutdownSource(t *testing.T, timeout time.Duration) bool {
	t.Helper()
	return h.coord.ShutdownSource(h.key, time.Now().Add(timeout))
}

// waitEvent blocks until an event arrives or the timeout elapses.
func (h *testHarness) waitEvent(t *testing.T, timeout time.Duration) core.Event {
	t.Helper()
	select {
	case ev := <-h.out:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
		return core.Event{}
	}
}

// counterValue reads one counter from the harness registry, summing over
// series that match all given labels. Missing series read as zero.
func (h *testHarness) counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := h.registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	have := make(map[string]string, len(pairs))
	for _, p := range pairs {
		have[p.GetName()] = p.GetValue()
	}
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
