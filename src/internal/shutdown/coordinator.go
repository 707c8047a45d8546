// FILE: siphon/src/internal/shutdown/coordinator.go

// Package shutdown coordinates cancellation of running sources. The
// coordinator only signals and reports; it never terminates a task
// itself.
package shutdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/lixenwraith/log"
)

// SignalHandle is the source-side half of a shutdown entry: a channel
// that closes when shutdown is requested, and an acknowledgement the
// source sends once it has fully stopped.
type SignalHandle struct {
	e *entry
}

// Signal returns a channel closed when the source must stop. Sources
// observe it at every suspension point.
func (h *SignalHandle) Signal() <-chan struct{} {
	return h.e.signal
}

// Ack reports that the source task has fully stopped. Sent at most once
// per source lifetime; further calls are no-ops.
func (h *SignalHandle) Ack() {
	h.e.ackOnce.Do(func() {
		close(h.e.ack)
	})
}

type entry struct {
	signal     chan struct{}
	signalOnce sync.Once
	ack        chan struct{}
	ackOnce    sync.Once
}

// Coordinator is the process-scoped registry of per-source shutdown
// entries. Constructed once by the topology owner and passed into every
// source; there is no global instance.
type Coordinator struct {
	mu        sync.Mutex
	entries   map[string]*entry
	completed map[string]struct{}
	logger    *log.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *log.Logger) *Coordinator {
	return &Coordinator{
		entries:   make(map[string]*entry),
		completed: make(map[string]struct{}),
		logger:    logger,
	}
}

// Register creates the shutdown entry for a starting source. It fails if
// the identifier already has a live task, enforcing that a component key
// runs at most once at any instant.
func (c *Coordinator) Register(sourceID string) (*SignalHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[sourceID]; exists {
		return nil, fmt.Errorf("source %q is already registered", sourceID)
	}

	e := &entry{
		signal: make(chan struct{}),
		ack:    make(chan struct{}),
	}
	c.entries[sourceID] = e
	delete(c.completed, sourceID)
	return &SignalHandle{e: e}, nil
}

// Deregister removes an entry for a source that never started, freeing
// its identifier for reuse. Used on construction failures.
func (c *Coordinator) Deregister(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sourceID)
}

// ShutdownSource signals the source to stop, then waits until either its
// acknowledgement arrives (true) or the deadline elapses (false). A false
// result leaves the decision to force-kill or leak the task with the
// caller. Calls for distinct identifiers never block each other; calls
// after a true acknowledgement are idempotent no-ops returning true.
func (c *Coordinator) ShutdownSource(sourceID string, deadline time.Time) bool {
	c.mu.Lock()
	e, ok := c.entries[sourceID]
	if !ok {
		_, done := c.completed[sourceID]
		c.mu.Unlock()
		if !done {
			c.logger.Debug("msg", "Shutdown requested for unknown source",
				"component", "shutdown",
				"source_id", sourceID)
		}
		return true
	}
	c.mu.Unlock()

	e.signalOnce.Do(func() {
		close(e.signal)
	})

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-e.ack:
		c.mu.Lock()
		// Another concurrent call may have cleaned up already.
		if cur, still := c.entries[sourceID]; still && cur == e {
			delete(c.entries, sourceID)
			c.completed[sourceID] = struct{}{}
		}
		c.mu.Unlock()
		return true
	case <-timer.C:
		c.logger.Warn("msg", "Source failed to shut down before deadline",
			"component", "shutdown",
			"source_id", sourceID)
		return false
	}
}
