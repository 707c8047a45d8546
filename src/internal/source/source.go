// FILE: siphon/src/internal/source/source.go
package source

import (
	"time"

	"siphon/src/internal/core"
	"siphon/src/internal/events"
	"siphon/src/internal/shutdown"

	"github.com/lixenwraith/log"
)

// Source is one configured ingestion endpoint running its own
// scheduling or connection loop.
type Source interface {
	// Start launches the source's task. A configuration error here
	// (e.g. cannot bind) is the only failure class that prevents the
	// source from starting; it propagates synchronously.
	Start() error

	// Stats returns source statistics.
	Stats() Stats
}

// Stats contains statistics about a running source.
type Stats struct {
	Type              string
	EventsForwarded   uint64
	Attempts          uint64
	FailedAttempts    uint64
	ActiveConnections int64
	StartTime         time.Time
	LastEventTime     time.Time
	Details           map[string]any
}

// Context bundles the collaborators a source needs: its component key,
// the bounded output channel, the shutdown signal pair, the internal
// event bus and the diagnostic logger. Constructed by the topology owner.
type Context struct {
	Key      string
	Out      chan<- core.Event
	Shutdown *shutdown.SignalHandle
	Bus      *events.Bus
	Logger   *log.Logger
}
