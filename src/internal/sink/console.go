// FILE: siphon/src/internal/sink/console.go
package sink

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"siphon/src/internal/core"

	"github.com/bytedance/sonic"
	"github.com/lixenwraith/log"
)

// Stats contains statistics for a sink.
type Stats struct {
	Type           string
	TotalProcessed uint64
	StartTime      time.Time
	LastProcessed  time.Time
	Details        map[string]any
}

// ConsoleSink writes events to stdout or stderr as JSON lines.
type ConsoleSink struct {
	target    string
	output    io.Writer
	done      chan struct{}
	wg        sync.WaitGroup
	startTime time.Time
	logger    *log.Logger

	// Statistics
	totalProcessed atomic.Uint64
	lastProcessed  atomic.Value // time.Time
}

// NewConsoleSink creates a console sink writing to the given target,
// "stdout" or "stderr".
func NewConsoleSink(target string, logger *log.Logger) *ConsoleSink {
	output := io.Writer(os.Stdout)
	if target == "stderr" {
		output = os.Stderr
	} else {
		target = "stdout"
	}

	s := &ConsoleSink{
		target:    target,
		output:    output,
		done:      make(chan struct{}),
		startTime: time.Now(),
		logger:    logger,
	}
	s.lastProcessed.Store(time.Time{})
	return s
}

// Start consumes events from the channel until it is closed, the
// context is cancelled or Stop is called.
func (s *ConsoleSink) Start(ctx context.Context, events <-chan core.Event) {
	s.wg.Add(1)
	go s.processLoop(ctx, events)
	s.logger.Info("msg", "Console sink started",
		"component", "console_sink",
		"target", s.target)
}

// Stop terminates the processing loop and waits for it to drain.
func (s *ConsoleSink) Stop() {
	close(s.done)
	s.wg.Wait()
	s.logger.Info("msg", "Console sink stopped",
		"component", "console_sink")
}

// GetStats returns sink statistics.
func (s *ConsoleSink) GetStats() Stats {
	lastProc, _ := s.lastProcessed.Load().(time.Time)

	return Stats{
		Type:           "console",
		TotalProcessed: s.totalProcessed.Load(),
		StartTime:      s.startTime,
		LastProcessed:  lastProc,
		Details: map[string]any{
			"target": s.target,
		},
	}
}

func (s *ConsoleSink) processLoop(ctx context.Context, events <-chan core.Event) {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.write(ev)
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *ConsoleSink) write(ev core.Event) {
	s.totalProcessed.Add(1)
	s.lastProcessed.Store(time.Now())

	line := make(map[string]any, len(ev.Fields)+1)
	line["kind"] = ev.Kind.String()
	for k, v := range ev.Fields {
		line[k] = v
	}

	encoded, err := sonic.Marshal(line)
	if err != nil {
		s.logger.Error("msg", "Failed to encode event",
			"component", "console_sink",
			"error", err)
		return
	}
	encoded = append(encoded, '\n')
	s.output.Write(encoded)
}
