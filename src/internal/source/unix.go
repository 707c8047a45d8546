// FILE: siphon/src/internal/source/unix.go
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"siphon/src/internal/config"
	"siphon/src/internal/core"
	"siphon/src/internal/decode"
	"siphon/src/internal/events"

	"golang.org/x/time/rate"
)

// UnixSocketType is the component type name stamped on produced events.
const UnixSocketType = "unix_socket"

const (
	connReadChunk = 64 * 1024
	// Poll granularity for observing the shutdown signal while blocked
	// in a connection read.
	connReadDeadline = 250 * time.Millisecond
)

// UnixSocketSource accepts connections on a unix domain socket and runs
// an isolated read-decode-forward loop per connection. A bad connection
// never aborts the accept loop or its siblings.
type UnixSocketSource struct {
	sctx     Context
	opts     *config.UnixSocketOptions
	path     string
	pipeline *decode.Pipeline

	listener      *net.UnixListener
	acceptLimiter *rate.Limiter
	done          chan struct{}
	wg            sync.WaitGroup
	connWG        sync.WaitGroup

	// Statistics
	eventsForwarded atomic.Uint64
	activeConns     atomic.Int64
	totalConns      atomic.Uint64
	startTime       time.Time
	lastEventTime   atomic.Value // time.Time
}

// NewUnixSocketSource validates the options and builds the source.
func NewUnixSocketSource(opts *config.UnixSocketOptions, sctx Context) (*UnixSocketSource, error) {
	if opts == nil {
		return nil, fmt.Errorf("unix_socket options cannot be nil")
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("unix_socket requires a path")
	}

	framing, err := decode.ParseFraming(opts.Framing)
	if err != nil {
		return nil, err
	}
	if framing == decode.FramingWholeBody {
		framing = decode.FramingNewline
	}
	format, err := decode.ParseFormat(opts.Decoding)
	if err != nil {
		return nil, err
	}

	u := &UnixSocketSource{
		sctx:      sctx,
		opts:      opts,
		path:      opts.Path,
		pipeline:  decode.NewPipeline(framing, format, UnixSocketType),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	u.lastEventTime.Store(time.Time{})

	if opts.AcceptsPerSecond > 0 {
		burst := int(opts.AcceptBurst)
		if burst < 1 {
			burst = 1
		}
		u.acceptLimiter = rate.NewLimiter(rate.Limit(opts.AcceptsPerSecond), burst)
	}

	return u, nil
}

// Start binds the listening socket. A bind failure is fatal and
// propagates to the caller; the source never starts.
func (u *UnixSocketSource) Start() error {
	addr, err := net.ResolveUnixAddr("unix", u.path)
	if err != nil {
		return fmt.Errorf("invalid socket path %q: %w", u.path, err)
	}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to bind unix socket %q: %w", u.path, err)
	}
	// The runtime owns socket file removal: cleanup happens in the
	// shutdown path so its failure can be reported.
	listener.SetUnlinkOnClose(false)
	u.listener = listener

	u.wg.Add(1)
	go u.acceptLoop()
	go u.watchShutdown()

	u.sctx.Logger.Info("msg", "Unix socket source started",
		"component", UnixSocketType,
		"source_id", u.sctx.Key,
		"path", u.path)
	return nil
}

func (u *UnixSocketSource) acceptLoop() {
	defer u.wg.Done()

	for {
		conn, err := u.listener.Accept()
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			u.sctx.Bus.Emit(events.SocketConnectionError{Mode: "unix", Error: err})
			continue
		}

		if u.acceptLimiter != nil && !u.acceptLimiter.Allow() {
			u.sctx.Bus.Emit(events.SocketConnectionError{
				Mode:  "unix",
				Error: fmt.Errorf("connection rejected: accept rate limit exceeded"),
			})
			conn.Close()
			continue
		}

		u.sctx.Bus.Emit(events.SocketConnectionEstablished{Mode: "unix", Peer: u.path})
		u.totalConns.Add(1)
		u.activeConns.Add(1)
		u.connWG.Add(1)
		go u.handleConn(conn)
	}
}

// handleConn is the isolated per-connection loop. Read and decode errors
// end this connection only.
func (u *UnixSocketSource) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		u.activeConns.Add(-1)
		u.connWG.Done()
	}()

	var pending bytes.Buffer
	buf := make([]byte, connReadChunk)

	for {
		select {
		case <-u.done:
			// Shutdown abandons in-flight connections rather than
			// draining them; peers reconnect after restart.
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(connReadDeadline))
		n, err := conn.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			if !u.drainRecords(&pending) {
				return
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				// Normal close: a trailing record without its newline
				// still counts.
				u.flushTail(&pending)
				return
			}
			u.sctx.Bus.Emit(events.SocketError{Mode: "unix", Error: err, Path: u.path})
			return
		}
	}
}

// drainRecords decodes and forwards every complete record in the buffer.
// Returns false when the connection must end (decode failure or shutdown
// during forward).
func (u *UnixSocketSource) drainRecords(pending *bytes.Buffer) bool {
	records, ferr := decode.ExtractRecords(pending, u.pipeline.Framing())
	for _, record := range records {
		evs, derr := u.pipeline.DecodeRecord(record)
		if derr != nil {
			u.sctx.Bus.Emit(events.DecodeError{Error: derr, SourceType: UnixSocketType})
			return false
		}
		if !u.forward(evs) {
			return false
		}
	}
	if ferr != nil {
		u.sctx.Bus.Emit(events.DecodeError{Error: ferr, SourceType: UnixSocketType})
		return false
	}
	return true
}

// flushTail handles leftover bytes at connection close. Under newline
// framing a trailing record without its newline is still a record; an
// octet-count buffer holding an unfulfilled length prefix is a
// truncated frame, never an event.
func (u *UnixSocketSource) flushTail(pending *bytes.Buffer) {
	if pending.Len() == 0 {
		return
	}
	if u.pipeline.Framing() == decode.FramingOctetCount {
		u.sctx.Bus.Emit(events.DecodeError{
			Error:      fmt.Errorf("connection closed inside an octet-count frame, %d bytes unparsed", pending.Len()),
			SourceType: UnixSocketType,
		})
		return
	}
	tail := bytes.TrimRight(pending.Bytes(), "\r\n")
	if len(tail) == 0 {
		return
	}
	evs, derr := u.pipeline.DecodeRecord(tail)
	if derr != nil {
		u.sctx.Bus.Emit(events.DecodeError{Error: derr, SourceType: UnixSocketType})
		return
	}
	u.forward(evs)
}

// forward sends events downstream in decode order, observing shutdown.
func (u *UnixSocketSource) forward(evs []core.Event) bool {
	if len(evs) > 0 {
		u.sctx.Bus.Emit(events.EventsReceived{SourceType: UnixSocketType, Count: len(evs)})
	}
	for _, ev := range evs {
		select {
		case u.sctx.Out <- ev:
			u.eventsForwarded.Add(1)
			u.lastEventTime.Store(time.Now())
		case <-u.done:
			return false
		}
	}
	return true
}

// watchShutdown runs the shutdown sequence: stop accepting, let
// connections wind down, then best-effort removal of the socket file.
func (u *UnixSocketSource) watchShutdown() {
	<-u.sctx.Shutdown.Signal()
	u.sctx.Logger.Info("msg", "Unix socket source stopping",
		"component", UnixSocketType,
		"source_id", u.sctx.Key)

	close(u.done)
	u.listener.Close()
	u.wg.Wait()
	u.connWG.Wait()

	// Cleanup is reported, never escalated: a failed removal must not
	// block or fail the shutdown.
	if err := os.Remove(u.path); err != nil {
		u.sctx.Bus.Emit(events.UnixSocketFileDeleteError{Path: u.path, Error: err})
	}

	u.sctx.Shutdown.Ack()
}

// Stats returns source statistics.
func (u *UnixSocketSource) Stats() Stats {
	lastEvent, _ := u.lastEventTime.Load().(time.Time)

	return Stats{
		Type:              UnixSocketType,
		EventsForwarded:   u.eventsForwarded.Load(),
		ActiveConnections: u.activeConns.Load(),
		StartTime:         u.startTime,
		LastEventTime:     lastEvent,
		Details: map[string]any{
			"path":              u.path,
			"total_connections": u.totalConns.Load(),
		},
	}
}
