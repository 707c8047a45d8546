// FILE: siphon/src/internal/source/tcp.go
package source

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"siphon/src/internal/config"
	"siphon/src/internal/decode"
	"siphon/src/internal/events"

	"github.com/lixenwraith/log/compat"
	"github.com/panjf2000/gnet/v2"
	"golang.org/x/time/rate"
)

// TCPSocketType is the component type name stamped on produced events.
const TCPSocketType = "tcp_socket"

// TCPSocketSource accepts TCP connections and runs an isolated
// read-decode-forward loop per connection on a gnet event engine.
type TCPSocketSource struct {
	sctx     Context
	opts     *config.TCPSocketOptions
	host     string
	port     int64
	pipeline *decode.Pipeline

	server        *tcpSocketServer
	engine        *gnet.Engine
	engineMu      sync.Mutex
	acceptLimiter *rate.Limiter
	done          chan struct{}
	wg            sync.WaitGroup

	// Statistics
	eventsForwarded atomic.Uint64
	activeConns     atomic.Int64
	totalConns      atomic.Uint64
	startTime       time.Time
	lastEventTime   atomic.Value // time.Time
}

// NewTCPSocketSource validates the options and builds the source.
func NewTCPSocketSource(opts *config.TCPSocketOptions, sctx Context) (*TCPSocketSource, error) {
	if opts == nil {
		return nil, fmt.Errorf("tcp_socket options cannot be nil")
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("tcp_socket requires a valid port: %d", opts.Port)
	}

	host := "0.0.0.0"
	if opts.Host != "" {
		host = opts.Host
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

	t := &TCPSocketSource{
		sctx:      sctx,
		opts:      opts,
		host:      host,
		port:      opts.Port,
		pipeline:  decode.NewPipeline(framing, format, TCPSocketType),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	t.lastEventTime.Store(time.Time{})

	if opts.AcceptsPerSecond > 0 {
		burst := int(opts.AcceptBurst)
		if burst < 1 {
			burst = 1
		}
		t.acceptLimiter = rate.NewLimiter(rate.Limit(opts.AcceptsPerSecond), burst)
	}

	return t, nil
}

// Start launches the gnet engine. A bind failure surfaces here and
// prevents the source from starting.
func (t *TCPSocketSource) Start() error {
	t.server = &tcpSocketServer{
		source:  t,
		clients: make(map[gnet.Conn]*tcpSocketClient),
	}

	addr := fmt.Sprintf("tcp://%s:%d", t.host, t.port)
	gnetLogger := compat.NewGnetAdapter(t.sctx.Logger)

	errChan := make(chan error, 1)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		err := gnet.Run(t.server, addr,
			gnet.WithLogger(gnetLogger),
			gnet.WithMulticore(true),
			gnet.WithReusePort(true),
		)
		if err != nil {
			t.sctx.Logger.Error("msg", "TCP socket source failed",
				"component", TCPSocketType,
				"source_id", t.sctx.Key,
				"port", t.port,
				"error", err)
		}
		errChan <- err
	}()

	// Wait briefly for the engine to come up or fail to bind.
	select {
	case err := <-errChan:
		close(t.done)
		t.wg.Wait()
		return err
	case <-time.After(100 * time.Millisecond):
	}

	go t.watchShutdown()

	t.sctx.Logger.Info("msg", "TCP socket source started",
		"component", TCPSocketType,
		"source_id", t.sctx.Key,
		"host", t.host,
		"port", t.port)
	return nil
}

func (t *TCPSocketSource) watchShutdown() {
	<-t.sctx.Shutdown.Signal()
	t.sctx.Logger.Info("msg", "TCP socket source stopping",
		"component", TCPSocketType,
		"source_id", t.sctx.Key)

	close(t.done)

	// OnBoot may not have stored the engine yet when the signal lands
	// right after startup; wait for it so the engine stop is never
	// skipped and the ack always sends.
	var engine *gnet.Engine
	for deadline := time.Now().Add(2 * time.Second); ; {
		t.engineMu.Lock()
		engine = t.engine
		t.engineMu.Unlock()
		if engine != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		(*engine).Stop(ctx)
	}

	t.wg.Wait()
	t.sctx.Shutdown.Ack()
}

// Stats returns source statistics.
func (t *TCPSocketSource) Stats() Stats {
	lastEvent, _ := t.lastEventTime.Load().(time.Time)

	return Stats{
		Type:              TCPSocketType,
		EventsForwarded:   t.eventsForwarded.Load(),
		ActiveConnections: t.activeConns.Load(),
		StartTime:         t.startTime,
		LastEventTime:     lastEvent,
		Details: map[string]any{
			"host":              t.host,
			"port":              t.port,
			"total_connections": t.totalConns.Load(),
		},
	}
}

// tcpSocketClient holds per-connection read state.
type tcpSocketClient struct {
	pending bytes.Buffer
}

// tcpSocketServer handles gnet events for the source.
type tcpSocketServer struct {
	gnet.BuiltinEventEngine
	source  *TCPSocketSource
	clients map[gnet.Conn]*tcpSocketClient
	mu      sync.RWMutex
}

func (s *tcpSocketServer) OnBoot(eng gnet.Engine) gnet.Action {
	s.source.engineMu.Lock()
	s.source.engine = &eng
	s.source.engineMu.Unlock()
	return gnet.None
}

func (s *tcpSocketServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	src := s.source

	if src.acceptLimiter != nil && !src.acceptLimiter.Allow() {
		src.sctx.Bus.Emit(events.SocketConnectionError{
			Mode:  "tcp",
			Error: fmt.Errorf("connection rejected: accept rate limit exceeded"),
		})
		return nil, gnet.Close
	}

	s.mu.Lock()
	s.clients[c] = &tcpSocketClient{}
	s.mu.Unlock()

	src.totalConns.Add(1)
	src.activeConns.Add(1)
	src.sctx.Bus.Emit(events.SocketConnectionEstablished{
		Mode: "tcp",
		Peer: c.RemoteAddr().String(),
	})
	return nil, gnet.None
}

func (s *tcpSocketServer) OnClose(c gnet.Conn, err error) gnet.Action {
	s.mu.Lock()
	client, exists := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()

	// Rejected connections were never registered and never counted.
	if exists {
		s.flushTail(client)
		s.source.activeConns.Add(-1)
	}
	return gnet.None
}

// flushTail handles leftover bytes at connection close. A trailing
// newline-less record is still a record; an octet-count buffer holding
// an unfulfilled length prefix is a truncated frame, never an event.
func (s *tcpSocketServer) flushTail(client *tcpSocketClient) {
	src := s.source
	if client.pending.Len() == 0 {
		return
	}
	if src.pipeline.Framing() == decode.FramingOctetCount {
		src.sctx.Bus.Emit(events.DecodeError{
			Error:      fmt.Errorf("connection closed inside an octet-count frame, %d bytes unparsed", client.pending.Len()),
			SourceType: TCPSocketType,
		})
		return
	}
	tail := bytes.TrimRight(client.pending.Bytes(), "\r\n")
	if len(tail) == 0 {
		return
	}
	evs, derr := src.pipeline.DecodeRecord(tail)
	if derr != nil {
		src.sctx.Bus.Emit(events.DecodeError{Error: derr, SourceType: TCPSocketType})
		return
	}
	if len(evs) > 0 {
		src.sctx.Bus.Emit(events.EventsReceived{SourceType: TCPSocketType, Count: len(evs)})
	}
	for _, ev := range evs {
		select {
		case src.sctx.Out <- ev:
			src.eventsForwarded.Add(1)
			src.lastEventTime.Store(time.Now())
		case <-src.done:
			return
		}
	}
}

func (s *tcpSocketServer) OnTraffic(c gnet.Conn) gnet.Action {
	s.mu.RLock()
	client, exists := s.clients[c]
	s.mu.RUnlock()
	if !exists {
		return gnet.Close
	}

	src := s.source
	data, err := c.Next(-1)
	if err != nil {
		src.sctx.Bus.Emit(events.SocketError{
			Mode:  "tcp",
			Error: err,
			Path:  c.RemoteAddr().String(),
		})
		return gnet.Close
	}

	client.pending.Write(data)

	records, ferr := decode.ExtractRecords(&client.pending, src.pipeline.Framing())
	for _, record := range records {
		evs, derr := src.pipeline.DecodeRecord(record)
		if derr != nil {
			src.sctx.Bus.Emit(events.DecodeError{Error: derr, SourceType: TCPSocketType})
			return gnet.Close
		}
		if len(evs) > 0 {
			src.sctx.Bus.Emit(events.EventsReceived{SourceType: TCPSocketType, Count: len(evs)})
		}
		for _, ev := range evs {
			select {
			case src.sctx.Out <- ev:
				src.eventsForwarded.Add(1)
				src.lastEventTime.Store(time.Now())
			case <-src.done:
				return gnet.Close
			}
		}
	}
	if ferr != nil {
		src.sctx.Bus.Emit(events.DecodeError{Error: ferr, SourceType: TCPSocketType})
		return gnet.Close
	}

	return gnet.None
}
