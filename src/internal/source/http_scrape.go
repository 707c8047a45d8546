// FILE: siphon/src/internal/source/http_scrape.go
package source

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"siphon/src/internal/config"
	"siphon/src/internal/core"
	"siphon/src/internal/decode"
	"siphon/src/internal/events"
	ltls "siphon/src/internal/tls"

	"github.com/valyala/fasthttp"
)

// HTTPScrapeType is the component type name stamped on produced events.
const HTTPScrapeType = "http_scrape"

const defaultScrapeTimeout = 10 * time.Second

// HTTPScrapeSource polls an HTTP endpoint on a fixed interval and
// decodes each response body into events. Attempt outcomes are isolated:
// a failed fetch is reported and the loop continues at the next tick.
type HTTPScrapeSource struct {
	sctx     Context
	opts     *config.HTTPScrapeOptions
	client   *fasthttp.Client
	pipeline *decode.Pipeline

	requestURL string
	method     string
	interval   time.Duration
	timeout    time.Duration
	auth       authProvider
	tlsManager *ltls.ClientManager

	// Statistics
	attempts        atomic.Uint64
	failedAttempts  atomic.Uint64
	eventsForwarded atomic.Uint64
	startTime       time.Time
	lastEventTime   atomic.Value // time.Time
}

// NewHTTPScrapeSource validates the options and builds the source. Any
// error here prevents the source from starting.
func NewHTTPScrapeSource(opts *config.HTTPScrapeOptions, sctx Context) (*HTTPScrapeSource, error) {
	if opts == nil {
		return nil, fmt.Errorf("http_scrape options cannot be nil")
	}

	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", opts.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint scheme must be http or https: %q", opts.Endpoint)
	}
	if opts.ScrapeIntervalSecs < 1 {
		return nil, fmt.Errorf("scrape interval must be positive: %d", opts.ScrapeIntervalSecs)
	}

	// Fold configured query parameters into the endpoint URL.
	if len(opts.Query) > 0 {
		q := u.Query()
		for k, v := range opts.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	framing, err := decode.ParseFraming(opts.Framing)
	if err != nil {
		return nil, err
	}
	format, err := decode.ParseFormat(opts.Decoding)
	if err != nil {
		return nil, err
	}

	auth, err := newAuthProvider(opts.Auth)
	if err != nil {
		return nil, err
	}

	method := "GET"
	if opts.Method != "" {
		method = strings.ToUpper(opts.Method)
	}

	timeout := defaultScrapeTimeout
	if opts.TimeoutSecs > 0 {
		timeout = time.Duration(opts.TimeoutSecs) * time.Second
	}

	pipeline := decode.NewPipeline(framing, format, HTTPScrapeType)
	if opts.LogNamespace {
		pipeline = pipeline.Namespaced()
	}

	h := &HTTPScrapeSource{
		sctx:       sctx,
		opts:       opts,
		pipeline:   pipeline,
		requestURL: u.String(),
		method:     method,
		interval:   time.Duration(opts.ScrapeIntervalSecs) * time.Second,
		timeout:    timeout,
		auth:       auth,
		startTime:  time.Now(),
	}
	h.lastEventTime.Store(time.Time{})

	h.client = &fasthttp.Client{
		MaxConnsPerHost:     4,
		MaxIdleConnDuration: 30 * time.Second,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
	}

	if u.Scheme == "https" {
		tlsManager, err := ltls.NewClientManager(opts.TLS, sctx.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS client manager: %w", err)
		}
		h.tlsManager = tlsManager
		if tlsManager != nil {
			h.client.TLSConfig = tlsManager.GetConfig()
		}
	}

	return h, nil
}

// Start launches the scrape loop.
func (h *HTTPScrapeSource) Start() error {
	go h.run()

	h.sctx.Logger.Info("msg", "HTTP scrape source started",
		"component", HTTPScrapeType,
		"source_id", h.sctx.Key,
		"endpoint", h.requestURL,
		"interval", h.interval.String())
	return nil
}

// run performs one attempt per tick until the shutdown signal arrives.
// The wait between ticks is multiplexed with the signal so shutdown is
// observed promptly; an attempt already in flight finishes first, bounded
// by the client timeout.
func (h *HTTPScrapeSource) run() {
	defer h.sctx.Shutdown.Ack()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// First attempt fires immediately rather than one interval in.
	if !h.attempt() {
		return
	}

	for {
		select {
		case <-h.sctx.Shutdown.Signal():
			h.sctx.Logger.Info("msg", "HTTP scrape source stopping",
				"component", HTTPScrapeType,
				"source_id", h.sctx.Key)
			return
		case <-ticker.C:
			if !h.attempt() {
				return
			}
		}
	}
}

// attempt runs one fetch→decode→forward cycle. It returns false only
// when shutdown interrupted the forward step; transport and decode
// failures are reported and absorbed.
func (h *HTTPScrapeSource) attempt() bool {
	h.attempts.Add(1)

	body, ok := h.fetch()
	if !ok {
		h.failedAttempts.Add(1)
		return true
	}

	evs, derrs := h.pipeline.Decode(body)
	for _, derr := range derrs {
		h.sctx.Bus.Emit(events.DecodeError{Error: derr, SourceType: HTTPScrapeType})
	}
	if len(evs) > 0 {
		h.sctx.Bus.Emit(events.EventsReceived{SourceType: HTTPScrapeType, Count: len(evs)})
	}

	return h.forward(evs)
}

// fetch performs the HTTP request and returns the response body.
func (h *HTTPScrapeSource) fetch() ([]byte, bool) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	req.SetRequestURI(h.requestURL)
	req.Header.SetMethod(h.method)
	for k, v := range h.opts.Headers {
		req.Header.Set(k, v)
	}

	if h.auth != nil {
		value, err := h.auth.header()
		if err != nil {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			h.sctx.Bus.Emit(events.HTTPScrapeError{Error: err, URL: h.requestURL})
			return nil, false
		}
		req.Header.Set("Authorization", value)
	}

	err := h.client.DoTimeout(req, resp, h.timeout)

	statusCode := resp.StatusCode()
	var body []byte
	if len(resp.Body()) > 0 {
		body = make([]byte, len(resp.Body()))
		copy(body, resp.Body())
	}

	fasthttp.ReleaseRequest(req)
	fasthttp.ReleaseResponse(resp)

	if err != nil {
		h.sctx.Bus.Emit(events.HTTPScrapeError{Error: err, URL: h.requestURL})
		return nil, false
	}
	if statusCode < 200 || statusCode >= 300 {
		h.sctx.Bus.Emit(events.HTTPScrapeResponseError{StatusCode: statusCode, URL: h.requestURL})
		return nil, false
	}

	return body, true
}

// forward sends decoded events downstream in decode order. A full output
// channel suspends here, which in turn delays the next tick. Returns
// false if shutdown arrived before every event was accepted.
func (h *HTTPScrapeSource) forward(evs []core.Event) bool {
	for _, ev := range evs {
		select {
		case h.sctx.Out <- ev:
			h.eventsForwarded.Add(1)
			h.lastEventTime.Store(time.Now())
		case <-h.sctx.Shutdown.Signal():
			return false
		}
	}
	return true
}

// Stats returns source statistics.
func (h *HTTPScrapeSource) Stats() Stats {
	lastEvent, _ := h.lastEventTime.Load().(time.Time)

	var tlsStats map[string]any
	if h.tlsManager != nil {
		tlsStats = h.tlsManager.GetStats()
	}

	return Stats{
		Type:            HTTPScrapeType,
		EventsForwarded: h.eventsForwarded.Load(),
		Attempts:        h.attempts.Load(),
		FailedAttempts:  h.failedAttempts.Load(),
		StartTime:       h.startTime,
		LastEventTime:   lastEvent,
		Details: map[string]any{
			"endpoint": h.requestURL,
			"method":   h.method,
			"tls":      tlsStats,
		},
	}
}
