// FILE: siphon/src/internal/service/service.go
package service

import (
	"fmt"
	"sync"
	"time"

	"siphon/src/internal/config"
	"siphon/src/internal/core"
	"siphon/src/internal/events"
	"siphon/src/internal/shutdown"
	"siphon/src/internal/source"

	"github.com/lixenwraith/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Service manages the configured sources, the shutdown coordinator and
// the shared output channel they all feed.
type Service struct {
	cfg         *config.Config
	sources     map[string]source.Source
	mu          sync.RWMutex
	out         chan core.Event
	bus         *events.Bus
	metrics     *events.Metrics
	coordinator *shutdown.Coordinator
	registry    *prometheus.Registry
	logger      *log.Logger
	startTime   time.Time
}

// NewService creates an empty service with its event bus and
// coordinator wired up. Sources are added by Start.
func NewService(cfg *config.Config, logger *log.Logger) (*Service, error) {
	registry := prometheus.NewRegistry()
	metrics := events.NewMetrics(registry)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Service{
		cfg:         cfg,
		sources:     make(map[string]source.Source),
		out:         make(chan core.Event, cfg.Output.BufferSize),
		bus:         events.NewBus(logger, metrics),
		metrics:     metrics,
		coordinator: shutdown.NewCoordinator(logger),
		registry:    registry,
		logger:      logger,
		startTime:   time.Now(),
	}, nil
}

// Events returns the channel all sources forward decoded events to.
func (s *Service) Events() <-chan core.Event {
	return s.out
}

// Registry returns the prometheus registry holding the service counters.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Start registers, constructs and starts every configured source.
// The first failure tears down nothing already running; the caller
// shuts the service down on error.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Sources {
		srcCfg := &s.cfg.Sources[i]

		handle, err := s.coordinator.Register(srcCfg.Name)
		if err != nil {
			return fmt.Errorf("failed to register source '%s': %w", srcCfg.Name, err)
		}

		sctx := source.Context{
			Key:      srcCfg.Name,
			Out:      s.out,
			Shutdown: handle,
			Bus:      s.bus,
			Logger:   s.logger,
		}

		src, err := s.createSource(srcCfg, sctx)
		if err != nil {
			s.coordinator.Deregister(srcCfg.Name)
			return fmt.Errorf("failed to create source '%s': %w", srcCfg.Name, err)
		}

		if err := src.Start(); err != nil {
			s.coordinator.Deregister(srcCfg.Name)
			return fmt.Errorf("failed to start source '%s': %w", srcCfg.Name, err)
		}

		s.sources[srcCfg.Name] = src
		s.logger.Info("msg", "Source started",
			"component", "service",
			"source", srcCfg.Name,
			"type", srcCfg.Type)
	}

	s.logger.Info("msg", "Service started",
		"component", "service",
		"sources", len(s.sources))
	return nil
}

// Shutdown signals every source and waits for acknowledgements until
// the shared deadline. Returns false if any source failed to ack in
// time.
func (s *Service) Shutdown(timeout time.Duration) bool {
	s.logger.Info("msg", "Service shutdown initiated",
		"component", "service",
		"timeout", timeout.String())

	deadline := time.Now().Add(timeout)

	s.mu.RLock()
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	s.mu.RUnlock()

	results := make(chan bool, len(names))
	for _, name := range names {
		go func(id string) {
			results <- s.coordinator.ShutdownSource(id, deadline)
		}(name)
	}

	clean := true
	for range names {
		if !<-results {
			clean = false
		}
	}

	s.mu.Lock()
	s.sources = make(map[string]source.Source)
	s.mu.Unlock()

	if clean {
		s.logger.Info("msg", "Service shutdown complete", "component", "service")
	} else {
		s.logger.Warn("msg", "Service shutdown incomplete - sources timed out",
			"component", "service")
	}
	return clean
}

// GetStats returns statistics for all running sources.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sourceStats := make(map[string]any, len(s.sources))
	for name, src := range s.sources {
		stats := src.Stats()
		sourceStats[name] = map[string]any{
			"type":               stats.Type,
			"events_forwarded":   stats.EventsForwarded,
			"attempts":           stats.Attempts,
			"failed_attempts":    stats.FailedAttempts,
			"active_connections": stats.ActiveConnections,
			"start_time":         stats.StartTime,
			"last_event_time":    stats.LastEventTime,
			"details":            stats.Details,
		}
	}

	return map[string]any{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"total_sources":  len(s.sources),
		"sources":        sourceStats,
	}
}

// createSource is a factory function for creating a source instance
// from configuration.
func (s *Service) createSource(cfg *config.SourceConfig, sctx source.Context) (source.Source, error) {
	switch cfg.Type {
	case "http_scrape":
		return source.NewHTTPScrapeSource(cfg.HTTPScrape, sctx)
	case "unix_socket":
		return source.NewUnixSocketSource(cfg.UnixSocket, sctx)
	case "tcp_socket":
		return source.NewTCPSocketSource(cfg.TCPSocket, sctx)
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
