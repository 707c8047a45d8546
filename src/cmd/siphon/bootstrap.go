// FILE: siphon/src/cmd/siphon/bootstrap.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"siphon/src/internal/config"
	"siphon/src/internal/service"
	"siphon/src/internal/sink"
	"siphon/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// bootstrapService creates the service, starts all configured sources
// and wires the output channel to the console sink.
func bootstrapService(ctx context.Context, cfg *config.Config) (*service.Service, *sink.ConsoleSink, error) {
	svc, err := service.NewService(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	if err := svc.Start(); err != nil {
		svc.Shutdown(5 * time.Second)
		return nil, nil, err
	}

	target := "stdout"
	if cfg.Logging != nil && cfg.Logging.Console != nil && cfg.Logging.Console.Target == "stdout" {
		// Keep diagnostics and event output on separate streams.
		target = "stderr"
	}
	consoleSink := sink.NewConsoleSink(target, logger)
	consoleSink.Start(ctx, svc.Events())

	if cfg.Metrics.Enabled {
		startMetricsListener(svc, cfg.Metrics.Port)
	}

	logger.Info("msg", "Siphon started",
		"version", version.Short(),
		"sources", len(cfg.Sources))

	return svc, consoleSink, nil
}

// startMetricsListener exposes the service counters on /metrics.
func startMetricsListener(svc *service.Service, port int64) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(svc.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("msg", "Metrics listener starting",
			"component", "metrics",
			"port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("msg", "Metrics listener failed",
				"component", "metrics",
				"error", err)
		}
	}()
}

// initializeLogger sets up the logger based on configuration
func initializeLogger(cfg *config.Config) error {
	logger = log.NewLogger()

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = config.DefaultLogConfig()
	}

	level := logCfg.Level
	if *logLevel != "" {
		level = *logLevel
	}
	levelValue, err := parseLogLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var configArgs []string
	configArgs = append(configArgs, fmt.Sprintf("level=%d", levelValue))

	output := logCfg.Output
	if *logOutput != "" {
		output = *logOutput
	}

	switch output {
	case "none":
		configArgs = append(configArgs, "disable_file=true", "enable_stdout=false")

	case "stdout":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target=stdout")

	case "stderr":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target=stderr")

	case "file":
		configArgs = append(configArgs, "enable_stdout=false")
		configureFileLogging(&configArgs, logCfg)

	case "both":
		configArgs = append(configArgs, "enable_stdout=true")
		configureFileLogging(&configArgs, logCfg)
		configureConsoleTarget(&configArgs, logCfg)

	default:
		return fmt.Errorf("invalid log output mode: %s", output)
	}

	if logCfg.Console != nil && logCfg.Console.Format != "" {
		configArgs = append(configArgs, fmt.Sprintf("format=%s", logCfg.Console.Format))
	}

	return logger.ApplyConfigString(configArgs...)
}

// configureFileLogging sets up file-based logging parameters
func configureFileLogging(configArgs *[]string, logCfg *config.LogConfig) {
	if logCfg.File == nil {
		return
	}

	directory := logCfg.File.Directory
	if *logDir != "" {
		directory = *logDir
	}

	*configArgs = append(*configArgs,
		fmt.Sprintf("directory=%s", directory),
		fmt.Sprintf("name=%s", logCfg.File.Name),
		fmt.Sprintf("max_size_mb=%d", logCfg.File.MaxSizeMB),
		fmt.Sprintf("max_total_size_mb=%d", logCfg.File.MaxTotalSizeMB))

	if logCfg.File.RetentionHours > 0 {
		*configArgs = append(*configArgs,
			fmt.Sprintf("retention_period_hrs=%.1f", logCfg.File.RetentionHours))
	}
}

// configureConsoleTarget sets up console output parameters
func configureConsoleTarget(configArgs *[]string, logCfg *config.LogConfig) {
	target := "stderr"
	if logCfg.Console != nil && logCfg.Console.Target != "" {
		target = logCfg.Console.Target
	}
	*configArgs = append(*configArgs, fmt.Sprintf("stdout_target=%s", target))
}
