// FILE: siphon/src/internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

// Config is the root configuration tree.
type Config struct {
	Logging *LogConfig     `toml:"logging"`
	Output  OutputConfig   `toml:"output"`
	Metrics MetricsConfig  `toml:"metrics"`
	Sources []SourceConfig `toml:"sources"`
}

// OutputConfig bounds the conduit into the downstream router. A full
// channel throttles every source's forward step.
type OutputConfig struct {
	BufferSize int64 `toml:"buffer_size"`
}

// MetricsConfig controls the optional Prometheus exposition listener.
type MetricsConfig struct {
	Enabled bool  `toml:"enabled"`
	Port    int64 `toml:"port"`
}

func defaults() *Config {
	return &Config{
		Logging: DefaultLogConfig(),
		Output: OutputConfig{
			BufferSize: 1000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9598,
		},
	}
}

// Load builds the configuration from defaults, file, environment and CLI
// arguments, in ascending precedence.
func Load(cliArgs []string) (*Config, error) {
	configPath := GetConfigPath()

	cfg, err := lconfig.NewBuilder().
		WithDefaults(defaults()).
		WithEnvPrefix("SIPHON_").
		WithFile(configPath).
		WithArgs(cliArgs).
		WithSources(
			lconfig.SourceCLI,
			lconfig.SourceEnv,
			lconfig.SourceFile,
			lconfig.SourceDefault,
		).
		Build()

	if err != nil {
		if !strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	finalConfig := &Config{}
	if err := cfg.Scan(finalConfig); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	return finalConfig, finalConfig.Validate()
}

// GetConfigPath resolves the config file location from the environment,
// falling back to ~/.config/siphon.toml.
func GetConfigPath() string {
	if configFile := os.Getenv("SIPHON_CONFIG_FILE"); configFile != "" {
		if filepath.IsAbs(configFile) {
			return configFile
		}
		if configDir := os.Getenv("SIPHON_CONFIG_DIR"); configDir != "" {
			return filepath.Join(configDir, configFile)
		}
		return configFile
	}

	if configDir := os.Getenv("SIPHON_CONFIG_DIR"); configDir != "" {
		return filepath.Join(configDir, "siphon.toml")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "siphon.toml")
	}

	return "siphon.toml"
}

// Validate checks the whole tree. Violations here are configuration
// errors: they abort startup before any source runs.
func (c *Config) Validate() error {
	if c.Logging != nil {
		if err := validateLogConfig(c.Logging); err != nil {
			return err
		}
	}

	if c.Output.BufferSize < 1 {
		return fmt.Errorf("output buffer size must be positive: %d", c.Output.BufferSize)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.validate(); err != nil {
			return fmt.Errorf("source[%d]: %w", i, err)
		}
		if seen[src.Name] {
			return fmt.Errorf("source[%d]: duplicate source name %q", i, src.Name)
		}
		seen[src.Name] = true
	}

	return nil
}
