// FILE: siphon/src/internal/config/source.go
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceConfig selects and configures one ingestion endpoint. The Name
// is the component key: globally unique among running sources.
type SourceConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`

	HTTPScrape *HTTPScrapeOptions `toml:"http_scrape"`
	UnixSocket *UnixSocketOptions `toml:"unix_socket"`
	TCPSocket  *TCPSocketOptions  `toml:"tcp_socket"`
}

// HTTPScrapeOptions configures a poll-driven source that fetches an HTTP
// endpoint on a fixed interval.
type HTTPScrapeOptions struct {
	Endpoint           string            `toml:"endpoint"`
	ScrapeIntervalSecs int64             `toml:"scrape_interval_secs"`
	TimeoutSecs        int64             `toml:"timeout_secs"`
	Method             string            `toml:"method"`
	Query              map[string]string `toml:"query"`
	Headers            map[string]string `toml:"headers"`
	Decoding           string            `toml:"decoding"`
	Framing            string            `toml:"framing"`
	Auth               *AuthOptions      `toml:"auth"`
	TLS                *TLSClientOptions `toml:"tls"`
	LogNamespace       bool              `toml:"log_namespace"`
}

// UnixSocketOptions configures a connection-driven source listening on a
// unix domain socket.
type UnixSocketOptions struct {
	Path             string  `toml:"path"`
	Decoding         string  `toml:"decoding"`
	Framing          string  `toml:"framing"`
	AcceptsPerSecond float64 `toml:"accepts_per_second"`
	AcceptBurst      int64   `toml:"accept_burst"`
}

// TCPSocketOptions configures a connection-driven source listening on a
// TCP port.
type TCPSocketOptions struct {
	Host             string  `toml:"host"`
	Port             int64   `toml:"port"`
	Decoding         string  `toml:"decoding"`
	Framing          string  `toml:"framing"`
	AcceptsPerSecond float64 `toml:"accepts_per_second"`
	AcceptBurst      int64   `toml:"accept_burst"`
}

var validMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "DELETE": true,
}

var validDecodings = map[string]bool{
	"": true, "bytes": true, "json": true, "native_json": true,
}

// streamFramings are the strategies usable on a connection byte stream.
var streamFramings = map[string]bool{
	"newline": true, "octet_count": true,
}

var validFramings = map[string]bool{
	"": true, "whole_body": true, "newline": true, "octet_count": true,
}

func (s *SourceConfig) validate() error {
	if s.Name == "" {
		return fmt.Errorf("source requires a name")
	}

	switch s.Type {
	case "http_scrape":
		if s.HTTPScrape == nil {
			return fmt.Errorf("http_scrape source %q missing options", s.Name)
		}
		return s.HTTPScrape.validate()
	case "unix_socket":
		if s.UnixSocket == nil {
			return fmt.Errorf("unix_socket source %q missing options", s.Name)
		}
		return s.UnixSocket.validate()
	case "tcp_socket":
		if s.TCPSocket == nil {
			return fmt.Errorf("tcp_socket source %q missing options", s.Name)
		}
		return s.TCPSocket.validate()
	default:
		return fmt.Errorf("unknown source type: %q", s.Type)
	}
}

func (o *HTTPScrapeOptions) validate() error {
	if o.Endpoint == "" {
		return fmt.Errorf("http_scrape requires an endpoint")
	}
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", o.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https: %q", o.Endpoint)
	}

	if o.ScrapeIntervalSecs < 1 {
		return fmt.Errorf("scrape interval must be positive: %d", o.ScrapeIntervalSecs)
	}
	if o.TimeoutSecs < 0 {
		return fmt.Errorf("timeout must not be negative: %d", o.TimeoutSecs)
	}

	if o.Method != "" && !validMethods[strings.ToUpper(o.Method)] {
		return fmt.Errorf("unsupported method: %q", o.Method)
	}
	if !validDecodings[o.Decoding] {
		return fmt.Errorf("unknown decoding format: %q", o.Decoding)
	}
	if !validFramings[o.Framing] {
		return fmt.Errorf("unknown framing strategy: %q", o.Framing)
	}

	if o.Auth != nil {
		if err := o.Auth.validate(); err != nil {
			return err
		}
	}
	if o.TLS != nil {
		if err := o.TLS.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *UnixSocketOptions) validate() error {
	if o.Path == "" {
		return fmt.Errorf("unix_socket requires a path")
	}
	if strings.Contains(o.Path, "..") {
		return fmt.Errorf("socket path contains directory traversal: %q", o.Path)
	}
	if !validDecodings[o.Decoding] {
		return fmt.Errorf("unknown decoding format: %q", o.Decoding)
	}
	if o.Framing != "" && !streamFramings[o.Framing] {
		return fmt.Errorf("framing %q is not usable on a byte stream", o.Framing)
	}
	if o.AcceptsPerSecond < 0 {
		return fmt.Errorf("accepts_per_second must not be negative: %f", o.AcceptsPerSecond)
	}
	return nil
}

func (o *TCPSocketOptions) validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("tcp_socket requires a valid port: %d", o.Port)
	}
	if !validDecodings[o.Decoding] {
		return fmt.Errorf("unknown decoding format: %q", o.Decoding)
	}
	if o.Framing != "" && !streamFramings[o.Framing] {
		return fmt.Errorf("framing %q is not usable on a byte stream", o.Framing)
	}
	if o.AcceptsPerSecond < 0 {
		return fmt.Errorf("accepts_per_second must not be negative: %f", o.AcceptsPerSecond)
	}
	return nil
}
