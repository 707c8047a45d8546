// FILE: siphon/src/internal/tls/client.go
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"siphon/src/internal/config"

	"github.com/lixenwraith/log"
)

// ClientManager handles TLS configuration for outbound scrape
// connections.
type ClientManager struct {
	config    *config.TLSClientOptions
	tlsConfig *tls.Config
	logger    *log.Logger
}

// NewClientManager creates a TLS manager for the HTTP scrape client.
// Returns (nil, nil) when TLS is not enabled.
func NewClientManager(cfg *config.TLSClientOptions, logger *log.Logger) (*ClientManager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	m := &ClientManager{
		config: cfg,
		logger: logger,
		tlsConfig: &tls.Config{
			MinVersion: parseTLSVersion(cfg.MinVersion, tls.VersionTLS12),
			MaxVersion: parseTLSVersion(cfg.MaxVersion, tls.VersionTLS13),
		},
	}

	// Client certificate for mTLS, if provided.
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		m.tlsConfig.Certificates = []tls.Certificate{clientCert}
	} else if cfg.ClientCertFile != "" || cfg.ClientKeyFile != "" {
		return nil, fmt.Errorf("both client_cert_file and client_key_file must be provided for mTLS")
	}

	// CA pool for server verification.
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		m.tlsConfig.RootCAs = caCertPool
	}

	m.tlsConfig.InsecureSkipVerify = cfg.InsecureSkipVerify
	m.tlsConfig.ServerName = cfg.ServerName

	logger.Info("msg", "TLS client manager initialized",
		"component", "tls",
		"has_client_cert", cfg.ClientCertFile != "",
		"has_ca", cfg.CAFile != "",
		"min_version", tlsVersionString(m.tlsConfig.MinVersion))
	return m, nil
}

// GetConfig returns a copy of the client's TLS configuration.
func (m *ClientManager) GetConfig() *tls.Config {
	if m == nil {
		return nil
	}
	return m.tlsConfig.Clone()
}

// GetStats returns statistics about the current client TLS configuration.
func (m *ClientManager) GetStats() map[string]any {
	if m == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":              true,
		"min_version":          tlsVersionString(m.tlsConfig.MinVersion),
		"max_version":          tlsVersionString(m.tlsConfig.MaxVersion),
		"has_client_cert":      m.config.ClientCertFile != "",
		"has_ca":               m.config.CAFile != "",
		"insecure_skip_verify": m.config.InsecureSkipVerify,
	}
}
