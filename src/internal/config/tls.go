// FILE: siphon/src/internal/config/tls.go
package config

import (
	"fmt"
	"os"
)

// TLSClientOptions configures TLS for outbound scrape connections.
type TLSClientOptions struct {
	Enabled bool `toml:"enabled"`

	// CAFile verifies the scraped server's certificate chain.
	CAFile string `toml:"ca_file"`

	// Client certificate for mTLS.
	ClientCertFile string `toml:"client_cert_file"`
	ClientKeyFile  string `toml:"client_key_file"`

	MinVersion         string `toml:"min_version"`
	MaxVersion         string `toml:"max_version"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func (t *TLSClientOptions) validate() error {
	if !t.Enabled {
		return nil
	}

	if t.CAFile != "" {
		if _, err := os.Stat(t.CAFile); err != nil {
			return fmt.Errorf("ca_file not readable: %w", err)
		}
	}

	if (t.ClientCertFile == "") != (t.ClientKeyFile == "") {
		return fmt.Errorf("both client_cert_file and client_key_file must be provided for mTLS")
	}

	return nil
}
