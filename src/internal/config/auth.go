// FILE: siphon/src/internal/config/auth.go
package config

import "fmt"

// AuthOptions configures how scrape requests authenticate against the
// endpoint.
type AuthOptions struct {
	// Type: "none", "basic", or "bearer".
	Type string `toml:"type"`

	// Basic credentials.
	Username string `toml:"username"`
	Password string `toml:"password"`

	// Bearer: either a static token, or a signing secret from which
	// short-lived HS256 tokens are minted per request window.
	Token          string `toml:"token"`
	JWTSecret      string `toml:"jwt_secret"`
	JWTIssuer      string `toml:"jwt_issuer"`
	JWTLifetimeSec int64  `toml:"jwt_lifetime_secs"`
}

func (a *AuthOptions) validate() error {
	switch a.Type {
	case "", "none":
		return nil
	case "basic":
		if a.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
		return nil
	case "bearer":
		if a.Token == "" && a.JWTSecret == "" {
			return fmt.Errorf("bearer auth requires a token or a jwt_secret")
		}
		if a.Token != "" && a.JWTSecret != "" {
			return fmt.Errorf("bearer auth takes a token or a jwt_secret, not both")
		}
		if a.JWTSecret != "" && a.JWTLifetimeSec < 0 {
			return fmt.Errorf("jwt_lifetime_secs must not be negative: %d", a.JWTLifetimeSec)
		}
		return nil
	default:
		return fmt.Errorf("unknown auth type: %q", a.Type)
	}
}
