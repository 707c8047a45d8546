// FILE: siphon/src/internal/source/auth.go
package source

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"siphon/src/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// authProvider produces the Authorization header value for one scrape
// request.
type authProvider interface {
	header() (string, error)
}

// newAuthProvider builds a provider from configuration. Returns nil for
// unauthenticated endpoints.
func newAuthProvider(cfg *config.AuthOptions) (authProvider, error) {
	if cfg == nil {
		return nil, nil
	}

	switch cfg.Type {
	case "", "none":
		return nil, nil

	case "basic":
		if cfg.Username == "" {
			return nil, fmt.Errorf("basic auth requires a username")
		}
		return &basicAuth{user: cfg.Username, password: cfg.Password}, nil

	case "bearer":
		if cfg.Token != "" {
			return &staticBearerAuth{token: cfg.Token}, nil
		}
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("bearer auth requires a token or a jwt_secret")
		}
		lifetime := time.Duration(cfg.JWTLifetimeSec) * time.Second
		if lifetime <= 0 {
			lifetime = 5 * time.Minute
		}
		return &jwtBearerAuth{
			secret:   []byte(cfg.JWTSecret),
			issuer:   cfg.JWTIssuer,
			lifetime: lifetime,
		}, nil

	default:
		return nil, fmt.Errorf("unknown auth type: %q", cfg.Type)
	}
}

type basicAuth struct {
	user     string
	password string
}

func (a *basicAuth) header() (string, error) {
	creds := base64.StdEncoding.EncodeToString([]byte(a.user + ":" + a.password))
	return "Basic " + creds, nil
}

type staticBearerAuth struct {
	token string
}

func (a *staticBearerAuth) header() (string, error) {
	return "Bearer " + a.token, nil
}

// jwtBearerAuth mints short-lived HS256 tokens from a shared secret,
// reusing a token until it nears expiry.
type jwtBearerAuth struct {
	secret   []byte
	issuer   string
	lifetime time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

func (a *jwtBearerAuth) header() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	// Refresh when within 10% of the lifetime from expiry.
	if a.token != "" && now.Add(a.lifetime/10).Before(a.expires) {
		return "Bearer " + a.token, nil
	}

	expires := now.Add(a.lifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign bearer token: %w", err)
	}

	a.token = signed
	a.expires = expires
	return "Bearer " + signed, nil
}
