package msid

import (
	"fmt"
	"net/http"
	"time"

	"github.com/abhinandanshahdev/go-identity"
)

const defaultJWKSURLFormat = "https://login.microsoftonline.com/%s/discovery/v2.0/keys"

// Config configures the Microsoft token verifier.
type Config struct {
	// TenantID selects the directory tenant; used to derive the JWKS URL
	// when JWKSURL is empty. "common" is accepted for multi-tenant apps.
	TenantID string
	// JWKSURL overrides the derived key set endpoint.
	JWKSURL string

	// RefreshTTL is how long a fetched key set is considered fresh.
	// Default 15m.
	RefreshTTL time.Duration
	// MaxStale bounds how long a stale key set may still serve lookups
	// after refreshes start failing. Default 4x RefreshTTL.
	MaxStale time.Duration
	// FetchTimeout bounds a single JWKS fetch. Default 10s.
	FetchTimeout time.Duration

	// AllowUnverified enables the unverified-decode fallback when no key
	// is available. Off by default: fail closed.
	AllowUnverified bool

	HTTPClient *http.Client
	Logger     identity.Logger
}

func (c Config) jwksURL() (string, error) {
	if c.JWKSURL != "" {
		return c.JWKSURL, nil
	}
	if c.TenantID == "" {
		return "", fmt.Errorf("msid: tenant id or JWKS URL is required")
	}
	return fmt.Sprintf(defaultJWKSURLFormat, c.TenantID), nil
}

func (c Config) refreshTTL() time.Duration {
	if c.RefreshTTL > 0 {
		return c.RefreshTTL
	}
	return 15 * time.Minute
}

func (c Config) maxStale() time.Duration {
	if c.MaxStale > 0 {
		return c.MaxStale
	}
	return 4 * c.refreshTTL()
}

func (c Config) fetchTimeout() time.Duration {
	if c.FetchTimeout > 0 {
		return c.FetchTimeout
	}
	return 10 * time.Second
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Config) logger() identity.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return identity.NopLogger{}
}
