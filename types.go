package identity

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Trust reports whether a token's claims were cryptographically verified or
// merely decoded because no signing key was available.
type Trust int

const (
	TrustUnverified Trust = iota
	TrustVerified
)

func (t Trust) String() string {
	if t == TrustVerified {
		return "verified"
	}
	return "unverified"
}

// ExternalIdentity is the transient identity assertion extracted from a
// provider token. It is never persisted; it only feeds reconciliation.
type ExternalIdentity struct {
	SubjectID      string
	Email          string
	DisplayName    string
	DirectoryRoles []string
}

// ExternalTokenVerifier validates third-party access tokens offline and
// returns the normalized identity along with the trust level of the result.
type ExternalTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*ExternalIdentity, Trust, error)
}

// Identity holds the attributes of an authenticated identity
type Identity interface {
	ID() string
	Email() string
	Name() string
	Role() string
}

// TokenService issues and validates the application's own session tokens
type TokenService interface {
	Issue(identity Identity) (string, error)
	SignClaims(claims *SessionClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// Config holds auth options
type Config interface {
	// GetSigningKeys returns session signing secrets, newest first. The
	// first entry signs; every entry is accepted during validation so
	// secrets can rotate without invalidating live sessions.
	GetSigningKeys() []string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetAuthScheme() string
	// GetAdminAllowList returns the emails pre-authorized for the admin
	// role. Read at reconciliation time, never cached.
	GetAdminAllowList() []string
	// GetAllowUnverified enables the degraded unverified-decode path when
	// the provider key set is unreachable. Defaults off: fail closed.
	GetAllowUnverified() bool
}

// SimpleConfig is a plain-struct Config implementation.
type SimpleConfig struct {
	SigningKeys     []string
	TokenExpiration int
	Issuer          string
	Audience        []string
	ContextKey      string
	AuthScheme      string
	AdminAllowList  []string
	AllowUnverified bool
}

var _ Config = (*SimpleConfig)(nil)

func (c *SimpleConfig) GetSigningKeys() []string    { return c.SigningKeys }
func (c *SimpleConfig) GetIssuer() string           { return c.Issuer }
func (c *SimpleConfig) GetAudience() []string       { return c.Audience }
func (c *SimpleConfig) GetAdminAllowList() []string { return c.AdminAllowList }
func (c *SimpleConfig) GetAllowUnverified() bool    { return c.AllowUnverified }

func (c *SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c *SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

func (c *SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

// NopLogger discards every log line.
type NopLogger struct{}

func (NopLogger) Debug(format string, args ...any) {}
func (NopLogger) Info(format string, args ...any)  {}
func (NopLogger) Warn(format string, args ...any)  {}
func (NopLogger) Error(format string, args ...any) {}

var _ Logger = NopLogger{}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
