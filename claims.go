package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents validated session claims
type AuthClaims interface {
	Subject() string
	UserID() string
	UserEmail() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete implementation of AuthClaims carried by the
// application's own session tokens. The embedded role is a login-time
// snapshot: status-sensitive operations must re-fetch the User record
// because a token can outlive a suspension.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	Email    string `json:"email,omitempty"`
	UserRole string `json:"role,omitempty"`
}

var _ AuthClaims = (*SessionClaims)(nil)

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// UserEmail returns the email claim
func (c *SessionClaims) UserEmail() string {
	return c.Email
}

// Role returns the user's role snapshot
func (c *SessionClaims) Role() string {
	return c.UserRole
}

// HasRole checks if the claims carry a specific role
func (c *SessionClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *SessionClaims) IsAtLeast(minRole string) bool {
	return RoleAtLeast(UserRole(c.UserRole), UserRole(minRole))
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
