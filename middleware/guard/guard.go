// Package guard is the request-scoped authorization middleware: it extracts
// the bearer session token, validates it, runs role checks, and stores the
// claims for downstream handlers.
package guard

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ErrJWTMissingOrMalformed is returned when no usable bearer token is found.
const errJWTMissingOrMalformed = "missing or malformed JWT"

// TokenValidator interface for validating tokens without import cycles.
// This mirrors the TokenService.Validate method from the identity package.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// AuthClaims interface for structured claims without import cycles.
// This mirrors the AuthClaims interface from the identity package.
type AuthClaims interface {
	Subject() string
	UserID() string
	UserEmail() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
}

type Config struct {
	// Filter skips the middleware when it returns true.
	Filter func(*fiber.Ctx) bool
	// ErrorHandler converts validation/authorization failures into a
	// response. Defaults to a JSON 401.
	ErrorHandler func(*fiber.Ctx, error) error
	// ContextKey stores validated claims in Locals. Defaults to "user".
	ContextKey string
	// AuthScheme expected in the Authorization header. Defaults to "Bearer".
	AuthScheme string

	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// RequiredRole specifies an exact role that must be present
	RequiredRole string
	// MinimumRole specifies the minimum role level required (uses role hierarchy)
	MinimumRole string
}

// New builds the middleware from the given configuration.
func New(config ...Config) fiber.Handler {
	cfg := defaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractBearerToken(c, cfg.AuthScheme)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		claims, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if err := performAuthorizationChecks(claims, cfg); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, claims)

		return c.Next()
	}
}

// ExtractBearerToken pulls the raw token from the Authorization header.
func ExtractBearerToken(c *fiber.Ctx, authScheme string) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, errJWTMissingOrMalformed)
	}

	if authScheme == "" {
		return header, nil
	}

	prefix := authScheme + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", fiber.NewError(fiber.StatusUnauthorized, errJWTMissingOrMalformed)
	}

	return strings.TrimSpace(header[len(prefix):]), nil
}

func performAuthorizationChecks(claims AuthClaims, cfg Config) error {
	if cfg.RequiredRole == "" && cfg.MinimumRole == "" {
		return nil
	}

	if cfg.RequiredRole != "" && !claims.HasRole(cfg.RequiredRole) {
		return fiber.NewError(fiber.StatusForbidden, "access denied: required role '"+cfg.RequiredRole+"' not found")
	}

	if cfg.MinimumRole != "" && !claims.IsAtLeast(cfg.MinimumRole) {
		return fiber.NewError(fiber.StatusForbidden, "access denied: minimum role '"+cfg.MinimumRole+"' required")
	}

	return nil
}

func defaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic("GUARD: middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if e, ok := err.(*fiber.Error); ok {
				fiberErr = e
			}
			if fiberErr != nil && fiberErr.Code == fiber.StatusForbidden {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}
	}

	return cfg
}

// ClaimsFromContext returns the validated claims a successful middleware
// pass stored in Locals.
func ClaimsFromContext(c *fiber.Ctx, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user"
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}
