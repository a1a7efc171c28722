package msid

import (
	"context"
	"time"

	"github.com/abhinandanshahdev/go-identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenVerifier validates Microsoft access tokens offline against the
// KeyRing and extracts normalized identity claims.
type TokenVerifier struct {
	keyRing         KeyRing
	allowUnverified bool
	logger          identity.Logger
	now             func() time.Time
}

var _ identity.ExternalTokenVerifier = (*TokenVerifier)(nil)

// NewTokenVerifier creates a verifier for the configured tenant. The key
// ring is built from the same Config unless one is injected via WithKeyRing.
func NewTokenVerifier(cfg Config) (*TokenVerifier, error) {
	ring, err := NewJWKSKeyRing(cfg)
	if err != nil {
		return nil, err
	}

	return &TokenVerifier{
		keyRing:         ring,
		allowUnverified: cfg.AllowUnverified,
		logger:          cfg.logger(),
		now:             time.Now,
	}, nil
}

// WithKeyRing swaps the key ring; tests inject fakes through this.
func (v *TokenVerifier) WithKeyRing(ring KeyRing) *TokenVerifier {
	if ring != nil {
		v.keyRing = ring
	}
	return v
}

// WithClock overrides the clock, useful for tests.
func (v *TokenVerifier) WithClock(clock func() time.Time) *TokenVerifier {
	if clock != nil {
		v.now = clock
	}
	return v
}

// Verify checks a raw bearer token and returns its normalized claims plus
// the trust level of the result.
//
// A key that is present and fails the signature check is a hard failure;
// the unverified fallback only ever covers the no-key-available case, and
// only when the deployment opted in. Expiry is enforced on both paths.
func (v *TokenVerifier) Verify(ctx context.Context, rawToken string) (*identity.ExternalIdentity, identity.Trust, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	// Structural parse only; nothing in the token is trusted yet.
	unverified, _, err := parser.ParseUnverified(rawToken, claims)
	if err != nil {
		return nil, identity.TrustUnverified, identity.ErrTokenMalformed
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, identity.TrustUnverified, identity.ErrTokenMalformed
	}

	key, err := v.keyRing.Key(ctx, kid)
	if err != nil {
		// An unknown kid in a set we could consult is a hard failure, not
		// an outage; the unverified fallback never applies to it.
		if errors.Is(err, ErrKeyNotFound) {
			v.logger.Error("token signed by a key absent from the current key set", "kid", kid)
			return nil, identity.TrustUnverified,
				errors.Wrap(err, errors.CategoryAuth, "token signed by unknown key").
					WithCode(errors.CodeUnauthorized)
		}
		return v.degrade(claims, kid, err)
	}

	return v.verifySigned(rawToken, key)
}

func (v *TokenVerifier) verifySigned(rawToken string, key any) (*identity.ExternalIdentity, identity.Trust, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(v.now),
	)

	token, err := parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, identity.TrustVerified, identity.ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			v.logger.Error("token signature mismatch against known key")
			return nil, identity.TrustUnverified, identity.ErrInvalidSignature
		}
		return nil, identity.TrustUnverified, errors.Wrap(err, identity.ErrTokenMalformed.Category, identity.ErrTokenMalformed.Message).
			WithTextCode(identity.ErrTokenMalformed.TextCode)
	}

	if !token.Valid {
		return nil, identity.TrustUnverified, identity.ErrTokenMalformed
	}

	return normalizeClaims(claims), identity.TrustVerified, nil
}

// degrade handles the no-key-available path. With the fallback disabled the
// request fails closed; with it enabled the payload is decoded without
// signature verification and flagged unverified. Expiry still applies.
func (v *TokenVerifier) degrade(claims jwt.MapClaims, kid string, keyErr error) (*identity.ExternalIdentity, identity.Trust, error) {
	if !v.allowUnverified {
		v.logger.Error("no signing key available and unverified decode is disabled",
			"kid", kid, "error", keyErr)
		return nil, identity.TrustUnverified, identity.ErrKeySetUnavailable
	}

	if err := v.checkExpiry(claims); err != nil {
		return nil, identity.TrustUnverified, err
	}

	v.logger.Warn("verifying token WITHOUT signature check, key set unavailable",
		"kid", kid, "error", keyErr)

	return normalizeClaims(claims), identity.TrustUnverified, nil
}

// checkExpiry enforces exp on the unverified path; expired tokens always
// fail regardless of trust level.
func (v *TokenVerifier) checkExpiry(claims jwt.MapClaims) error {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return identity.ErrTokenMalformed
	}

	if exp == nil || !exp.Time.After(v.now()) {
		return identity.ErrTokenExpired
	}

	return nil
}
