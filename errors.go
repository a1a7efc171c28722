package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed    = "token_malformed"
	TextCodeInvalidSignature  = "token_invalid_signature"
	TextCodeTokenExpired      = "token_expired"
	TextCodeKeySetUnavailable = "key_set_unavailable"
	TextCodeUnauthorized      = "unauthorized"
	TextCodeForbidden         = "insufficient_role"
	TextCodeUserPending       = "pending_approval"
	TextCodeUserSuspended     = "suspended"
	TextCodeInvalidOperation  = "invalid_operation"
	TextCodeIdentityNotFound  = "identity_not_found"
)

// ErrTokenMalformed is returned when a token cannot be parsed at all.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidSignature is returned when a signature check fails against a
// known key. This is a hard failure; it never degrades to an unverified decode.
var ErrInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidSignature).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned for tokens past their expiry, regardless of
// trust level.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrKeySetUnavailable is returned when the provider key set cannot be
// fetched and no usable cache remains. Soft failure: it enables the
// unverified-decode path when that mode is enabled.
var ErrKeySetUnavailable = errors.New("signing key set unavailable", errors.CategoryAuth).
	WithTextCode(TextCodeKeySetUnavailable).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthorized is returned when a request carries no valid session.
var ErrUnauthorized = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when an authenticated user lacks the role an
// operation requires.
var ErrForbidden = errors.New("insufficient role", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrUserPending is returned for accounts awaiting administrator approval.
var ErrUserPending = errors.New("account pending approval", errors.CategoryAuthz).
	WithTextCode(TextCodeUserPending).
	WithCode(errors.CodeForbidden)

// ErrUserSuspended is returned for suspended accounts.
var ErrUserSuspended = errors.New("account suspended", errors.CategoryAuthz).
	WithTextCode(TextCodeUserSuspended).
	WithCode(errors.CodeForbidden)

// ErrInvalidOperation is returned when a self-protection invariant is
// violated (self-suspend, self-delete, self-demote).
var ErrInvalidOperation = errors.New("operation not permitted on own account", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidOperation).
	WithCode(errors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// decorate copies a sentinel for per-call annotation. The sentinel stays in
// the clone's unwrap chain so errors.Is keeps matching it.
func decorate(sentinel *errors.Error) *errors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsInvalidSignatureError will check for signature mismatches
func IsInvalidSignatureError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token signature is invalid")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
