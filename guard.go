package identity

import (
	"github.com/goliatone/go-errors"
)

// Guard predicates compose in front of an operation. They are pure checks;
// handlers decide how failures map onto the wire.

// RequireSession fails when no validated claims are present.
func RequireSession(claims AuthClaims) error {
	if claims == nil {
		return ErrUnauthorized
	}
	return nil
}

// RequireRole fails when the claims do not meet the minimum role for the
// operation (viewer < contributor < admin).
func RequireRole(claims AuthClaims, minRole UserRole) error {
	if claims == nil {
		return ErrUnauthorized
	}

	if !claims.IsAtLeast(string(minRole)) {
		return decorate(ErrForbidden).WithMetadata(map[string]any{
			"required_role": minRole,
			"role":          claims.Role(),
		})
	}

	return nil
}

// RequireActiveStatus fails for anything other than an active account.
// Pending and suspended surface distinct errors; the session token's role
// snapshot is irrelevant here, callers must pass a freshly fetched record.
func RequireActiveStatus(user *User) error {
	if user == nil {
		return ErrUnauthorized
	}
	return StatusAuthError(user.Status)
}

// Self-protection invariants. Role and status mutation share the actor's
// identity with the acting session, so one bad request could strand the
// system with zero active admins. These checks remove that failure mode
// structurally.

// EnsureCanSuspend rejects self-suspension.
func EnsureCanSuspend(actorID string, target *User) error {
	if target == nil {
		return ErrIdentityNotFound
	}
	if actorID != "" && actorID == target.ID.String() {
		return selfProtectionError("suspend")
	}
	return nil
}

// EnsureCanDelete rejects self-deletion.
func EnsureCanDelete(actorID string, target *User) error {
	if target == nil {
		return ErrIdentityNotFound
	}
	if actorID != "" && actorID == target.ID.String() {
		return selfProtectionError("delete")
	}
	return nil
}

// EnsureCanChangeRole rejects a self role change unless the new role is
// admin: a no-op "set to admin" on self stays legal, accidental
// self-demotion from admin does not.
func EnsureCanChangeRole(actorID string, target *User, newRole UserRole) error {
	if target == nil {
		return ErrIdentityNotFound
	}
	if actorID != "" && actorID == target.ID.String() && newRole != RoleAdmin {
		return selfProtectionError("role-change")
	}
	return nil
}

func selfProtectionError(operation string) error {
	return decorate(ErrInvalidOperation).WithMetadata(map[string]any{"operation": operation})
}

// AsRichError normalizes any error into a rich error so HTTP handlers can
// map categories onto status codes uniformly.
func AsRichError(err error) *errors.Error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}

	return errors.Wrap(err, errors.CategoryInternal, "unexpected error")
}
