package identity

// UserStatus is the lifecycle state of a user account
type UserStatus = string

const (
	// UserStatusPending means the account exists but an administrator has
	// not approved it yet. Pending users can only read their own profile.
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is a fully authorized account
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended revokes all authorization regardless of role
	UserStatusSuspended UserStatus = "suspended"
)

// IsValidStatus checks if the status is one of the predefined states
func IsValidStatus(s UserStatus) bool {
	switch s {
	case UserStatusPending, UserStatusActive, UserStatusSuspended:
		return true
	default:
		return false
	}
}

// StatusAuthError maps a non-active status to its authorization error.
// Pending and suspended are surfaced distinctly so callers can render a
// "waiting for approval" state instead of a generic denial.
func StatusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive, "":
		return nil
	case UserStatusPending:
		return ErrUserPending
	case UserStatusSuspended:
		return ErrUserSuspended
	default:
		return ErrForbidden
	}
}
