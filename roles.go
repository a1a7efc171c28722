package identity

// UserRole is the user's role
type UserRole = string

const (
	// RoleViewer is a read-only role
	RoleViewer UserRole = "viewer"
	// RoleContributor is a member role (view, edit)
	RoleContributor UserRole = "contributor"
	// RoleAdmin is the administrative role
	RoleAdmin UserRole = "admin"
)

// legacyRoleConsumer predates the viewer role. It is mapped forward at the
// ingress boundary and never written back.
const legacyRoleConsumer UserRole = "consumer"

// NormalizeRole maps legacy role strings onto the closed enum. It is invoked
// once where identities enter the system (registration, external login);
// nothing else should reference legacy values.
func NormalizeRole(role string) UserRole {
	if role == legacyRoleConsumer {
		return RoleViewer
	}
	return UserRole(role)
}

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleViewer, RoleContributor, RoleAdmin:
		return true
	default:
		return false
	}
}

// RoleAtLeast checks if a role meets the minimum required level
// (viewer < contributor < admin).
func RoleAtLeast(r, minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleViewer:      0,
		RoleContributor: 1,
		RoleAdmin:       2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []UserRole {
	return []UserRole{
		RoleViewer,
		RoleContributor,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole, mapping legacy values
// forward first.
func ParseRole(roleStr string) (UserRole, bool) {
	role := NormalizeRole(roleStr)
	return role, IsValidRole(role)
}
