package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persisted identity record
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status        UserStatus `bun:"status,notnull" json:"status,omitempty"`
	ExternalID    string     `bun:"external_id,nullzero,unique" json:"external_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureDefaults backfills the zero values a freshly built record may miss.
func (u *User) EnsureDefaults() *User {
	if u.Role == "" {
		u.Role = RoleViewer
	}
	u.Role = NormalizeRole(u.Role)
	u.EnsureStatus()
	return u
}

// EnsureStatus defaults an empty status to pending, the safe starting state.
func (u *User) EnsureStatus() *User {
	if u.Status == "" {
		u.Status = UserStatusPending
	}
	return u
}

// Identity adapter so a persisted record can feed token issuance.

type userIdentity struct {
	id    string
	email string
	name  string
	role  string
}

func (a userIdentity) ID() string    { return a.id }
func (a userIdentity) Email() string { return a.email }
func (a userIdentity) Name() string  { return a.name }
func (a userIdentity) Role() string  { return a.role }

var _ Identity = userIdentity{}

// IdentityFromUser converts a persisted User into an Identity for token
// issuance. Callers should pass the post-reconciliation record so tokens
// carry authoritative state, not the login-time snapshot.
func IdentityFromUser(u *User) Identity {
	if u == nil {
		return nil
	}
	return userIdentity{
		id:    u.ID.String(),
		email: u.Email,
		name:  u.Name,
		role:  string(u.Role),
	}
}
