package identity

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// AdminAllowList answers whether an email is pre-authorized for the admin
// role. Implementations must compare case-insensitively and must not serve
// stale membership across configuration changes.
type AdminAllowList interface {
	Contains(email string) bool
}

// AllowListFunc adapts a function into an AdminAllowList.
type AllowListFunc func(email string) bool

func (f AllowListFunc) Contains(email string) bool {
	if f == nil {
		return false
	}
	return f(email)
}

// ConfigAllowList reads the allow-list through the Config on every call, so
// a configuration change is visible at the next reconciliation.
type ConfigAllowList struct {
	cfg Config
}

func NewConfigAllowList(cfg Config) *ConfigAllowList {
	return &ConfigAllowList{cfg: cfg}
}

func (a *ConfigAllowList) Contains(email string) bool {
	if a == nil || a.cfg == nil {
		return false
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}

	for _, entry := range a.cfg.GetAdminAllowList() {
		if strings.ToLower(strings.TrimSpace(entry)) == email {
			return true
		}
	}

	return false
}

// Reconciler synchronizes the persisted user record with a verified external
// identity under a fixed precedence policy: the allow-list is the only
// source of automatic elevation, and unrecognized identities always land in
// (viewer, pending) until an administrator approves them.
type Reconciler struct {
	repo      RepositoryManager
	allowList AdminAllowList
	logger    Logger
	now       func() time.Time
}

type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger overrides the logger.
func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReconcilerClock injects a custom clock (useful for tests).
func WithReconcilerClock(clock func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if clock != nil {
			r.now = clock
		}
	}
}

func NewReconciler(repo RepositoryManager, allowList AdminAllowList, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		repo:      repo,
		allowList: allowList,
		logger:    defLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Reconcile computes the target (role, status) for the asserted identity and
// applies a minimal diff to the user directory. It is idempotent: repeating
// the call with the same identity and an unchanged allow-list performs no
// second write and returns an identical record.
//
// Only verified identities are eligible for allow-list elevation. An
// unverified decode still resolves to a usable identity, but it can never
// mint or restore admin access.
func (r *Reconciler) Reconcile(ctx context.Context, ext ExternalIdentity, trust Trust) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(ext.Email))
	if email == "" {
		return nil, errors.New("external identity has no email", errors.CategoryBadInput)
	}

	elevated := trust == TrustVerified && r.allowList != nil && r.allowList.Contains(email)
	if !elevated && r.assertsAdminRole(ext) {
		// Directory role claims intentionally never out-rank the
		// allow-list: a compromised claim must not self-elevate.
		r.logger.Warn("directory asserts admin role for identity outside the allow-list",
			"email", email, "subject", ext.SubjectID)
	}

	user, err := r.lookup(ctx, ext, email)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user during reconciliation")
		}
		return r.provision(ctx, ext, email, elevated)
	}

	if user.ExternalID == "" && ext.SubjectID != "" {
		linked, err := r.repo.Users().LinkExternalID(ctx, user.ID, ext.SubjectID)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to link external identity")
		}
		if linked {
			user.ExternalID = ext.SubjectID
		}
	}

	targetRole, targetStatus := r.target(user, elevated)
	if user.Role == targetRole && user.Status == targetStatus {
		return user, nil
	}

	applied, err := r.repo.Users().UpdateRoleStatus(ctx, user.ID, targetRole, targetStatus)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update role/status during reconciliation")
	}

	if applied {
		r.logger.Info("reconciled user role/status",
			"email", email, "role", targetRole, "status", targetStatus)
	}

	// Re-read so callers issue tokens from authoritative state even when a
	// concurrent reconciliation won the conditional write.
	return r.repo.Users().GetByEmail(ctx, email)
}

// target resolves the precedence policy for an existing record. Allow-list
// membership wins; otherwise persisted state is authoritative, so an admin
// approval (pending -> active) survives subsequent logins.
func (r *Reconciler) target(user *User, elevated bool) (UserRole, UserStatus) {
	if elevated {
		return RoleAdmin, UserStatusActive
	}
	return NormalizeRole(user.Role), user.Status
}

func (r *Reconciler) lookup(ctx context.Context, ext ExternalIdentity, email string) (*User, error) {
	if ext.SubjectID != "" {
		user, err := r.repo.Users().GetByExternalID(ctx, ext.SubjectID)
		if err == nil {
			return user, nil
		}
		if !repository.IsRecordNotFound(err) {
			return nil, err
		}
	}

	return r.repo.Users().GetByEmail(ctx, email)
}

func (r *Reconciler) provision(ctx context.Context, ext ExternalIdentity, email string, elevated bool) (*User, error) {
	role, status := RoleViewer, UserStatusPending
	if elevated {
		role, status = RoleAdmin, UserStatusActive
	}

	now := r.now()
	user := &User{
		Email:      email,
		Name:       ext.DisplayName,
		Role:       role,
		Status:     status,
		ExternalID: ext.SubjectID,
		CreatedAt:  &now,
		UpdatedAt:  &now,
	}

	// Deterministic id from the email: two racing first logins collide on
	// the primary key instead of minting duplicate records.
	if id, err := hashid.NewUUID(email); err == nil {
		user.ID = id
	}

	created, err := r.repo.Users().Create(ctx, user)
	if err != nil {
		// The race loser lands here; the winner's record is authoritative.
		if existing, lookupErr := r.repo.Users().GetByEmail(ctx, email); lookupErr == nil {
			return existing, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to provision user during reconciliation")
	}

	r.logger.Info("provisioned user from external identity",
		"email", email, "role", role, "status", status)

	return created, nil
}

func (r *Reconciler) assertsAdminRole(ext ExternalIdentity) bool {
	for _, role := range ext.DirectoryRoles {
		if strings.EqualFold(strings.TrimSpace(role), RoleAdmin) {
			return true
		}
	}
	return false
}
