package identity

import (
	"context"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the persistence surface the auth core reads and writes. Role and
// status mutations are conditional at the SQL level so concurrent
// reconciliation of the same identity applies at most once.
type Users interface {
	repository.Repository[*User]

	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) (bool, error)
	LinkExternalIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, externalID string) (bool, error)

	UpdateRoleStatus(ctx context.Context, id uuid.UUID, role UserRole, status UserStatus) (bool, error)
	UpdateRoleStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole, status UserStatus) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus) (*User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error)
	UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole) (*User, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) (*User, error)

	Remove(ctx context.Context, id uuid.UUID) error
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock injects a custom clock (useful for tests).
func WithUsersClock(clock func() time.Time) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	if record != nil {
		record.EnsureDefaults()
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.getByID(ctx, a.db, id)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	return a.GetByExternalIDTx(ctx, a.db, externalID)
}

func (a *users) GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"external_id": externalID})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) (bool, error) {
	return a.LinkExternalIDTx(ctx, a.db, id, externalID)
}

// LinkExternalIDTx backfills directory linkage only when none exists; a
// record that already carries a subject never gets relinked. Returns
// whether a row changed.
func (a *users) LinkExternalIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, externalID string) (bool, error) {
	now := a.now()
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("external_id = ?", externalID).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.external_id IS NULL").
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (a *users) UpdateRoleStatus(ctx context.Context, id uuid.UUID, role UserRole, status UserStatus) (bool, error) {
	return a.UpdateRoleStatusTx(ctx, a.db, id, role, status)
}

// UpdateRoleStatusTx applies the target pair only when it differs from the
// persisted values. The WHERE guard is the idempotence boundary: two racing
// reconciliations of the same identity cannot double-apply. Returns whether
// a row changed.
func (a *users) UpdateRoleStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole, status UserStatus) (bool, error) {
	now := a.now()
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("user_role = ?", role).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("(?TableAlias.user_role <> ? OR ?TableAlias.status <> ?)", role, status).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus) (*User, error) {
	now := a.now()
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return a.getByID(ctx, tx, id)
}

func (a *users) UpdateRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error) {
	return a.UpdateRoleTx(ctx, a.db, id, role)
}

func (a *users) UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole) (*User, error) {
	now := a.now()
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("user_role = ?", role).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return a.getByID(ctx, tx, id)
}

func (a *users) UpdateName(ctx context.Context, id uuid.UUID, name string) (*User, error) {
	now := a.now()
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("name = ?", name).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return a.getByID(ctx, a.db, id)
}

func (a *users) Remove(ctx context.Context, id uuid.UUID) error {
	return a.RemoveTx(ctx, a.db, id)
}

func (a *users) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	return err
}

func (a *users) getByID(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}
