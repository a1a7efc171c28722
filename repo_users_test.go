package identity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/abhinandanshahdev/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL,
    name TEXT,
    user_role TEXT NOT NULL,
    status TEXT NOT NULL,
    external_id TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP
);`

const (
	sqliteCreateEmailIndex    = `CREATE UNIQUE INDEX uq_users_email ON users (LOWER(email)) WHERE deleted_at IS NULL;`
	sqliteCreateExternalIndex = `CREATE UNIQUE INDEX uq_users_external_id ON users (external_id) WHERE external_id IS NOT NULL AND deleted_at IS NULL;`
)

func setupUsersRepo(t *testing.T) (identity.Users, *bun.DB, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, stmt := range []string{sqliteCreateUsers, sqliteCreateEmailIndex, sqliteCreateExternalIndex} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return identity.NewUsersRepository(bunDB), bunDB, cleanup
}

func seedUser(t *testing.T, repo identity.Users, email string, role identity.UserRole, status identity.UserStatus) *identity.User {
	t.Helper()

	user, err := repo.Create(context.Background(), &identity.User{
		ID:     uuid.New(),
		Email:  email,
		Name:   "Seeded User",
		Role:   role,
		Status: status,
	})
	require.NoError(t, err)
	return user
}

func TestUsersCreateAppliesDefaults(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	user, err := repo.Create(context.Background(), &identity.User{
		ID:    uuid.New(),
		Email: "fresh@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.RoleViewer, user.Role)
	assert.Equal(t, identity.UserStatusPending, user.Status)
}

func TestUsersCreateNormalizesLegacyRole(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	user, err := repo.Create(context.Background(), &identity.User{
		ID:    uuid.New(),
		Email: "legacy@example.com",
		Role:  "consumer",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.RoleViewer, user.Role, "legacy value never reaches storage")
}

func TestUsersGetByEmailCaseInsensitive(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded := seedUser(t, repo, "mixed.case@example.com", identity.RoleViewer, identity.UserStatusActive)

	found, err := repo.GetByEmail(context.Background(), "Mixed.Case@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)

	_, err = repo.GetByEmail(context.Background(), "absent@example.com")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersGetByExternalID(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded, err := repo.Create(context.Background(), &identity.User{
		ID:         uuid.New(),
		Email:      "linked@example.com",
		Role:       identity.RoleViewer,
		Status:     identity.UserStatusActive,
		ExternalID: "ext-subject-1",
	})
	require.NoError(t, err)

	found, err := repo.GetByExternalID(context.Background(), "ext-subject-1")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)

	_, err = repo.GetByExternalID(context.Background(), "ext-missing")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersLinkExternalIDOnlyWhenUnlinked(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded := seedUser(t, repo, "unlinked@example.com", identity.RoleViewer, identity.UserStatusActive)

	linked, err := repo.LinkExternalID(context.Background(), seeded.ID, "ext-first")
	require.NoError(t, err)
	assert.True(t, linked)

	found, err := repo.FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-first", found.ExternalID)

	// A second link attempt must not overwrite the existing subject, and
	// must report that nothing changed.
	linked, err = repo.LinkExternalID(context.Background(), seeded.ID, "ext-second")
	require.NoError(t, err)
	assert.False(t, linked)

	found, err = repo.FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-first", found.ExternalID)
}

func TestUsersUpdateRoleStatusIsConditional(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded := seedUser(t, repo, "cond@example.com", identity.RoleViewer, identity.UserStatusPending)

	applied, err := repo.UpdateRoleStatus(context.Background(), seeded.ID, identity.RoleAdmin, identity.UserStatusActive)
	require.NoError(t, err)
	assert.True(t, applied)

	// Same target pair again: the WHERE guard skips the write.
	applied, err = repo.UpdateRoleStatus(context.Background(), seeded.ID, identity.RoleAdmin, identity.UserStatusActive)
	require.NoError(t, err)
	assert.False(t, applied)

	found, err := repo.FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, found.Role)
	assert.Equal(t, identity.UserStatusActive, found.Status)
}

func TestUsersUpdateStatus(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded := seedUser(t, repo, "approve@example.com", identity.RoleViewer, identity.UserStatusPending)

	updated, err := repo.UpdateStatus(context.Background(), seeded.ID, identity.UserStatusActive)
	require.NoError(t, err)
	assert.Equal(t, identity.UserStatusActive, updated.Status)
	assert.Equal(t, identity.RoleViewer, updated.Role, "role untouched by a status change")
}

func TestUsersUpdateRole(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded := seedUser(t, repo, "promote@example.com", identity.RoleViewer, identity.UserStatusActive)

	updated, err := repo.UpdateRole(context.Background(), seeded.ID, identity.RoleContributor)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleContributor, updated.Role)
	assert.Equal(t, identity.UserStatusActive, updated.Status)
}

func TestUsersUpdateName(t *testing.T) {
	repo, _, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded := seedUser(t, repo, "rename@example.com", identity.RoleViewer, identity.UserStatusActive)

	updated, err := repo.UpdateName(context.Background(), seeded.ID, "New Name")
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
}

func TestUsersRemoveSoftDeletes(t *testing.T) {
	repo, bunDB, cleanup := setupUsersRepo(t)
	defer cleanup()

	seeded := seedUser(t, repo, "bye@example.com", identity.RoleViewer, identity.UserStatusActive)

	err := repo.Remove(context.Background(), seeded.ID)
	require.NoError(t, err)

	_, err = repo.FindByID(context.Background(), seeded.ID)
	assert.True(t, repository.IsRecordNotFound(err), "soft-deleted rows vanish from reads")

	// The row itself survives with a tombstone.
	var deletedAt sql.NullTime
	err = bunDB.QueryRow("SELECT deleted_at FROM users WHERE id = ?", seeded.ID.String()).Scan(&deletedAt)
	require.NoError(t, err)
	assert.True(t, deletedAt.Valid)
}

func TestUsersClockOption(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	bunDB := bun.NewDB(db, sqlitedialect.New())
	defer func() {
		_ = bunDB.Close()
		_ = db.Close()
	}()

	for _, stmt := range []string{sqliteCreateUsers, sqliteCreateEmailIndex, sqliteCreateExternalIndex} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	repo := identity.NewUsersRepository(bunDB, identity.WithUsersClock(func() time.Time { return fixed }))
	seeded := seedUser(t, repo, "clock@example.com", identity.RoleViewer, identity.UserStatusPending)

	updated, err := repo.UpdateStatus(context.Background(), seeded.ID, identity.UserStatusActive)
	require.NoError(t, err)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.Equal(fixed))
}

func TestRepositoryManagerValidate(t *testing.T) {
	_, bunDB, cleanup := setupUsersRepo(t)
	defer cleanup()

	manager := identity.NewRepositoryManager(bunDB)
	assert.NoError(t, manager.Validate())
	assert.NotNil(t, manager.Users())
}

func TestRepositoryManagerRunInTx(t *testing.T) {
	_, bunDB, cleanup := setupUsersRepo(t)
	defer cleanup()

	manager := identity.NewRepositoryManager(bunDB)

	err := manager.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := manager.Users().CreateTx(ctx, tx, &identity.User{
			ID:    uuid.New(),
			Email: "intx@example.com",
		})
		return err
	})
	require.NoError(t, err)

	found, err := manager.Users().GetByEmail(context.Background(), "intx@example.com")
	require.NoError(t, err)
	assert.Equal(t, "intx@example.com", found.Email)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	err = manager.RunInTx(canceled, nil, func(ctx context.Context, tx bun.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
