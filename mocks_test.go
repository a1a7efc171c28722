package identity_test

import (
	"context"
	"database/sql"

	"github.com/abhinandanshahdev/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUsers stubs out the directory methods the auth core calls. The embedded
// interface covers the rest of the repository surface; anything not explicitly
// mocked panics loudly, which is what we want in tests.
type MockUsers struct {
	mock.Mock
	identity.Users
}

func (m *MockUsers) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) GetByExternalID(ctx context.Context, externalID string) (*identity.User, error) {
	args := m.Called(ctx, externalID)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *identity.User, criteria ...repository.InsertCriteria) (*identity.User, error) {
	args := m.Called(ctx, record)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockUsers) LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) (bool, error) {
	args := m.Called(ctx, id, externalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) UpdateRoleStatus(ctx context.Context, id uuid.UUID, role identity.UserRole, status identity.UserStatus) (bool, error) {
	args := m.Called(ctx, id, role, status)
	return args.Bool(0), args.Error(1)
}

func userArg(raw any) *identity.User {
	if raw == nil {
		return nil
	}
	return raw.(*identity.User)
}

// MockRepositoryManager wires a Users implementation into the
// RepositoryManager surface without a database.
type MockRepositoryManager struct {
	users identity.Users
}

func NewMockRepositoryManager(users identity.Users) *MockRepositoryManager {
	return &MockRepositoryManager{users: users}
}

func (m *MockRepositoryManager) Users() identity.Users { return m.users }

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

// MockVerifier implements identity.ExternalTokenVerifier.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, rawToken string) (*identity.ExternalIdentity, identity.Trust, error) {
	args := m.Called(ctx, rawToken)
	var ext *identity.ExternalIdentity
	if raw := args.Get(0); raw != nil {
		ext = raw.(*identity.ExternalIdentity)
	}
	return ext, args.Get(1).(identity.Trust), args.Error(2)
}

// MockReconciler implements identity.IdentityReconciler.
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, ext identity.ExternalIdentity, trust identity.Trust) (*identity.User, error) {
	args := m.Called(ctx, ext, trust)
	return userArg(args.Get(0)), args.Error(1)
}
