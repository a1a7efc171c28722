package identity_test

import (
	"testing"

	"github.com/abhinandanshahdev/go-identity"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsValidStatus(t *testing.T) {
	assert.True(t, identity.IsValidStatus(identity.UserStatusPending))
	assert.True(t, identity.IsValidStatus(identity.UserStatusActive))
	assert.True(t, identity.IsValidStatus(identity.UserStatusSuspended))

	assert.False(t, identity.IsValidStatus("banned"))
	assert.False(t, identity.IsValidStatus(""))
}

func TestStatusAuthError(t *testing.T) {
	assert.NoError(t, identity.StatusAuthError(identity.UserStatusActive))
	assert.NoError(t, identity.StatusAuthError(""), "legacy rows without a status behave as active")

	err := identity.StatusAuthError(identity.UserStatusPending)
	assert.ErrorIs(t, err, identity.ErrUserPending)

	err = identity.StatusAuthError(identity.UserStatusSuspended)
	assert.ErrorIs(t, err, identity.ErrUserSuspended)

	err = identity.StatusAuthError("unknown")
	assert.ErrorIs(t, err, identity.ErrForbidden)
}

func TestStatusErrorsCarryTextCodes(t *testing.T) {
	var richErr *errors.Error

	assert.True(t, errors.As(identity.ErrUserPending, &richErr))
	assert.Equal(t, "pending_approval", richErr.TextCode)
	assert.Equal(t, errors.CategoryAuthz, richErr.Category)

	assert.True(t, errors.As(identity.ErrUserSuspended, &richErr))
	assert.Equal(t, "suspended", richErr.TextCode)
	assert.Equal(t, errors.CategoryAuthz, richErr.Category)
}
