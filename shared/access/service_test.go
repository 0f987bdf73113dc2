package access

import (
	"context"
	"errors"
	"io"
	"testing"

	"carservice/internal/domain"
	"carservice/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRoles map[int64]model.Role

func (m memoryRoles) GetUserRole(_ context.Context, id int64) (model.Role, error) {
	r, ok := m[id]
	if !ok {
		return "", domain.NotFound("user", id)
	}
	return r, nil
}

func (m memoryRoles) SetUserRole(_ context.Context, id int64, role model.Role) error {
	if !role.Valid() {
		return domain.Validation("role", "unknown role")
	}
	if _, ok := m[id]; !ok {
		return domain.NotFound("user", id)
	}
	m[id] = role
	return nil
}

func newTestService() (*Service, memoryRoles) {
	roles := memoryRoles{1: model.RoleAdmin, 2: model.RoleMaster, 3: model.RoleUser, 4: model.RoleBlocked}
	logger := zerolog.New(io.Discard)
	return NewService(roles, &logger), roles
}

func TestMiddleware(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	assert.NoError(t, s.Middleware(ctx, 3))
	assert.NoError(t, s.Middleware(ctx, 99), "unregistered users pass")
	assert.True(t, IsAccessDenied(s.Middleware(ctx, 4)))
}

func TestRoleChecks(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	assert.NoError(t, s.RequireMaster(ctx, 1))
	assert.NoError(t, s.RequireMaster(ctx, 2))
	assert.True(t, IsAccessDenied(s.RequireMaster(ctx, 3)))

	assert.NoError(t, s.RequireAdmin(ctx, 1))
	assert.True(t, IsAccessDenied(s.RequireAdmin(ctx, 2)))
}

func TestBlockAndUnblock(t *testing.T) {
	s, roles := newTestService()
	ctx := context.Background()

	require.NoError(t, s.BlockUser(ctx, 1, 3))
	assert.Equal(t, model.RoleBlocked, roles[3])
	require.NoError(t, s.UnblockUser(ctx, 1, 3))
	assert.Equal(t, model.RoleUser, roles[3])

	assert.True(t, IsAccessDenied(s.BlockUser(ctx, 2, 3)), "masters cannot block")
	assert.True(t, domain.IsValidation(s.BlockUser(ctx, 1, 1)))
	assert.True(t, domain.IsNotFound(s.SetRole(ctx, 1, 42, model.RoleMaster)))
}

func TestIsAccessDeniedWrapped(t *testing.T) {
	err := errors.Join(errors.New("ctx"), &AccessDeniedError{Reason: "no"})
	assert.True(t, IsAccessDenied(err))
	assert.False(t, IsAccessDenied(errors.New("other")))
}
