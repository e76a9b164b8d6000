//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/testhelpers"
)

func TestRoleForKnownAndUnknownPrincipals(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewUserRoleRepository()
	ctx := context.Background()

	userID := "role-test-" + uuid.NewString()
	_, err := engineDB.DB.Exec(ctx, `
		INSERT INTO user_roles (user_id, email, role)
		VALUES ($1, $2, 'super_admin')`,
		userID, userID+"@example.com")
	require.NoError(t, err)

	role, err := repo.RoleFor(ctx, engineDB.DB, userID)
	require.NoError(t, err)
	assert.Equal(t, "super_admin", role)

	_, err = repo.RoleFor(ctx, engineDB.DB, "nobody-"+uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
