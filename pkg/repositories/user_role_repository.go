package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
)

// UserRoleRepository looks up a principal's role when the JWT carries no
// explicit role claim.
type UserRoleRepository interface {
	// RoleFor returns the stored role for a principal id.
	// Returns apperrors.ErrNotFound when the principal has no role row.
	RoleFor(ctx context.Context, q database.Querier, userID string) (string, error)
}

type userRoleRepository struct{}

// NewUserRoleRepository creates a new UserRoleRepository.
func NewUserRoleRepository() UserRoleRepository {
	return &userRoleRepository{}
}

var _ UserRoleRepository = (*userRoleRepository)(nil)

func (r *userRoleRepository) RoleFor(ctx context.Context, q database.Querier, userID string) (string, error) {
	var role string
	err := q.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up role for %s: %w", userID, err)
	}
	return role, nil
}
