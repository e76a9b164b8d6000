package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
)

// PermissionService authorizes sensitive operations for the principal on
// the context.
type PermissionService interface {
	// Require returns nil when the principal holds at least the required
	// role. Every denial is audited with a PERMISSIONS_CHECK_FAILED entry
	// and returns apperrors.ErrPermissionDenied.
	Require(ctx context.Context, requiredRole string) error
}

type permissionService struct {
	db     *database.DB
	roles  repositories.UserRoleRepository
	audit  repositories.AuditRepository
	logger *zap.Logger

	// granted caches positive resolutions keyed by session+principal.
	// Denials are never cached: a role granted mid-session takes effect on
	// the next check.
	mu      sync.Mutex
	granted map[string]string
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(db *database.DB, roles repositories.UserRoleRepository, audit repositories.AuditRepository, logger *zap.Logger) PermissionService {
	return &permissionService{
		db:      db,
		roles:   roles,
		audit:   audit,
		logger:  logger.Named("permission-service"),
		granted: make(map[string]string),
	}
}

var _ PermissionService = (*permissionService)(nil)

func (s *permissionService) Require(ctx context.Context, requiredRole string) error {
	principal, ok := models.GetPrincipal(ctx)
	if !ok {
		return fmt.Errorf("%w: no principal in context", apperrors.ErrPermissionDenied)
	}

	role, err := s.resolveRole(ctx, principal)
	if err != nil {
		return err
	}

	if !models.RoleSatisfies(role, requiredRole) {
		s.auditDenial(ctx, principal, role, requiredRole)
		return fmt.Errorf("%w: role %q does not satisfy %q",
			apperrors.ErrPermissionDenied, role, requiredRole)
	}

	s.cacheGrant(principal, role)
	return nil
}

// resolveRole resolves in order: explicit role claim, session cache, role
// table lookup. A principal with none of these is denied.
func (s *permissionService) resolveRole(ctx context.Context, principal models.Principal) (string, error) {
	if principal.Role != "" {
		return principal.Role, nil
	}

	key := cacheKey(principal)
	s.mu.Lock()
	cached, ok := s.granted[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	role, err := s.roles.RoleFor(ctx, s.db.Pool, principal.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("role lookup failed: %w", err)
	}
	return role, nil
}

func (s *permissionService) cacheGrant(principal models.Principal, role string) {
	if role == "" || principal.SessionID == "" {
		return
	}
	s.mu.Lock()
	s.granted[cacheKey(principal)] = role
	s.mu.Unlock()
}

// auditDenial writes the PERMISSIONS_CHECK_FAILED entry. The denial itself
// stands even if the audit write fails; that failure is only logged.
func (s *permissionService) auditDenial(ctx context.Context, principal models.Principal, heldRole, requiredRole string) {
	entry := &models.AuditLogEntry{
		ActionType:     models.ActionPermissionsCheckFailed,
		PrincipalID:    principal.ID,
		PrincipalEmail: principal.Email,
		PrincipalRole:  heldRole,
		IP:             principal.IP,
		UserAgent:      principal.UserAgent,
		Metadata: map[string]any{
			"required_role": requiredRole,
			"session_id":    principal.SessionID,
		},
	}
	if err := s.audit.Append(ctx, s.db.Pool, entry); err != nil {
		s.logger.Error("Failed to audit permission denial",
			zap.String("principal_id", principal.ID),
			zap.String("required_role", requiredRole),
			zap.Error(err))
		return
	}
	s.logger.Warn("Permission denied",
		zap.String("principal_id", principal.ID),
		zap.String("held_role", heldRole),
		zap.String("required_role", requiredRole))
}

func cacheKey(p models.Principal) string {
	return p.SessionID + ":" + p.ID
}
