// Package models contains domain types for statecore-engine.
package models

import (
	"context"
)

// Role constants, ordered from least to most privileged.
const (
	RoleViewer     = "viewer"
	RoleEditor     = "editor"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// roleRank orders roles for privilege comparison. Unknown roles rank below
// viewer and can never satisfy a requirement.
var roleRank = map[string]int{
	RoleViewer:     1,
	RoleEditor:     2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// RoleSatisfies reports whether the held role grants at least the privileges
// of the required role.
func RoleSatisfies(held, required string) bool {
	h, ok := roleRank[held]
	if !ok {
		return false
	}
	r, ok := roleRank[required]
	if !ok {
		return false
	}
	return h >= r
}

// Principal is the authenticated user acting on the system, as resolved by
// the auth middleware. It is carried through operations via context.
type Principal struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// principalKey is the context key for storing principal information.
type principalKey struct{}

// WithPrincipal returns a new context with the principal attached.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal retrieves the principal from the context.
// Returns the principal and true if present, otherwise a zero value and false.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
