// Package auth resolves the acting principal for statecore-engine: JWT
// validation against a JWKS endpoint, the UI session cookie, and the
// middleware that stitches both into a models.Principal on the context.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT claims structure issued by the CRM's auth provider.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds the custom claims the permission gate consults.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // explicit role claim, may be empty
}
