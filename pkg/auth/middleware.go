package auth

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/models"
)

// CookieName is the JWT cookie set by the CRM frontend after login.
const CookieName = "statecore_jwt"

// Middleware authenticates requests and attaches the resolved principal to
// the request context.
type Middleware struct {
	validator TokenValidator
	sessions  *SessionStore
	logger    *zap.Logger
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(validator TokenValidator, sessions *SessionStore, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		sessions:  sessions,
		logger:    logger.Named("auth"),
	}
}

// RequireAuth wraps a handler, rejecting requests without a valid JWT.
// The JWT is read from the statecore_jwt cookie (browser clients) or the
// Authorization header with Bearer scheme (API clients).
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := m.extractToken(r)
		if !ok {
			http.Error(w, "missing authorization", http.StatusUnauthorized)
			return
		}

		claims, err := m.validator.ValidateToken(tokenString)
		if err != nil {
			m.logger.Debug("JWT validation failed",
				zap.Error(err),
				zap.String("path", r.URL.Path))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		principal := models.Principal{
			ID:        claims.Subject,
			Email:     claims.Email,
			Role:      claims.Role,
			SessionID: m.sessions.SessionID(w, r),
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		}

		ctx := models.WithPrincipal(r.Context(), principal)
		next(w, r.WithContext(ctx))
	}
}

func (m *Middleware) extractToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// clientIP prefers the X-Forwarded-For chain head when present, since the
// engine normally sits behind the CRM's load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
