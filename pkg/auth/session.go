package auth

import (
	"crypto/sha256"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// SessionName is the name of the UI session cookie. The session id it
// carries is recorded in the metadata of every audit entry the session
// produces.
const SessionName = "statecore-session"

// sessionKeyID is the session value key holding the session id.
const sessionKeyID = "sid"

// SessionStore issues and reads the signed UI session cookie.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore initializes the cookie-based session store.
//
// The secret parameter signs session cookies. It can be any passphrase -
// it is SHA-256 hashed to derive a 32-byte key. The secret must be
// consistent across server restarts and multiple servers behind a balancer.
func NewSessionStore(secret string) *SessionStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400, // one UI day
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
	return &SessionStore{store: store}
}

// SessionID returns the session id for the request, minting and saving a
// new one when the request carries no valid session cookie.
func (s *SessionStore) SessionID(w http.ResponseWriter, r *http.Request) string {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		// Tampered or stale cookie: fall through with a fresh session.
		session, _ = s.store.New(r, SessionName)
	}

	if sid, ok := session.Values[sessionKeyID].(string); ok && sid != "" {
		return sid
	}

	sid := uuid.NewString()
	session.Values[sessionKeyID] = sid
	_ = session.Save(r, w)
	return sid
}
