// Package services holds the business logic of statecore-engine: building
// and editing mapping sets, committing them, and reading the audit trail.
package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
)

// SessionState is the lifecycle phase of a reconciliation session.
type SessionState string

// Session state constants. Done and failed are terminal; a discarded
// session simply disappears from the manager.
const (
	SessionLoading    SessionState = "loading"
	SessionProposed   SessionState = "proposed"
	SessionEditing    SessionState = "editing"
	SessionCommitting SessionState = "committing"
	SessionDone       SessionState = "done"
	SessionFailed     SessionState = "failed"
)

// ReconciliationSession is one in-memory reconciliation run: the catalogue
// snapshot, the editable mapping set, and the session's phase. It exists
// only between propose and commit/discard.
//
// The mutex guards state AND the mapping set: every mutation and every
// cross-goroutine read of Set goes through a method that holds it, so an
// edit is atomic with respect to the transition into committing.
type ReconciliationSession struct {
	ID        uuid.UUID
	Principal models.Principal
	Table     string
	Field     string
	Catalogue *models.Catalogue
	Set       *models.MappingSet
	CreatedAt time.Time

	mu    sync.Mutex
	state SessionState
}

// SessionView is a point-in-time copy of a session's reportable state,
// taken under the session lock so readers never observe a half-applied
// edit.
type SessionView struct {
	State   SessionState
	Entries []models.MappingEntry
	Summary models.MappingSummary
}

// Snapshot copies the session's phase, entries, and summary.
func (s *ReconciliationSession) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.Set.Entries()
	entries := make([]models.MappingEntry, len(src))
	for i, e := range src {
		entries[i] = *e
	}
	return SessionView{State: s.state, Entries: entries, Summary: s.Set.Summary()}
}

// State returns the session's current phase.
func (s *ReconciliationSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to next if it is currently in one of the
// allowed states.
func (s *ReconciliationSession) transition(next SessionState, allowed ...SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range allowed {
		if s.state == a {
			s.state = next
			return nil
		}
	}
	if s.state == SessionCommitting {
		return apperrors.ErrSessionCommitting
	}
	return fmt.Errorf("%w: session is %s, cannot move to %s",
		apperrors.ErrInvariantViolation, s.state, next)
}

// edit runs fn against the mapping set with the session lock held, after
// confirming the set may still be mutated. Holding the lock across fn
// means an edit that passed the check cannot interleave with a concurrent
// transition into committing.
func (s *ReconciliationSession) edit(fn func(set *models.MappingSet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionProposed, SessionEditing:
		s.state = SessionEditing
	case SessionCommitting:
		return apperrors.ErrSessionCommitting
	default:
		return fmt.Errorf("%w: session is %s, mapping set is frozen",
			apperrors.ErrInvariantViolation, s.state)
	}
	return fn(s.Set)
}

// propose installs the built entries and moves loading to proposed in one
// critical section, so a concurrent reader never sees a partial set.
func (s *ReconciliationSession) propose(entries []*models.MappingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionLoading {
		return fmt.Errorf("%w: session is %s, cannot move to %s",
			apperrors.ErrInvariantViolation, s.state, SessionProposed)
	}
	for _, e := range entries {
		s.Set.Add(e)
	}
	s.state = SessionProposed
	return nil
}

// approvedEntries snapshots the approved entries. Once the session is
// committing no edit can run, so the entries' fields stay stable for the
// duration of the batch.
func (s *ReconciliationSession) approvedEntries() []*models.MappingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Set.Approved()
}

// markCommitted flips the approved entries to committed.
func (s *ReconciliationSession) markCommitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.Set.Approved() {
		e.Status = models.MappingCommitted
	}
}

// SessionManager tracks live reconciliation sessions. Sessions are
// in-memory only; a server restart discards them, which matches discard
// semantics (no audit is emitted for abandoned sessions).
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*ReconciliationSession
	logger   *zap.Logger
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[uuid.UUID]*ReconciliationSession),
		logger:   logger.Named("sessions"),
	}
}

// Create registers a new session in the loading state.
func (m *SessionManager) Create(principal models.Principal, table, field string) *ReconciliationSession {
	sess := &ReconciliationSession{
		ID:        uuid.New(),
		Principal: principal,
		Table:     table,
		Field:     field,
		Set:       models.NewMappingSet(),
		CreatedAt: time.Now().UTC(),
		state:     SessionLoading,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Debug("Created reconciliation session",
		zap.String("session_id", sess.ID.String()),
		zap.String("principal_id", principal.ID))
	return sess
}

// Get returns a live session by id.
func (m *SessionManager) Get(id uuid.UUID) (*ReconciliationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return sess, nil
}

// Discard drops a session before commit. Discarding emits no audit. A
// session mid-commit cannot be discarded.
func (m *SessionManager) Discard(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}

	sess.mu.Lock()
	if sess.state == SessionCommitting {
		sess.mu.Unlock()
		return apperrors.ErrSessionCommitting
	}
	for _, e := range sess.Set.Entries() {
		if e.Status != models.MappingCommitted {
			e.Status = models.MappingDiscarded
		}
	}
	sess.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// Remove drops a finished session from the manager.
func (m *SessionManager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
