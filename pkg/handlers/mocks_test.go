package handlers

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/services"
)

// newTestSession builds a minimal live session for handler tests.
func newTestSession() *services.ReconciliationSession {
	manager := services.NewSessionManager(zap.NewNop())
	sess := manager.Create(models.Principal{ID: "u1", Email: "u@example.com"}, "creators", "state")
	sess.Catalogue = models.NewCatalogue(nil)
	return sess
}

// fakeReconciliationService scripts every operation of the reconciliation API.
type fakeReconciliationService struct {
	sess *services.ReconciliationSession
	err  error

	header  *models.BatchAuditHeader
	details []models.BatchAuditDetail

	discarded []uuid.UUID
}

func (f *fakeReconciliationService) Propose(ctx context.Context, principal models.Principal) (*services.ReconciliationSession, error) {
	return f.sess, f.err
}

func (f *fakeReconciliationService) Session(id uuid.UUID) (*services.ReconciliationSession, error) {
	return f.sess, f.err
}

func (f *fakeReconciliationService) Approve(sessionID uuid.UUID, uncleanValue string, canonicalID uuid.UUID) (*services.ReconciliationSession, error) {
	return f.sess, f.err
}

func (f *fakeReconciliationService) Reject(sessionID uuid.UUID, uncleanValue string) (*services.ReconciliationSession, error) {
	return f.sess, f.err
}

func (f *fakeReconciliationService) Reset(sessionID uuid.UUID, uncleanValue string) (*services.ReconciliationSession, error) {
	return f.sess, f.err
}

func (f *fakeReconciliationService) Commit(ctx context.Context, sessionID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	return f.header, f.details, f.err
}

func (f *fakeReconciliationService) Discard(sessionID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.discarded = append(f.discarded, sessionID)
	return nil
}

// fakeAuditService scripts the audit read API.
type fakeAuditService struct {
	entries []*models.AuditLogEntry
	total   int
	header  *models.BatchAuditHeader
	details []models.BatchAuditDetail
	err     error

	lastFilter models.AuditQuery
}

func (f *fakeAuditService) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	return f.err
}

func (f *fakeAuditService) HistoryForRecord(ctx context.Context, tableName, recordID string) ([]*models.AuditLogEntry, error) {
	return f.entries, f.err
}

func (f *fakeAuditService) Activity(ctx context.Context, filter models.AuditQuery) ([]*models.AuditLogEntry, int, error) {
	f.lastFilter = filter
	return f.entries, f.total, f.err
}

func (f *fakeAuditService) Batch(ctx context.Context, batchID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	return f.header, f.details, f.err
}
