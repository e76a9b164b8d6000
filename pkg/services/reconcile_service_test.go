package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
)

type reconcileFixture struct {
	svc       ReconciliationService
	manager   *SessionManager
	catalogue *fakeCatalogueService
	records   *fakeRecordRepo
	commit    *commitService
	tx        *fakeTx
	audit     *fakeAuditRepo
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	logger := zap.NewNop()
	manager := NewSessionManager(logger)
	cfg := testReconcilerConfig()

	f := &reconcileFixture{
		manager:   manager,
		catalogue: &fakeCatalogueService{catalogue: models.NewCatalogue(testStates())},
		records:   &fakeRecordRepo{},
		tx:        &fakeTx{},
		audit:     &fakeAuditRepo{},
	}
	f.records.distinctFn = func(table, field string) ([]repositories.DistinctValue, error) {
		return []repositories.DistinctValue{
			{Value: "panjab", Count: 3},
			{Value: "punjab", Count: 5},
		}, nil
	}

	f.commit = &commitService{
		db:      &database.DB{},
		beginTx: &fakeBeginner{tx: f.tx},
		records: f.records,
		audit:   f.audit,
		perms:   &fakePermissionService{},
		timeout: time.Second,
		logger:  logger,
	}

	f.svc = NewReconciliationService(
		cfg, &database.DB{}, manager, f.catalogue,
		NewMappingService(cfg, logger), f.commit, f.records, logger)
	return f
}

func TestProposeBuildsSession(t *testing.T) {
	f := newReconcileFixture(t)

	sess, err := f.svc.Propose(context.Background(), testPrincipal())
	require.NoError(t, err)
	assert.Equal(t, SessionProposed, sess.State())
	assert.Equal(t, "creators", sess.Table)
	assert.Equal(t, "state", sess.Field)
	assert.Equal(t, 2, sess.Set.Len())

	got, err := f.svc.Session(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestProposeRetriesTransientCatalogueFailure(t *testing.T) {
	f := newReconcileFixture(t)
	f.catalogue.err = fmt.Errorf("%w: warming up", apperrors.ErrTransient)
	f.catalogue.failFirst = 1

	sess, err := f.svc.Propose(context.Background(), testPrincipal())
	require.NoError(t, err)
	assert.Equal(t, 2, f.catalogue.calls)
	assert.Equal(t, SessionProposed, sess.State())
}

func TestProposePermanentFailureRemovesSession(t *testing.T) {
	f := newReconcileFixture(t)
	f.catalogue.err = fmt.Errorf("relation does not exist")

	_, err := f.svc.Propose(context.Background(), testPrincipal())
	require.Error(t, err)
	assert.Equal(t, 1, f.catalogue.calls, "permanent failures are not retried")
	assert.Empty(t, f.manager.sessions, "abandoned session is removed")
}

func TestProposeScanFailureRemovesSession(t *testing.T) {
	f := newReconcileFixture(t)
	f.records.distinctFn = func(table, field string) ([]repositories.DistinctValue, error) {
		return nil, fmt.Errorf("column does not exist")
	}

	_, err := f.svc.Propose(context.Background(), testPrincipal())
	require.Error(t, err)
	assert.Empty(t, f.manager.sessions)
}

func TestReconcileEditOperations(t *testing.T) {
	f := newReconcileFixture(t)

	sess, err := f.svc.Propose(context.Background(), testPrincipal())
	require.NoError(t, err)

	punjab, _ := sess.Catalogue.ByName("Punjab")
	_, err = f.svc.Approve(sess.ID, "panjab", punjab.ID)
	require.NoError(t, err)

	_, err = f.svc.Reject(sess.ID, "panjab")
	require.NoError(t, err)

	_, err = f.svc.Reset(sess.ID, "panjab")
	require.NoError(t, err)

	_, err = f.svc.Approve(uuid.New(), "panjab", punjab.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestReconcileCommitRetiresSession(t *testing.T) {
	f := newReconcileFixture(t)

	sess, err := f.svc.Propose(context.Background(), testPrincipal())
	require.NoError(t, err)

	header, details, err := f.svc.Commit(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.NotEmpty(t, details)

	_, err = f.svc.Session(sess.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestReconcileFailedCommitKeepsSession(t *testing.T) {
	f := newReconcileFixture(t)
	f.audit.appendBatchErr = fmt.Errorf("audit store down")

	sess, err := f.svc.Propose(context.Background(), testPrincipal())
	require.NoError(t, err)

	_, _, err = f.svc.Commit(context.Background(), sess.ID)
	assert.ErrorIs(t, err, apperrors.ErrAuditWriteFailed)

	// Failed sessions stay visible so the UI can render the error state.
	got, err := f.svc.Session(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionFailed, got.State())
}

func TestReconcileDiscard(t *testing.T) {
	f := newReconcileFixture(t)

	sess, err := f.svc.Propose(context.Background(), testPrincipal())
	require.NoError(t, err)

	require.NoError(t, f.svc.Discard(sess.ID))
	_, err = f.svc.Session(sess.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	// No audit entries for a discarded session
	assert.Empty(t, f.audit.entries)
	assert.Nil(t, f.audit.header)

	assert.ErrorIs(t, f.svc.Discard(sess.ID), apperrors.ErrSessionNotFound)
}
