package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
)

// fakeRecordRepo stubs the CRM record store.
type fakeRecordRepo struct {
	updateFn   func(table, field, oldValue, newValue string) (int64, error)
	distinctFn func(table, field string) ([]repositories.DistinctValue, error)

	updates []recordUpdate
}

type recordUpdate struct {
	table, field, oldValue, newValue string
}

func (f *fakeRecordRepo) UpdateWhere(ctx context.Context, q database.Querier, table, field, oldValue, newValue string) (int64, error) {
	f.updates = append(f.updates, recordUpdate{table, field, oldValue, newValue})
	if f.updateFn != nil {
		return f.updateFn(table, field, oldValue, newValue)
	}
	return 1, nil
}

func (f *fakeRecordRepo) SelectDistinct(ctx context.Context, q database.Querier, table, field string) ([]repositories.DistinctValue, error) {
	if f.distinctFn != nil {
		return f.distinctFn(table, field)
	}
	return nil, nil
}

// fakeAuditRepo records appended entries and batches in memory.
type fakeAuditRepo struct {
	appendErr      error
	appendBatchErr error

	entries []*models.AuditLogEntry
	header  *models.BatchAuditHeader
	details []models.BatchAuditDetail
}

func (f *fakeAuditRepo) Append(ctx context.Context, q database.Querier, entry *models.AuditLogEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) AppendBatch(ctx context.Context, q database.Querier, header *models.BatchAuditHeader, details []models.BatchAuditDetail) error {
	if f.appendBatchErr != nil {
		return f.appendBatchErr
	}
	f.header = header
	f.details = details
	return nil
}

func (f *fakeAuditRepo) HistoryForRecord(ctx context.Context, q database.Querier, tableName, recordID string) ([]*models.AuditLogEntry, error) {
	var out []*models.AuditLogEntry
	for _, e := range f.entries {
		if e.TableName == tableName && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) Query(ctx context.Context, q database.Querier, filter models.AuditQuery) ([]*models.AuditLogEntry, int, error) {
	return f.entries, len(f.entries), nil
}

func (f *fakeAuditRepo) GetBatch(ctx context.Context, q database.Querier, batchID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	return f.header, f.details, nil
}

// fakeRoleRepo resolves roles from a fixed map.
type fakeRoleRepo struct {
	roles   map[string]string
	err     error
	lookups int
}

func (f *fakeRoleRepo) RoleFor(ctx context.Context, q database.Querier, userID string) (string, error) {
	f.lookups++
	if f.err != nil {
		return "", f.err
	}
	role, ok := f.roles[userID]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return role, nil
}

// fakePermissionService grants or denies unconditionally.
type fakePermissionService struct {
	err   error
	calls int
}

func (f *fakePermissionService) Require(ctx context.Context, requiredRole string) error {
	f.calls++
	return f.err
}

// fakeCatalogueService serves a fixed catalogue, optionally failing the
// first failFirst calls with err.
type fakeCatalogueService struct {
	catalogue *models.Catalogue
	err       error
	failFirst int
	calls     int
}

func (f *fakeCatalogueService) Load(ctx context.Context) (*models.Catalogue, error) {
	f.calls++
	if f.err != nil && (f.failFirst == 0 || f.calls <= f.failFirst) {
		return nil, f.err
	}
	return f.catalogue, nil
}

// fakeTx satisfies pgx.Tx for the methods the commit engine touches.
// Everything else panics via the embedded nil interface.
type fakeTx struct {
	pgx.Tx

	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeBeginner hands out a fakeTx.
type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}
