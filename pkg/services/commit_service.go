package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
)

// CommitService applies an approved mapping set to the record store in one
// transaction, producing a batch audit header plus one detail per entry.
type CommitService interface {
	// Commit runs the batch. The header exists iff the record mutations
	// were applied; on any failure the transaction rolls back completely
	// and a single OPERATION_FAILED entry records the attempt.
	Commit(ctx context.Context, sess *ReconciliationSession) (*models.BatchAuditHeader, []models.BatchAuditDetail, error)
}

// txBeginner opens transactions. *pgxpool.Pool satisfies it.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type commitService struct {
	db      *database.DB
	beginTx txBeginner
	records repositories.RecordRepository
	audit   repositories.AuditRepository
	perms   PermissionService
	timeout time.Duration
	logger  *zap.Logger
}

// NewCommitService creates a new CommitService. Each commit is bounded by
// the given remote timeout.
func NewCommitService(db *database.DB, records repositories.RecordRepository, audit repositories.AuditRepository, perms PermissionService, timeout time.Duration, logger *zap.Logger) CommitService {
	return &commitService{
		db:      db,
		beginTx: db.Pool,
		records: records,
		audit:   audit,
		perms:   perms,
		timeout: timeout,
		logger:  logger.Named("commit-service"),
	}
}

var _ CommitService = (*commitService)(nil)

func (s *commitService) Commit(ctx context.Context, sess *ReconciliationSession) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	if err := s.perms.Require(ctx, models.RoleSuperAdmin); err != nil {
		return nil, nil, err
	}

	if err := sess.transition(SessionCommitting, SessionProposed, SessionEditing); err != nil {
		return nil, nil, err
	}

	// A commit in progress is not cancellable from outside, but every
	// remote call inside it is still bounded.
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
	}

	header, details, err := s.run(ctx, sess)
	if err != nil {
		_ = sess.transition(SessionFailed, SessionCommitting)
		return nil, nil, err
	}

	sess.markCommitted()
	_ = sess.transition(SessionDone, SessionCommitting)
	return header, details, nil
}

func (s *commitService) run(ctx context.Context, sess *ReconciliationSession) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	approved := sess.approvedEntries()
	principal := sess.Principal
	transactionID := newTransactionID()
	startedAt := time.Now().UTC()

	tx, err := s.beginTx.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open transaction: %v", apperrors.ErrTransient, err)
	}
	defer func() {
		// No-op once the transaction committed.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	details := make([]models.BatchAuditDetail, 0, len(approved))
	succeeded, failed := 0, 0

	for i, entry := range approved {
		detail := models.BatchAuditDetail{
			SequenceNumber:   i + 1,
			RecordIdentifier: entry.UncleanValue,
			FieldName:        sess.Field,
		}

		canonical, ok := sess.Catalogue.ByID(*entry.ChosenCanonicalID)
		if !ok {
			// Approved against a catalogue this session never had; the
			// mapping service should have rejected it.
			detail.Status = models.DetailError
			detail.ErrorMessage = fmt.Sprintf("unknown canonical state %s", entry.ChosenCanonicalID)
			failed++
			details = append(details, detail)
			continue
		}

		count, err := s.records.UpdateWhere(ctx, tx, sess.Table, sess.Field, entry.UncleanValue, canonical.Name)
		if err != nil {
			// A store failure mid-batch is fatal: roll back everything and
			// leave one OPERATION_FAILED entry so the attempt is auditable.
			s.auditOperationFailure(ctx, sess, principal, transactionID, err)
			return nil, nil, fmt.Errorf("%w: update for %q failed: %v",
				apperrors.ErrTransient, entry.UncleanValue, err)
		}

		detail.NewValue = canonical.Name
		if count == 0 {
			// Already applied (e.g. a re-run of the same mapping set):
			// nothing matched the unclean value, rows already carry the
			// canonical name.
			detail.OldValue = canonical.Name
		} else {
			detail.OldValue = entry.UncleanValue
		}
		detail.Status = models.DetailCompleted
		succeeded++
		details = append(details, detail)

		s.logger.Debug("Applied mapping entry",
			zap.String("unclean_value", entry.UncleanValue),
			zap.String("canonical", canonical.Name),
			zap.Int64("updated", count))
	}

	header := &models.BatchAuditHeader{
		ID:             uuid.New(),
		ActionType:     models.ActionBulkUpdate,
		PrincipalID:    principal.ID,
		PrincipalEmail: principal.Email,
		PrincipalRole:  principal.Role,
		IP:             principal.IP,
		UserAgent:      principal.UserAgent,
		StartedAt:      startedAt,
		FinishedAt:     time.Now().UTC(),
		TotalAttempted: len(approved),
		TotalSucceeded: succeeded,
		TotalFailed:    failed,
		TransactionID:  transactionID,
		SessionID:      principal.SessionID,
	}

	for i := range details {
		details[i].BatchID = header.ID
	}

	if err := s.audit.AppendBatch(ctx, tx, header, details); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrAuditWriteFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: commit failed: %v", apperrors.ErrTransient, err)
	}

	s.logger.Info("Committed mapping batch",
		zap.String("batch_id", header.ID.String()),
		zap.String("transaction_id", transactionID),
		zap.Int("attempted", header.TotalAttempted),
		zap.Int("succeeded", header.TotalSucceeded),
		zap.Int("failed", header.TotalFailed))

	return header, details, nil
}

// auditOperationFailure records a rolled-back batch attempt. Best effort:
// the rollback already happened and the original error is what surfaces.
func (s *commitService) auditOperationFailure(ctx context.Context, sess *ReconciliationSession, principal models.Principal, transactionID string, cause error) {
	entry := &models.AuditLogEntry{
		ActionType:     models.ActionOperationFailed,
		TableName:      sess.Table,
		PrincipalID:    principal.ID,
		PrincipalEmail: principal.Email,
		PrincipalRole:  principal.Role,
		IP:             principal.IP,
		UserAgent:      principal.UserAgent,
		Metadata: map[string]any{
			"transaction_id": transactionID,
			"session_id":     principal.SessionID,
			"error":          cause.Error(),
		},
	}
	if err := s.audit.Append(context.WithoutCancel(ctx), s.db.Pool, entry); err != nil {
		s.logger.Error("Failed to audit rolled-back batch",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
	}
}

// newTransactionID allocates a monotonic, collision-resistant transaction
// id: epoch microseconds plus a random nonce for tie-breaks.
func newTransactionID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMicro(), uuid.NewString()[:8])
}
