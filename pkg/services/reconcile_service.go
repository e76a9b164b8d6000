package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/config"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
	"github.com/reachcrm-inc/statecore-engine/pkg/retry"
)

// ReconciliationService orchestrates a full reconciliation run: proposing
// a mapping set from the record store, mediating edits, and committing.
type ReconciliationService interface {
	// Propose scans the reconciled column, builds a mapping set with
	// auto-selections applied, and returns the new session.
	Propose(ctx context.Context, principal models.Principal) (*ReconciliationSession, error)

	// Session returns a live session by id.
	Session(id uuid.UUID) (*ReconciliationSession, error)

	// Approve, Reject, and Reset edit one entry of a session's set.
	Approve(sessionID uuid.UUID, uncleanValue string, canonicalID uuid.UUID) (*ReconciliationSession, error)
	Reject(sessionID uuid.UUID, uncleanValue string) (*ReconciliationSession, error)
	Reset(sessionID uuid.UUID, uncleanValue string) (*ReconciliationSession, error)

	// Commit applies the session's approved entries and retires the
	// session on success.
	Commit(ctx context.Context, sessionID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error)

	// Discard drops a session before commit. No audit is emitted.
	Discard(sessionID uuid.UUID) error
}

type reconciliationService struct {
	cfg       config.ReconcilerConfig
	db        *database.DB
	sessions  *SessionManager
	catalogue CatalogueService
	mappings  MappingService
	commits   CommitService
	records   repositories.RecordRepository
	logger    *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService.
func NewReconciliationService(
	cfg config.ReconcilerConfig,
	db *database.DB,
	sessions *SessionManager,
	catalogue CatalogueService,
	mappings MappingService,
	commits CommitService,
	records repositories.RecordRepository,
	logger *zap.Logger,
) ReconciliationService {
	return &reconciliationService{
		cfg:       cfg,
		db:        db,
		sessions:  sessions,
		catalogue: catalogue,
		mappings:  mappings,
		commits:   commits,
		records:   records,
		logger:    logger.Named("reconcile-service"),
	}
}

var _ ReconciliationService = (*reconciliationService)(nil)

func (s *reconciliationService) Propose(ctx context.Context, principal models.Principal) (*ReconciliationSession, error) {
	sess := s.sessions.Create(principal, s.cfg.RecordTable, s.cfg.StateField)

	// Catalogue load and the distinct scan are the session's remote reads;
	// transient failures here are retried before the session is abandoned.
	cat, err := retry.DoWithResult(ctx, nil, func() (*models.Catalogue, error) {
		loadCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
		defer cancel()
		return s.catalogue.Load(loadCtx)
	})
	if err != nil {
		s.sessions.Remove(sess.ID)
		return nil, fmt.Errorf("load catalogue: %w", err)
	}
	sess.Catalogue = cat

	values, err := retry.DoWithResult(ctx, nil, func() ([]repositories.DistinctValue, error) {
		scanCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
		defer cancel()
		return s.records.SelectDistinct(scanCtx, s.db.Pool, sess.Table, sess.Field)
	})
	if err != nil {
		s.sessions.Remove(sess.ID)
		return nil, fmt.Errorf("scan distinct values: %w", err)
	}

	if err := s.mappings.BuildProposal(ctx, sess, values); err != nil {
		s.sessions.Remove(sess.ID)
		return nil, fmt.Errorf("build proposal: %w", err)
	}

	return sess, nil
}

func (s *reconciliationService) Session(id uuid.UUID) (*ReconciliationSession, error) {
	return s.sessions.Get(id)
}

func (s *reconciliationService) Approve(sessionID uuid.UUID, uncleanValue string, canonicalID uuid.UUID) (*ReconciliationSession, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.mappings.Approve(sess, uncleanValue, canonicalID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *reconciliationService) Reject(sessionID uuid.UUID, uncleanValue string) (*ReconciliationSession, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.mappings.Reject(sess, uncleanValue); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *reconciliationService) Reset(sessionID uuid.UUID, uncleanValue string) (*ReconciliationSession, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.mappings.Reset(sess, uncleanValue); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *reconciliationService) Commit(ctx context.Context, sessionID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}

	header, details, err := s.commits.Commit(ctx, sess)
	if err != nil {
		return nil, nil, err
	}

	// The mapping set is destroyed on commit; history lives in the audit
	// store from here on.
	s.sessions.Remove(sessionID)
	return header, details, nil
}

func (s *reconciliationService) Discard(sessionID uuid.UUID) error {
	if err := s.sessions.Discard(sessionID); err != nil {
		return err
	}
	s.logger.Debug("Discarded reconciliation session",
		zap.String("session_id", sessionID.String()))
	return nil
}
