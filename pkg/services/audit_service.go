package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
	sqlguard "github.com/reachcrm-inc/statecore-engine/pkg/sql"
)

// Activity feed paging bounds.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AuditService reads and appends the immutable audit trail.
type AuditService interface {
	// Append writes one audit entry outside any batch.
	Append(ctx context.Context, entry *models.AuditLogEntry) error

	// HistoryForRecord returns a record's audit entries, newest first.
	HistoryForRecord(ctx context.Context, tableName, recordID string) ([]*models.AuditLogEntry, error)

	// Activity returns one page of the filtered activity feed.
	Activity(ctx context.Context, filter models.AuditQuery) ([]*models.AuditLogEntry, int, error)

	// Batch returns a batch header with its ordered details.
	Batch(ctx context.Context, batchID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error)
}

type auditService struct {
	db     *database.DB
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(db *database.DB, repo repositories.AuditRepository, logger *zap.Logger) AuditService {
	return &auditService{
		db:     db,
		repo:   repo,
		logger: logger.Named("audit-service"),
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := s.repo.Append(ctx, s.db.Pool, entry); err != nil {
		s.logger.Error("Failed to append audit entry",
			zap.String("action_type", entry.ActionType),
			zap.Error(err))
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *auditService) HistoryForRecord(ctx context.Context, tableName, recordID string) ([]*models.AuditLogEntry, error) {
	if err := sqlguard.ValidateIdentifier(tableName); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	entries, err := s.repo.HistoryForRecord(ctx, s.db.Pool, tableName, recordID)
	if err != nil {
		s.logger.Error("Failed to load record history",
			zap.String("table_name", tableName),
			zap.String("record_id", recordID),
			zap.Error(err))
		return nil, fmt.Errorf("record history: %w", err)
	}
	return entries, nil
}

func (s *auditService) Activity(ctx context.Context, filter models.AuditQuery) ([]*models.AuditLogEntry, int, error) {
	if result := sqlguard.CheckSearchTerm(filter.Search); result != nil {
		s.logger.Warn("Rejected audit search term",
			zap.String("fingerprint", result.Fingerprint))
		return nil, 0, fmt.Errorf("search term rejected")
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	entries, total, err := s.repo.Query(ctx, s.db.Pool, filter)
	if err != nil {
		s.logger.Error("Failed to query activity feed", zap.Error(err))
		return nil, 0, fmt.Errorf("activity feed: %w", err)
	}
	return entries, total, nil
}

func (s *auditService) Batch(ctx context.Context, batchID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	header, details, err := s.repo.GetBatch(ctx, s.db.Pool, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("batch %s: %w", batchID, err)
	}
	return header, details, nil
}
