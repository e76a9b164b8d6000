package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
)

// AuditRepository provides append-only access to the audit log. No update
// or delete operations exist: entries are immutable once written.
type AuditRepository interface {
	// Append inserts a single audit log entry.
	Append(ctx context.Context, q database.Querier, entry *models.AuditLogEntry) error

	// AppendBatch inserts a batch header and its detail rows. Atomicity is
	// the caller's: pass the commit transaction as q.
	AppendBatch(ctx context.Context, q database.Querier, header *models.BatchAuditHeader, details []models.BatchAuditDetail) error

	// HistoryForRecord returns all audit entries for one record,
	// newest first.
	HistoryForRecord(ctx context.Context, q database.Querier, tableName, recordID string) ([]*models.AuditLogEntry, error)

	// Query returns one page of the filtered activity feed plus the total
	// match count.
	Query(ctx context.Context, q database.Querier, filter models.AuditQuery) ([]*models.AuditLogEntry, int, error)

	// GetBatch returns a batch header with its details ordered by
	// sequence number. Returns apperrors.ErrNotFound for unknown ids.
	GetBatch(ctx context.Context, q database.Querier, batchID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error)
}

type auditRepository struct{}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepository{}
}

var _ AuditRepository = (*auditRepository)(nil)

const auditColumns = `id, action_type, table_name, record_id, old_value, new_value,
	principal_id, principal_email, principal_role, ip, user_agent, risk_level, "timestamp", metadata`

func (r *auditRepository) Append(ctx context.Context, q database.Querier, entry *models.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	// Risk classification is derived, never caller-supplied.
	entry.RiskLevel = models.RiskOf(entry.ActionType)

	var metadataJSON []byte
	if len(entry.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.ActionType,
		entry.TableName,
		entry.RecordID,
		entry.OldValue,
		entry.NewValue,
		entry.PrincipalID,
		entry.PrincipalEmail,
		entry.PrincipalRole,
		entry.IP,
		entry.UserAgent,
		string(entry.RiskLevel),
		entry.Timestamp,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit log entry: %w", err)
	}

	return nil
}

// batchMetadata is the JSON shape of a batch header's metadata column.
type batchMetadata struct {
	TransactionID  string    `json:"transaction_id"`
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	TotalAttempted int       `json:"total_attempted"`
	TotalSucceeded int       `json:"total_succeeded"`
	TotalFailed    int       `json:"total_failed"`
}

func (r *auditRepository) AppendBatch(ctx context.Context, q database.Querier, header *models.BatchAuditHeader, details []models.BatchAuditDetail) error {
	if header.ID == uuid.Nil {
		header.ID = uuid.New()
	}
	header.RiskLevel = models.RiskOf(header.ActionType)

	metadataJSON, err := json.Marshal(batchMetadata{
		TransactionID:  header.TransactionID,
		SessionID:      header.SessionID,
		StartedAt:      header.StartedAt,
		FinishedAt:     header.FinishedAt,
		TotalAttempted: header.TotalAttempted,
		TotalSucceeded: header.TotalSucceeded,
		TotalFailed:    header.TotalFailed,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal batch metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = q.Exec(ctx, query,
		header.ID,
		header.ActionType,
		"", // table_name: batch scope is carried by the detail rows
		"",
		nil,
		nil,
		header.PrincipalID,
		header.PrincipalEmail,
		header.PrincipalRole,
		header.IP,
		header.UserAgent,
		string(header.RiskLevel),
		header.FinishedAt,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append batch header: %w", err)
	}

	for _, d := range details {
		_, err := q.Exec(ctx, `
			INSERT INTO audit_batch_detail (
				batch_id, sequence_number, record_identifier, field_name,
				old_value, new_value, status, error_message
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			header.ID,
			d.SequenceNumber,
			d.RecordIdentifier,
			d.FieldName,
			d.OldValue,
			d.NewValue,
			string(d.Status),
			d.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to append batch detail %d: %w", d.SequenceNumber, err)
		}
	}

	return nil
}

func (r *auditRepository) HistoryForRecord(ctx context.Context, q database.Querier, tableName, recordID string) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE table_name = $1 AND record_id = $2
		ORDER BY "timestamp" DESC, id DESC`

	rows, err := q.Query(ctx, query, tableName, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query record history: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

func (r *auditRepository) Query(ctx context.Context, q database.Querier, filter models.AuditQuery) ([]*models.AuditLogEntry, int, error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf(
			"(action_type ILIKE %s OR principal_email ILIKE %s OR table_name ILIKE %s)", p, p, p))
	}
	if len(filter.ActionTypes) > 0 {
		conds = append(conds, fmt.Sprintf("action_type = ANY(%s)", arg(filter.ActionTypes)))
	}
	if len(filter.RiskLevels) > 0 {
		levels := make([]string, len(filter.RiskLevels))
		for i, l := range filter.RiskLevels {
			levels[i] = string(l)
		}
		conds = append(conds, fmt.Sprintf("risk_level = ANY(%s)", arg(levels)))
	}
	if len(filter.PrincipalRoles) > 0 {
		conds = append(conds, fmt.Sprintf("principal_role = ANY(%s)", arg(filter.PrincipalRoles)))
	}
	if filter.From != nil {
		conds = append(conds, fmt.Sprintf(`"timestamp" >= %s`, arg(*filter.From)))
	}
	if filter.To != nil {
		conds = append(conds, fmt.Sprintf(`"timestamp" <= %s`, arg(*filter.To)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log " + where
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	limit := arg(filter.PageSize)
	offset := arg((filter.Page - 1) * filter.PageSize)
	pageQuery := `
		SELECT ` + auditColumns + `
		FROM audit_log ` + where + `
		ORDER BY "timestamp" DESC, id DESC
		LIMIT ` + limit + ` OFFSET ` + offset

	rows, err := q.Query(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *auditRepository) GetBatch(ctx context.Context, q database.Querier, batchID uuid.UUID) (*models.BatchAuditHeader, []models.BatchAuditDetail, error) {
	row := q.QueryRow(ctx, `
		SELECT id, action_type, principal_id, principal_email, principal_role,
			ip, user_agent, risk_level, metadata
		FROM audit_log
		WHERE id = $1`, batchID)

	var header models.BatchAuditHeader
	var riskLevel string
	var metadataJSON []byte
	err := row.Scan(
		&header.ID,
		&header.ActionType,
		&header.PrincipalID,
		&header.PrincipalEmail,
		&header.PrincipalRole,
		&header.IP,
		&header.UserAgent,
		&riskLevel,
		&metadataJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan batch header: %w", err)
	}
	header.RiskLevel = models.RiskLevel(riskLevel)

	var meta batchMetadata
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &meta); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal batch metadata: %w", err)
		}
	}
	header.TransactionID = meta.TransactionID
	header.SessionID = meta.SessionID
	header.StartedAt = meta.StartedAt
	header.FinishedAt = meta.FinishedAt
	header.TotalAttempted = meta.TotalAttempted
	header.TotalSucceeded = meta.TotalSucceeded
	header.TotalFailed = meta.TotalFailed

	rows, err := q.Query(ctx, `
		SELECT batch_id, sequence_number, record_identifier, field_name,
			old_value, new_value, status, error_message
		FROM audit_batch_detail
		WHERE batch_id = $1
		ORDER BY sequence_number`, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query batch details: %w", err)
	}
	defer rows.Close()

	var details []models.BatchAuditDetail
	for rows.Next() {
		var d models.BatchAuditDetail
		var status string
		if err := rows.Scan(
			&d.BatchID,
			&d.SequenceNumber,
			&d.RecordIdentifier,
			&d.FieldName,
			&d.OldValue,
			&d.NewValue,
			&status,
			&d.ErrorMessage,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan batch detail: %w", err)
		}
		d.Status = models.DetailStatus(status)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating batch details: %w", err)
	}

	return &header, details, nil
}

func scanAuditEntries(rows pgx.Rows) ([]*models.AuditLogEntry, error) {
	var entries []*models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		var riskLevel string
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ActionType,
			&entry.TableName,
			&entry.RecordID,
			&entry.OldValue,
			&entry.NewValue,
			&entry.PrincipalID,
			&entry.PrincipalEmail,
			&entry.PrincipalRole,
			&entry.IP,
			&entry.UserAgent,
			&riskLevel,
			&entry.Timestamp,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		entry.RiskLevel = models.RiskLevel(riskLevel)

		if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log entries: %w", err)
	}
	return entries, nil
}
