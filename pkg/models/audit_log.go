package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Audit action type constants.
const (
	ActionBulkUpdate             = "BULK_UPDATE"
	ActionMassDelete             = "MASS_DELETE"
	ActionPermissionsChange      = "PERMISSIONS_CHANGE"
	ActionDataExport             = "DATA_EXPORT"
	ActionDeleteAll              = "DELETE_ALL"
	ActionPermissionsCheckFailed = "PERMISSIONS_CHECK_FAILED"
	ActionOperationFailed        = "OPERATION_FAILED"
)

// RiskLevel classifies an audit entry by the blast radius of its action.
type RiskLevel string

// Risk level constants.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// highRiskActions are always classified high regardless of their verb.
var highRiskActions = map[string]struct{}{
	ActionMassDelete:        {},
	ActionBulkUpdate:        {},
	ActionPermissionsChange: {},
	ActionDataExport:        {},
	ActionDeleteAll:         {},
}

// RiskOf returns the fixed risk classification for an action type:
// the enumerated bulk/permission/export actions are high, any other action
// containing DELETE or UPDATE is medium, everything else is low.
func RiskOf(actionType string) RiskLevel {
	if _, ok := highRiskActions[actionType]; ok {
		return RiskHigh
	}
	upper := strings.ToUpper(actionType)
	if strings.Contains(upper, "DELETE") || strings.Contains(upper, "UPDATE") {
		return RiskMedium
	}
	return RiskLow
}

// AuditLogEntry is one immutable row in the audit log. Batch headers are
// stored as audit log entries whose metadata carries the batch totals.
type AuditLogEntry struct {
	ID             uuid.UUID      `json:"id"`
	ActionType     string         `json:"action_type"`
	TableName      string         `json:"table_name,omitempty"`
	RecordID       string         `json:"record_id,omitempty"`
	OldValue       *string        `json:"old_value,omitempty"`
	NewValue       *string        `json:"new_value,omitempty"`
	PrincipalID    string         `json:"principal_id"`
	PrincipalEmail string         `json:"principal_email"`
	PrincipalRole  string         `json:"principal_role"`
	IP             string         `json:"ip,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// BatchAuditHeader describes one atomic application of an approved mapping
// set. Immutable after write.
type BatchAuditHeader struct {
	ID             uuid.UUID `json:"id"`
	ActionType     string    `json:"action_type"`
	PrincipalID    string    `json:"principal_id"`
	PrincipalEmail string    `json:"principal_email"`
	PrincipalRole  string    `json:"principal_role"`
	IP             string    `json:"ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	TotalAttempted int       `json:"total_attempted"`
	TotalSucceeded int       `json:"total_succeeded"`
	TotalFailed    int       `json:"total_failed"`
	RiskLevel      RiskLevel `json:"risk_level"`
	TransactionID  string    `json:"transaction_id"`
	SessionID      string    `json:"session_id"`
}

// DetailStatus is the per-row outcome within a batch.
type DetailStatus string

// Detail status constants.
const (
	DetailCompleted DetailStatus = "completed"
	DetailError     DetailStatus = "error"
)

// BatchAuditDetail is one immutable per-entry row under a batch header.
// Details are ordered by SequenceNumber, matching the insertion order of
// approved entries.
type BatchAuditDetail struct {
	BatchID          uuid.UUID    `json:"batch_id"`
	SequenceNumber   int          `json:"sequence_number"`
	RecordIdentifier string       `json:"record_identifier"`
	FieldName        string       `json:"field_name"`
	OldValue         string       `json:"old_value"`
	NewValue         string       `json:"new_value"`
	Status           DetailStatus `json:"status"`
	ErrorMessage     string       `json:"error_message,omitempty"`
}

// AuditQuery filters the activity feed. Zero values mean "no filter".
type AuditQuery struct {
	Search         string      `json:"search,omitempty"`
	ActionTypes    []string    `json:"action_types,omitempty"`
	RiskLevels     []RiskLevel `json:"risk_levels,omitempty"`
	PrincipalRoles []string    `json:"principal_roles,omitempty"`
	From           *time.Time  `json:"from,omitempty"`
	To             *time.Time  `json:"to,omitempty"`
	Page           int         `json:"page"`
	PageSize       int         `json:"page_size"`
}
