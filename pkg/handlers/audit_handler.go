package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/auth"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/services"
)

// AuditHandler handles audit trail HTTP requests.
type AuditHandler struct {
	auditService services.AuditService
	logger       *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(auditService services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/audit"

	mux.HandleFunc("GET "+base+"/records/{table}/{id}", authMiddleware.RequireAuth(h.RecordHistory))
	mux.HandleFunc("GET "+base+"/activity", authMiddleware.RequireAuth(h.Activity))
	mux.HandleFunc("GET "+base+"/batches/{id}", authMiddleware.RequireAuth(h.GetBatch))
}

// RecordHistory handles GET /api/audit/records/{table}/{id}
func (h *AuditHandler) RecordHistory(w http.ResponseWriter, r *http.Request) {
	tableName := r.PathValue("table")
	recordID := r.PathValue("id")

	entries, err := h.auditService.HistoryForRecord(r.Context(), tableName, recordID)
	if err != nil {
		h.logger.Error("Failed to load record history",
			zap.String("table_name", tableName),
			zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "record_history_failed", err.Error())
		return
	}

	if entries == nil {
		entries = make([]*models.AuditLogEntry, 0)
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: entries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Activity handles GET /api/audit/activity
func (h *AuditHandler) Activity(w http.ResponseWriter, r *http.Request) {
	filter := parseAuditQuery(r)

	entries, total, err := h.auditService.Activity(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to query activity feed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "activity_feed_failed", err.Error())
		return
	}

	if entries == nil {
		entries = make([]*models.AuditLogEntry, 0)
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: PaginatedResponse{
			Items:    entries,
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
		},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetBatch handles GET /api/audit/batches/{id}
func (h *AuditHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_batch_id", "batch id must be a UUID")
		return
	}

	header, details, err := h.auditService.Batch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "batch_not_found", err.Error())
			return
		}
		h.logger.Error("Failed to load audit batch",
			zap.String("batch_id", batchID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "get_batch_failed", err.Error())
		return
	}

	if details == nil {
		details = make([]models.BatchAuditDetail, 0)
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    CommitResponse{Header: header, Details: details},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// parseAuditQuery extracts activity feed filters from query params.
func parseAuditQuery(r *http.Request) models.AuditQuery {
	q := r.URL.Query()
	filter := models.AuditQuery{
		Search:         q.Get("search"),
		ActionTypes:    splitParam(q.Get("action_types")),
		RiskLevels:     riskLevels(splitParam(q.Get("risk_levels"))),
		PrincipalRoles: splitParam(q.Get("roles")),
		Page:           1,
	}

	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Page = n
		}
	}
	if v := q.Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.PageSize = n
		}
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &t
		}
	}

	return filter
}

func riskLevels(vals []string) []models.RiskLevel {
	if len(vals) == 0 {
		return nil
	}
	out := make([]models.RiskLevel, len(vals))
	for i, v := range vals {
		out[i] = models.RiskLevel(v)
	}
	return out
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (h *AuditHandler) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
