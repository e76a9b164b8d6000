package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/auth"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/services"
)

// ReconciliationHandler handles reconciliation session HTTP requests.
type ReconciliationHandler struct {
	reconcileService services.ReconciliationService
	logger           *zap.Logger
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(reconcileService services.ReconciliationService, logger *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconcileService: reconcileService,
		logger:           logger,
	}
}

// RegisterRoutes registers the reconciliation handler's routes on the given mux.
func (h *ReconciliationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/reconciliation"

	mux.HandleFunc("POST "+base+"/propose", authMiddleware.RequireAuth(h.Propose))
	mux.HandleFunc("GET "+base+"/sessions/{sid}", authMiddleware.RequireAuth(h.GetSession))
	mux.HandleFunc("POST "+base+"/sessions/{sid}/approve", authMiddleware.RequireAuth(h.Approve))
	mux.HandleFunc("POST "+base+"/sessions/{sid}/reject", authMiddleware.RequireAuth(h.Reject))
	mux.HandleFunc("POST "+base+"/sessions/{sid}/reset", authMiddleware.RequireAuth(h.Reset))
	mux.HandleFunc("POST "+base+"/sessions/{sid}/commit", authMiddleware.RequireAuth(h.Commit))
	mux.HandleFunc("DELETE "+base+"/sessions/{sid}", authMiddleware.RequireAuth(h.Discard))
}

// SessionResponse is the JSON view of a reconciliation session.
type SessionResponse struct {
	ID        uuid.UUID             `json:"id"`
	State     string                `json:"state"`
	Table     string                `json:"table"`
	Field     string                `json:"field"`
	CreatedAt time.Time             `json:"created_at"`
	Entries   []models.MappingEntry `json:"entries"`
	Summary   models.MappingSummary `json:"summary"`
}

func sessionResponse(sess *services.ReconciliationSession) SessionResponse {
	// Snapshot copies the entries under the session lock so the response
	// is coherent even while another request edits the set.
	view := sess.Snapshot()
	return SessionResponse{
		ID:        sess.ID,
		State:     string(view.State),
		Table:     sess.Table,
		Field:     sess.Field,
		CreatedAt: sess.CreatedAt,
		Entries:   view.Entries,
		Summary:   view.Summary,
	}
}

// Propose handles POST /api/reconciliation/propose
func (h *ReconciliationHandler) Propose(w http.ResponseWriter, r *http.Request) {
	principal, ok := models.GetPrincipal(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "no principal")
		return
	}

	sess, err := h.reconcileService.Propose(r.Context(), principal)
	if err != nil {
		h.logger.Error("Failed to build reconciliation proposal", zap.Error(err))
		h.writeServiceError(w, err, "propose_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: sessionResponse(sess)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetSession handles GET /api/reconciliation/sessions/{sid}
func (h *ReconciliationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.reconcileService.Session(sid)
	if err != nil {
		h.writeServiceError(w, err, "get_session_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: sessionResponse(sess)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type approveRequest struct {
	UncleanValue string    `json:"unclean_value"`
	CanonicalID  uuid.UUID `json:"canonical_id"`
}

// Approve handles POST /api/reconciliation/sessions/{sid}/approve
func (h *ReconciliationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.UncleanValue == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "unclean_value is required")
		return
	}
	if req.CanonicalID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "canonical_id is required")
		return
	}

	sess, err := h.reconcileService.Approve(sid, req.UncleanValue, req.CanonicalID)
	if err != nil {
		h.writeServiceError(w, err, "approve_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: sessionResponse(sess)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type entryRequest struct {
	UncleanValue string `json:"unclean_value"`
}

// Reject handles POST /api/reconciliation/sessions/{sid}/reject
func (h *ReconciliationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.editEntry(w, r, h.reconcileService.Reject)
}

// Reset handles POST /api/reconciliation/sessions/{sid}/reset
func (h *ReconciliationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.editEntry(w, r, h.reconcileService.Reset)
}

func (h *ReconciliationHandler) editEntry(w http.ResponseWriter, r *http.Request, edit func(uuid.UUID, string) (*services.ReconciliationSession, error)) {
	sid, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.UncleanValue == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "unclean_value is required")
		return
	}

	sess, err := edit(sid, req.UncleanValue)
	if err != nil {
		h.writeServiceError(w, err, "edit_entry_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: sessionResponse(sess)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CommitResponse carries the audit result of a committed batch.
type CommitResponse struct {
	Header  *models.BatchAuditHeader  `json:"header"`
	Details []models.BatchAuditDetail `json:"details"`
}

// Commit handles POST /api/reconciliation/sessions/{sid}/commit
func (h *ReconciliationHandler) Commit(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	header, details, err := h.reconcileService.Commit(r.Context(), sid)
	if err != nil {
		h.logger.Error("Failed to commit reconciliation session",
			zap.String("session_id", sid.String()),
			zap.Error(err))
		h.writeServiceError(w, err, "commit_failed")
		return
	}

	if details == nil {
		details = make([]models.BatchAuditDetail, 0)
	}
	if err := WriteJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    CommitResponse{Header: header, Details: details},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Discard handles DELETE /api/reconciliation/sessions/{sid}
func (h *ReconciliationHandler) Discard(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.reconcileService.Discard(sid); err != nil {
		h.writeServiceError(w, err, "discard_failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ReconciliationHandler) parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	sid, err := uuid.Parse(r.PathValue("sid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID")
		return uuid.Nil, false
	}
	return sid, true
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *ReconciliationHandler) writeServiceError(w http.ResponseWriter, err error, errorCode string) {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, errorCode, err.Error())
	case errors.Is(err, apperrors.ErrUnknownCanonicalState), errors.Is(err, apperrors.ErrInvariantViolation):
		h.writeError(w, http.StatusBadRequest, errorCode, err.Error())
	case errors.Is(err, apperrors.ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, errorCode, err.Error())
	case errors.Is(err, apperrors.ErrSessionCommitting):
		h.writeError(w, http.StatusConflict, errorCode, err.Error())
	case errors.Is(err, apperrors.ErrAuditWriteFailed):
		h.writeError(w, http.StatusInternalServerError, errorCode, err.Error())
	case errors.Is(err, apperrors.ErrTransient):
		h.writeError(w, http.StatusServiceUnavailable, errorCode, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, errorCode, err.Error())
	}
}

func (h *ReconciliationHandler) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
