package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
)

func TestRecordHistory(t *testing.T) {
	svc := &fakeAuditService{entries: []*models.AuditLogEntry{
		{ID: uuid.New(), ActionType: "FIELD_UPDATE", TableName: "creators", RecordID: "r1"},
	}}
	h := NewAuditHandler(svc, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/audit/records/creators/r1", nil)
	r.SetPathValue("table", "creators")
	r.SetPathValue("id", "r1")
	w := httptest.NewRecorder()
	h.RecordHistory(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, true, envelope["success"])
	assert.Len(t, envelope["data"], 1)
}

func TestRecordHistoryEmptyIsArray(t *testing.T) {
	h := NewAuditHandler(&fakeAuditService{}, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/audit/records/creators/r1", nil)
	r.SetPathValue("table", "creators")
	r.SetPathValue("id", "r1")
	w := httptest.NewRecorder()
	h.RecordHistory(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestActivityParsesFilters(t *testing.T) {
	svc := &fakeAuditService{}
	h := NewAuditHandler(svc, zap.NewNop())

	url := "/api/audit/activity?search=punjab" +
		"&action_types=BULK_UPDATE,%20MASS_DELETE" +
		"&risk_levels=high,medium" +
		"&roles=super_admin" +
		"&from=2026-08-01T00:00:00Z&to=2026-08-23T00:00:00Z" +
		"&page=2&page_size=25"
	r := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	h.Activity(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	filter := svc.lastFilter
	assert.Equal(t, "punjab", filter.Search)
	assert.Equal(t, []string{"BULK_UPDATE", "MASS_DELETE"}, filter.ActionTypes)
	assert.Equal(t, []models.RiskLevel{models.RiskHigh, models.RiskMedium}, filter.RiskLevels)
	assert.Equal(t, []string{"super_admin"}, filter.PrincipalRoles)
	require.NotNil(t, filter.From)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), filter.From.UTC())
	require.NotNil(t, filter.To)
	assert.Equal(t, 2, filter.Page)
	assert.Equal(t, 25, filter.PageSize)
}

func TestActivityDefaults(t *testing.T) {
	svc := &fakeAuditService{}
	h := NewAuditHandler(svc, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/audit/activity", nil)
	w := httptest.NewRecorder()
	h.Activity(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.lastFilter.Page)
	assert.Zero(t, svc.lastFilter.PageSize, "page size left for the service to default")
	assert.Nil(t, svc.lastFilter.From)
	assert.Empty(t, svc.lastFilter.ActionTypes)
}

func TestActivityPaginatedEnvelope(t *testing.T) {
	svc := &fakeAuditService{
		entries: []*models.AuditLogEntry{{ID: uuid.New(), ActionType: "LOGIN"}},
		total:   42,
	}
	h := NewAuditHandler(svc, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/audit/activity?page=3&page_size=10", nil)
	w := httptest.NewRecorder()
	h.Activity(w, r)

	envelope := decodeEnvelope(t, w)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, float64(42), data["total"])
	assert.Equal(t, float64(3), data["page"])
	assert.Equal(t, float64(10), data["page_size"])
	assert.Len(t, data["items"], 1)
}

func TestGetBatch(t *testing.T) {
	header := &models.BatchAuditHeader{ID: uuid.New(), ActionType: models.ActionBulkUpdate}
	svc := &fakeAuditService{
		header:  header,
		details: []models.BatchAuditDetail{{BatchID: header.ID, SequenceNumber: 1}},
	}
	h := NewAuditHandler(svc, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/audit/batches/"+header.ID.String(), nil)
	r.SetPathValue("id", header.ID.String())
	w := httptest.NewRecorder()
	h.GetBatch(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	data := envelope["data"].(map[string]any)
	gotHeader := data["header"].(map[string]any)
	assert.Equal(t, header.ID.String(), gotHeader["id"])
	assert.Len(t, data["details"], 1)
}

func TestGetBatchInvalidID(t *testing.T) {
	h := NewAuditHandler(&fakeAuditService{}, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/api/audit/batches/nope", nil)
	r.SetPathValue("id", "nope")
	w := httptest.NewRecorder()
	h.GetBatch(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBatchNotFound(t *testing.T) {
	h := NewAuditHandler(&fakeAuditService{err: apperrors.ErrNotFound}, zap.NewNop())

	id := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/api/audit/batches/"+id, nil)
	r.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h.GetBatch(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
