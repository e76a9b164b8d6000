package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
)

// filterCapturingAuditRepo records the filter Query receives.
type filterCapturingAuditRepo struct {
	fakeAuditRepo
	lastFilter models.AuditQuery
}

func (f *filterCapturingAuditRepo) Query(ctx context.Context, q database.Querier, filter models.AuditQuery) ([]*models.AuditLogEntry, int, error) {
	f.lastFilter = filter
	return nil, 0, nil
}

func TestActivityNormalizesPaging(t *testing.T) {
	repo := &filterCapturingAuditRepo{}
	svc := NewAuditService(&database.DB{}, repo, zap.NewNop())

	tests := []struct {
		name         string
		page         int
		pageSize     int
		wantPage     int
		wantPageSize int
	}{
		{"zero values", 0, 0, 1, 50},
		{"negative page", -3, 25, 1, 25},
		{"oversized page", 2, 10000, 2, 200},
		{"in range", 3, 100, 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Activity(context.Background(), models.AuditQuery{
				Page:     tt.page,
				PageSize: tt.pageSize,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, repo.lastFilter.Page)
			assert.Equal(t, tt.wantPageSize, repo.lastFilter.PageSize)
		})
	}
}

func TestActivityRejectsInjectionSearchTerms(t *testing.T) {
	repo := &filterCapturingAuditRepo{}
	svc := NewAuditService(&database.DB{}, repo, zap.NewNop())

	_, _, err := svc.Activity(context.Background(), models.AuditQuery{
		Search: "' UNION SELECT password FROM users --",
	})
	require.Error(t, err)
	assert.Zero(t, repo.lastFilter.PageSize, "query never reached the repository")
}

func TestHistoryForRecordValidatesTableName(t *testing.T) {
	svc := NewAuditService(&database.DB{}, &fakeAuditRepo{}, zap.NewNop())

	_, err := svc.HistoryForRecord(context.Background(), `creators"; DROP TABLE x;`, "r1")
	assert.Error(t, err)

	_, err = svc.HistoryForRecord(context.Background(), "creators", "r1")
	assert.NoError(t, err)
}
