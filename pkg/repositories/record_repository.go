// Package repositories provides data access for statecore-engine. All
// repositories operate over a database.Querier so the same code runs
// against the pool or inside a transaction.
package repositories

import (
	"context"
	"fmt"

	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	sqlguard "github.com/reachcrm-inc/statecore-engine/pkg/sql"
)

// DistinctValue is one distinct value of the reconciled column together
// with how many records carry it.
type DistinctValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// RecordRepository is the engine's view of the CRM record store: row-scoped
// updates with an equality predicate on a text column, and distinct-value
// scans of that column.
type RecordRepository interface {
	// UpdateWhere sets field to newValue on every row where field equals
	// oldValue, returning the number of rows changed.
	UpdateWhere(ctx context.Context, q database.Querier, table, field, oldValue, newValue string) (int64, error)

	// SelectDistinct returns every distinct non-empty value of field with
	// its occurrence count, ordered by value.
	SelectDistinct(ctx context.Context, q database.Querier, table, field string) ([]DistinctValue, error)
}

type recordRepository struct{}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository() RecordRepository {
	return &recordRepository{}
}

var _ RecordRepository = (*recordRepository)(nil)

func (r *recordRepository) UpdateWhere(ctx context.Context, q database.Querier, table, field, oldValue, newValue string) (int64, error) {
	if err := validateTarget(table, field); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, table, field, field)
	tag, err := q.Exec(ctx, query, newValue, oldValue)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s.%s: %w", table, field, err)
	}
	return tag.RowsAffected(), nil
}

func (r *recordRepository) SelectDistinct(ctx context.Context, q database.Querier, table, field string) ([]DistinctValue, error) {
	if err := validateTarget(table, field); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*)
		FROM %s
		WHERE %s IS NOT NULL AND %s <> ''
		GROUP BY %s
		ORDER BY %s`,
		field, table, field, field, field, field)

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan distinct values of %s.%s: %w", table, field, err)
	}
	defer rows.Close()

	var values []DistinctValue
	for rows.Next() {
		var v DistinctValue
		if err := rows.Scan(&v.Value, &v.Count); err != nil {
			return nil, fmt.Errorf("failed to scan distinct value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distinct values: %w", err)
	}

	return values, nil
}

// validateTarget rejects table or column names that are not plain SQL
// identifiers before they are interpolated into a statement.
func validateTarget(table, field string) error {
	if err := sqlguard.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}
	if err := sqlguard.ValidateIdentifier(field); err != nil {
		return fmt.Errorf("invalid field name: %w", err)
	}
	return nil
}
