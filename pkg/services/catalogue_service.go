package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
)

// CatalogueService loads the canonical-state catalogue.
type CatalogueService interface {
	// Load reads all canonical states and builds the session catalogue.
	Load(ctx context.Context) (*models.Catalogue, error)
}

type catalogueService struct {
	db     *database.DB
	logger *zap.Logger
}

// NewCatalogueService creates a new CatalogueService.
func NewCatalogueService(db *database.DB, logger *zap.Logger) CatalogueService {
	return &catalogueService{
		db:     db,
		logger: logger.Named("catalogue-service"),
	}
}

var _ CatalogueService = (*catalogueService)(nil)

func (s *catalogueService) Load(ctx context.Context) (*models.Catalogue, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(aliases, '{}')
		FROM canonical_states
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical states: %w", err)
	}
	defer rows.Close()

	var states []models.CanonicalState
	for rows.Next() {
		var st models.CanonicalState
		if err := rows.Scan(&st.ID, &st.Name, &st.Aliases); err != nil {
			return nil, fmt.Errorf("failed to scan canonical state: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating canonical states: %w", err)
	}

	s.logger.Debug("Loaded canonical state catalogue", zap.Int("states", len(states)))
	return models.NewCatalogue(states), nil
}
