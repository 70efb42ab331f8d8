package repository

import (
	"context"

	"OVIP/internal/domain/models"
)

// FeatureStore persists engineered feature values for offline scoring.
type FeatureStore interface {
	SaveFeatures(ctx context.Context, runID string, panel *models.EngineeredPanel, cols []models.Column) error
}

// FeaturePublisher announces finished pipeline runs.
type FeaturePublisher interface {
	PublishSnapshot(ctx context.Context, s *models.PipelineSummary) error
	Close() error
}
