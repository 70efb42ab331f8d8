package repository

import (
	"context"
	"time"

	"OVIP/internal/domain/models"
)

// PanelSource yields the full canonical market panel, sorted by date.
type PanelSource interface {
	Load(ctx context.Context) (*models.MarketPanel, error)
	Name() string
}

// PanelStore is a writable panel source fed by upstream observations.
type PanelStore interface {
	PanelSource
	Init(ctx context.Context) error // ensure tables
	AppendObservations(ctx context.Context, obs []models.Observation) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordPipelineRun(source string, d time.Duration, err error)
	RecordValidation(set models.FeatureSet, valid bool)
	RecordScore(model string, seconds float64, err error)
	RecordObservation(status string)
}
