package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OVIP/internal/domain/models"
	"OVIP/internal/services/features"
	"OVIP/internal/services/ingest"
	"OVIP/internal/usecase"
	"OVIP/pkg/config"
)

func TestApp_StartWarmsPipelineAndClosesInReverse(t *testing.T) {
	src := ingest.SyntheticSource{Start: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), Months: 24, Seed: 3}
	pipeline := usecase.NewFeaturePipeline(src, features.NewEngineer(features.DefaultTrainCutoff))

	var closed []string
	app := New(config.Default(), nil, nil, pipeline).
		OnClose("clickhouse", func() error { closed = append(closed, "clickhouse"); return nil }).
		OnClose("producer", func() error { closed = append(closed, "producer"); return errors.New("already closed") })

	require.NoError(t, app.Start(context.Background()))

	s, err := pipeline.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24, s.Rows)

	require.NoError(t, app.Shutdown(context.Background()))
	assert.Equal(t, []string{"producer", "clickhouse"}, closed)
}

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Load(context.Context) (*models.MarketPanel, error) {
	return nil, errors.New("no such file")
}

func TestApp_StartSurvivesFailedWarmup(t *testing.T) {
	pipeline := usecase.NewFeaturePipeline(failingSource{}, features.NewEngineer(features.DefaultTrainCutoff))
	app := New(config.Default(), nil, nil, pipeline)

	assert.NoError(t, app.Start(context.Background()))
	assert.NoError(t, app.Shutdown(context.Background()))
}
