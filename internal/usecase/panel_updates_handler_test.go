package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OVIP/internal/domain/models"
)

type memPanelStore struct {
	obs       []models.Observation
	appendErr error
}

func (s *memPanelStore) Name() string { return "mem" }

func (s *memPanelStore) Load(context.Context) (*models.MarketPanel, error) {
	return models.PanelFromObservations(s.obs), nil
}

func (s *memPanelStore) Init(context.Context) error   { return nil }
func (s *memPanelStore) Health(context.Context) error { return nil }
func (s *memPanelStore) Close() error                 { return nil }

func (s *memPanelStore) AppendObservations(_ context.Context, obs []models.Observation) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.obs = append(s.obs, obs...)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestPanelFromRows_SortsByDate(t *testing.T) {
	v1, v2 := 0.3, 0.2
	p, err := PanelFromRows([]models.PanelRow{
		{Date: "2021-02-01", Volatility: &v1, Extra: map[string]float64{"brent": 70}},
		{Date: "2021-01", Volatility: &v2},
	})
	require.NoError(t, err)

	require.Equal(t, 2, p.Len())
	assert.Equal(t, time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC), p.Dates[0])
	assert.Equal(t, 0.2, p.Volatility[0])
	assert.Equal(t, 0.3, p.Volatility[1])
	assert.Nil(t, p.Score, "a column no row carries is absent")

	brent, ok := p.Column("brent")
	require.True(t, ok)
	assert.Equal(t, 70.0, brent[1])
}

func TestPanelFromRows_Rejects(t *testing.T) {
	_, err := PanelFromRows([]models.PanelRow{{Date: "yesterday"}})
	assert.ErrorIs(t, err, ErrBadRow)

	_, err = PanelFromRows([]models.PanelRow{{Date: "2021-01-01"}, {Date: "2021-01-01"}})
	assert.ErrorIs(t, err, ErrBadRow)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestPanelUpdatesHandler_SingleAndBatch(t *testing.T) {
	store := &memPanelStore{}
	inv := &countingInvalidator{}
	rec := newRecordingMetrics()
	h := NewPanelUpdatesHandler("ovip.panel.observations", store, inv, rec, nil)

	assert.Equal(t, "ovip.panel.observations", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"date":"2021-03-01","volatility":0.31}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(` [{"date":"2021-04-01","wti":64.2},{"date":"2021-05-01","gpr":110}]`)))

	require.Len(t, store.obs, 3)
	require.NotNil(t, store.obs[0].Volatility)
	assert.Equal(t, 0.31, *store.obs[0].Volatility)
	require.NotNil(t, store.obs[1].WTI)
	assert.Equal(t, 64.2, *store.obs[1].WTI)
	assert.Equal(t, 2, inv.calls)
	assert.Equal(t, 2, rec.observations["appended"])
}

func TestPanelUpdatesHandler_Errors(t *testing.T) {
	rec := newRecordingMetrics()
	store := &memPanelStore{}
	inv := &countingInvalidator{}
	h := NewPanelUpdatesHandler("t", store, inv, rec, nil)

	assert.ErrorIs(t, h.Handle(context.Background(), []byte("  ")), ErrBadRow)
	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"date":"n/a"}`)), ErrBadRow)
	assert.Equal(t, 2, rec.observations["decode_error"])
	assert.Equal(t, 1, rec.observations["invalid"])

	boom := errors.New("insert failed")
	store.appendErr = boom
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"date":"2021-03-01"}`)), boom)
	assert.Equal(t, 1, rec.observations["store_error"])
	assert.Zero(t, inv.calls)
}
