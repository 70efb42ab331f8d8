package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OVIP/internal/domain/models"
	domrepo "OVIP/internal/domain/repository"
	"OVIP/internal/service/ratelimit"
	"OVIP/internal/services/analytics"
	"OVIP/internal/services/features"
	"OVIP/internal/services/ingest"
	"OVIP/internal/usecase"
)

type fixedScorer struct {
	prob  float64
	level float64
}

func (s fixedScorer) ScoreDirection(context.Context, map[models.Column]float64) (float64, error) {
	return s.prob, nil
}

func (s fixedScorer) ScoreLevel(context.Context, map[models.Column]float64) (float64, error) {
	return s.level, nil
}

type emptySource struct{}

func (emptySource) Name() string { return "empty" }
func (emptySource) Load(context.Context) (*models.MarketPanel, error) {
	return &models.MarketPanel{}, nil
}

type routeCounter struct{ calls map[string]int }

func (r *routeCounter) ObserveHTTP(route string, _ time.Duration, _ int) { r.calls[route]++ }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestEcho(src domrepo.PanelSource, limiter *ratelimit.Limiter, obs RouteObserver) *echo.Echo {
	pipeline := usecase.NewFeaturePipeline(src, features.NewEngineer(features.DefaultTrainCutoff))
	scorer := fixedScorer{prob: 0.64, level: 0.27}
	h := NewFeaturesEchoHandler(
		nil,
		pipeline,
		usecase.NewForecastUseCase(pipeline, scorer, scorer, 0.04, nil, nil),
		usecase.NewInsightsUseCase(pipeline),
		limiter,
		obs,
	)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func synthetic() ingest.SyntheticSource {
	return ingest.SyntheticSource{Start: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), Months: 24, Seed: 8}
}

func call(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func engineerBody(months int, dup bool) string {
	rows := make([]string, 0, months)
	for i := 0; i < months; i++ {
		d := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		if dup && i == months-1 {
			d = d.AddDate(0, -1, 0)
		}
		rows = append(rows, fmt.Sprintf(
			`{"date":%q,"volatility":%g,"crisis_prob":%g,"intensity":%g,"score":%g,"wti":%g,"gpr":%g}`,
			d.Format("2006-01-02"), 0.2+0.01*float64(i%5), 0.1*float64(i%9), 150+float64(i), 0.05*float64(i%4)-0.1, 60+float64(i), 100+float64(i%7),
		))
	}
	return `{"sets":["NPRS-1"],"rows":[` + strings.Join(rows, ",") + `]}`
}

func TestFeatures_ReturnsSetReport(t *testing.T) {
	e := newTestEcho(synthetic(), nil, nil)

	rec := call(e, http.MethodGet, "/api/features?set=NPRS-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out models.FeaturesResponse
	decode(t, rec, &out)
	assert.Equal(t, models.FeatureSetNPRS1, out.Set.Set)
	assert.Equal(t, models.FeatureSetNPRS1.Canonical(), out.Set.Features)
	assert.True(t, out.Set.Validation.Valid)
	assert.Equal(t, 24, out.Rows)
	assert.Equal(t, "2021-01-01", out.Cutoff)
	assert.NotNil(t, out.ScoreMean)
	assert.NotEmpty(t, out.RunID)
}

func TestFeatures_DefaultsToRF11(t *testing.T) {
	e := newTestEcho(synthetic(), nil, nil)

	rec := call(e, http.MethodGet, "/api/features", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out models.FeaturesResponse
	decode(t, rec, &out)
	assert.Equal(t, models.FeatureSetRF11, out.Set.Set)
}

func TestFeatures_UnknownSet(t *testing.T) {
	e := newTestEcho(synthetic(), nil, nil)
	rec := call(e, http.MethodGet, "/api/features?set=xgb", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_FEATURESET")
}

func TestEngineer_ReturnsRows(t *testing.T) {
	obs := &routeCounter{calls: map[string]int{}}
	e := newTestEcho(emptySource{}, nil, obs)

	rec := call(e, http.MethodPost, "/api/features/engineer", engineerBody(24, false))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out models.EngineerResponse
	decode(t, rec, &out)
	assert.Equal(t, 24, out.Rows)
	require.Len(t, out.Data, 24)
	require.Len(t, out.Dates, 24)
	assert.Equal(t, "2020-01-01", out.Dates[0])
	assert.Nil(t, out.Data[0][models.ColLVol], "first lag is missing")
	require.NotNil(t, out.Data[1][models.ColLVol])
	assert.InDelta(t, 0.2, *out.Data[1][models.ColLVol], 1e-12)
	assert.Contains(t, out.Sets, models.FeatureSetNPRS1)
	assert.NotContains(t, out.Sets, models.FeatureSetRF11)
	assert.Equal(t, 1, obs.calls["features_engineer"])
}

func TestEngineer_AbsentColumnsStayMissing(t *testing.T) {
	e := newTestEcho(emptySource{}, nil, nil)

	rows := make([]string, 0, 24)
	for i := 0; i < 24; i++ {
		d := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		rows = append(rows, fmt.Sprintf(`{"date":%q,"volatility":%g,"crisis_prob":%g}`,
			d.Format("2006-01-02"), 0.2+0.01*float64(i%5), 0.1*float64(i%9)))
	}
	body := `{"sets":["rf11"],"rows":[` + strings.Join(rows, ",") + `]}`

	rec := call(e, http.MethodPost, "/api/features/engineer", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out models.EngineerResponse
	decode(t, rec, &out)
	assert.NotContains(t, out.Columns, models.ColScore)
	assert.Nil(t, out.ScoreMean)

	rep, ok := out.Sets[models.FeatureSetRF11]
	require.True(t, ok)
	assert.Equal(t, []models.Column{
		models.ColLVol, models.ColLRegime, models.ColLAccel, models.ColLMSVolSafe, models.ColLVolStd,
	}, rep.Features)
	underivable := []models.Column{
		models.ColLInten, models.ColLWTIRet, models.ColLGPR,
		models.ColLNewsShk, models.ColLStateSSafe, models.ColLCrowdSafe,
	}
	assert.ElementsMatch(t, underivable, rep.Missing)
	assert.False(t, rep.Validation.Valid)
	assert.ElementsMatch(t, underivable, rep.Validation.Missing)
	for _, c := range underivable {
		assert.NotContains(t, rep.Validation.NaNCounts, c)
	}
}

func TestEngineer_RejectsBadInput(t *testing.T) {
	e := newTestEcho(emptySource{}, nil, nil)

	rec := call(e, http.MethodPost, "/api/features/engineer", engineerBody(6, true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")

	rec = call(e, http.MethodPost, "/api/features/engineer", `{"rows":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(e, http.MethodPost, "/api/features/engineer", `{"rows":[{"date":"yesterday"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_PANELDATE")

	rec = call(e, http.MethodPost, "/api/features/engineer", `{"sets":["xgb"],"rows":[{"date":"2021-01-01"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_FEATURESET")

	rec = call(e, http.MethodPost, "/api/features/engineer", `{"cutoff":"soon","rows":[{"date":"2021-01-01"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cutoff")
}

func TestEngineer_RateLimited(t *testing.T) {
	e := newTestEcho(emptySource{}, ratelimit.New(0.001, 1), nil)

	rec := call(e, http.MethodPost, "/api/features/engineer", engineerBody(3, false))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(e, http.MethodPost, "/api/features/engineer", engineerBody(3, false))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestForecast_Endpoint(t *testing.T) {
	e := newTestEcho(synthetic(), nil, nil)

	rec := call(e, http.MethodGet, "/api/forecast", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out models.ForecastBundle
	decode(t, rec, &out)
	require.NotNil(t, out.Direction)
	assert.Equal(t, models.DirectionUp, out.Direction.Direction)
	require.NotNil(t, out.Level)
	assert.InDelta(t, 0.27, out.Level.Forecast, 1e-12)
	assert.Empty(t, out.Errors)
}

func TestRegime_Endpoint(t *testing.T) {
	e := newTestEcho(synthetic(), nil, nil)

	rec := call(e, http.MethodGet, "/api/regime?n=6", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out models.RegimeReport
	decode(t, rec, &out)
	assert.Len(t, out.Points, 6)
	assert.Equal(t, out.Points[5].State, out.Current)

	rec = call(e, http.MethodGet, "/api/regime?n=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestMetrics_NoData(t *testing.T) {
	e := newTestEcho(emptySource{}, nil, nil)

	rec := call(e, http.MethodGet, "/api/metrics/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", usecase.ErrNoData), http.StatusNotFound},
		{fmt.Errorf("row 2: %w", usecase.ErrBadRow), http.StatusBadRequest},
		{fmt.Errorf("regime: %w", features.ErrMissingColumn), http.StatusUnprocessableEntity},
		{fmt.Errorf("score: %w", analytics.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapError(tc.err).Status, tc.err.Error())
	}
	assert.Equal(t, serviceRetryAfter, mapError(analytics.ErrServiceUnavailable).RetryAfter)
}

type queued struct{ types []string }

func (q *queued) Enqueue(_ context.Context, msgType string, _ interface{}) error {
	q.types = append(q.types, msgType)
	return nil
}

func TestRefresh_SyncAndQueued(t *testing.T) {
	e := newTestEcho(synthetic(), nil, nil)
	rec := call(e, http.MethodPost, "/api/pipeline/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s models.PipelineSummary
	decode(t, rec, &s)
	assert.Equal(t, 24, s.Rows)

	pipeline := usecase.NewFeaturePipeline(synthetic(), features.NewEngineer(features.DefaultTrainCutoff))
	q := &queued{}
	h := NewFeaturesEchoHandler(nil, pipeline, nil, usecase.NewInsightsUseCase(pipeline), nil, nil).WithRefreshQueue(q)
	e2 := echo.New()
	h.RegisterRoutes(e2)

	rec = call(e2, http.MethodPost, "/api/pipeline/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{usecase.RefreshJobType}, q.types)
}
