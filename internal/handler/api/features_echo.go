package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"OVIP/internal/domain/models"
	"OVIP/internal/service/ratelimit"
	"OVIP/internal/services/analytics"
	"OVIP/internal/services/features"
	"OVIP/internal/usecase"
	xhttp "OVIP/pkg/http"
	xlogger "OVIP/pkg/logger"
	"OVIP/pkg/queue"
)

const dateLayout = "2006-01-02"

// serviceRetryAfter is advertised while the model service breaker is open.
const serviceRetryAfter = 30 * time.Second

func init() {
	_ = xhttp.RegisterValidation("featureset", func(fl validator.FieldLevel) bool {
		_, err := models.ParseFeatureSet(fl.Field().String())
		return err == nil
	})
}

// RouteObserver receives per-route latency for the batch endpoints.
type RouteObserver interface {
	ObserveHTTP(route string, d time.Duration, status int)
}

// FeaturesEchoHandler serves the feature, forecast and dashboard endpoints.
type FeaturesEchoHandler struct {
	logger   *xlogger.Logger
	pipeline *usecase.FeaturePipeline
	forecast *usecase.ForecastUseCase
	insights *usecase.InsightsUseCase
	limiter  *ratelimit.Limiter
	observer RouteObserver
	refresh  queue.Enqueuer
}

func NewFeaturesEchoHandler(
	logger *xlogger.Logger,
	pipeline *usecase.FeaturePipeline,
	forecast *usecase.ForecastUseCase,
	insights *usecase.InsightsUseCase,
	limiter *ratelimit.Limiter,
	observer RouteObserver,
) *FeaturesEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &FeaturesEchoHandler{
		logger:   logger,
		pipeline: pipeline,
		forecast: forecast,
		insights: insights,
		limiter:  limiter,
		observer: observer,
	}
}

// WithRefreshQueue makes POST /api/pipeline/refresh asynchronous.
func (h *FeaturesEchoHandler) WithRefreshQueue(q queue.Enqueuer) *FeaturesEchoHandler {
	h.refresh = q
	return h
}

func (h *FeaturesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/features", h.Features)
	if h.limiter != nil {
		g.POST("/features/engineer", h.Engineer, h.limiter.Middleware())
	} else {
		g.POST("/features/engineer", h.Engineer)
	}
	g.GET("/forecast", h.Forecast)
	g.GET("/regime", h.Regime)
	g.GET("/metrics/latest", h.LatestMetrics)
	g.POST("/pipeline/refresh", h.Refresh)
}

func (h *FeaturesEchoHandler) Features(c echo.Context) error {
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	set, err := models.ParseFeatureSet(req.Set)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithParam("set", req.Set))
	}

	s, err := h.pipeline.Summary(c.Request().Context())
	if err != nil {
		return h.fail(c, "features", err)
	}
	rep, ok := s.Sets[set]
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("feature set was not evaluated").WithParam("set", set))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, models.FeaturesResponse{
		RunID:       s.RunID,
		GeneratedAt: s.GeneratedAt.Format(time.RFC3339),
		Cutoff:      s.Cutoff.Format(dateLayout),
		Rows:        s.Rows,
		Columns:     s.Columns,
		ScoreMean:   s.ScoreMean,
		Set:         rep,
	})
}

func (h *FeaturesEchoHandler) Engineer(c echo.Context) error {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		if h.observer != nil {
			h.observer.ObserveHTTP("features_engineer", time.Since(start), status)
		}
	}()

	req := &models.EngineerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		status = http.StatusBadRequest
		return xhttp.BadRequestResponse(c, verr)
	}

	var cutoff time.Time
	if req.Cutoff != "" {
		t, err := features.ParseCutoff(req.Cutoff)
		if err != nil {
			status = http.StatusBadRequest
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithParam("cutoff", req.Cutoff))
		}
		cutoff = t
	}
	sets := make([]models.FeatureSet, 0, len(req.Sets))
	for _, s := range req.Sets {
		set, err := models.ParseFeatureSet(s)
		if err != nil {
			status = http.StatusBadRequest
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithParam("set", s))
		}
		sets = append(sets, set)
	}

	panel, err := usecase.PanelFromRows(req.Rows)
	if err != nil {
		status = http.StatusBadRequest
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	res, err := h.pipeline.Engineer(c.Request().Context(), panel, cutoff, sets)
	if err != nil {
		appErr := mapError(err)
		status = appErr.Status
		return h.fail(c, "engineer", appErr)
	}
	return xhttp.SuccessResponse(c, engineerResponse(res))
}

func (h *FeaturesEchoHandler) Forecast(c echo.Context) error {
	out, err := h.forecast.Forecast(c.Request().Context())
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *FeaturesEchoHandler) Regime(c echo.Context) error {
	req := &models.RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.insights.Regime(c.Request().Context(), req.N)
	if err != nil {
		return h.fail(c, "regime", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, out)
}

func (h *FeaturesEchoHandler) LatestMetrics(c echo.Context) error {
	out, err := h.insights.LatestMetrics(c.Request().Context())
	if err != nil {
		return h.fail(c, "latest metrics", err)
	}
	return xhttp.SuccessResponse(c, out)
}

// Refresh reruns the pipeline, through the job queue when one is configured.
func (h *FeaturesEchoHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	if h.refresh != nil {
		if err := usecase.RequestRefresh(ctx, h.refresh, "api"); err != nil {
			return h.fail(c, "refresh", err)
		}
		return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "queued"})
	}
	if err := h.pipeline.Invalidate(ctx); err != nil {
		h.logger.Warn("invalidate before refresh", xlogger.Error(err))
	}
	res, err := h.pipeline.Run(ctx)
	if err != nil {
		return h.fail(c, "refresh", err)
	}
	return xhttp.SuccessResponse(c, res.Summary)
}

func (h *FeaturesEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := mapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Warn(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// mapError turns use case errors into transport errors.
func mapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrNoData):
		return xhttp.NotFoundError("no panel data available").WithError(err)
	case errors.Is(err, usecase.ErrBadRow):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, features.ErrMissingColumn):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, analytics.ErrServiceUnavailable):
		return xhttp.ServiceUnavailableError("model service unavailable").WithError(err).WithRetryAfter(serviceRetryAfter)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

func engineerResponse(res *models.PipelineResult) models.EngineerResponse {
	p := res.Panel
	all := p.Columns()
	cols := make([]models.Column, 0, len(all))
	for _, c := range all {
		if c != models.ColDate {
			cols = append(cols, c)
		}
	}

	n := p.Len()
	out := models.EngineerResponse{
		Rows:      n,
		Columns:   all,
		ScoreMean: res.Summary.ScoreMean,
		Data:      make([]map[models.Column]*float64, n),
		Sets:      res.Summary.Sets,
	}
	for i := 0; i < n; i++ {
		out.Data[i] = p.Row(i, cols)
	}
	if p.HasDates() {
		out.Dates = make([]string, n)
		for i, d := range p.Dates {
			out.Dates[i] = d.Format(dateLayout)
		}
	}
	return out
}
