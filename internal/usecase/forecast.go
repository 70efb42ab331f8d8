package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"OVIP/internal/domain/models"
	domrepo "OVIP/internal/domain/repository"
	domsvc "OVIP/internal/domain/service"
	"OVIP/internal/services/analytics"
	applogger "OVIP/pkg/logger"
)

// ErrFeatureGate means a model abstained because its inputs were incomplete.
var ErrFeatureGate = errors.New("feature gate")

const (
	modelDirection = "direction"
	modelLevel     = "level"
)

// PipelineReader is the part of FeaturePipeline the read-side use cases need.
type PipelineReader interface {
	Latest(ctx context.Context) (*models.PipelineResult, error)
}

// ForecastUseCase scores the latest engineered row with both models.
type ForecastUseCase struct {
	pipeline  PipelineReader
	direction domsvc.DirectionScorer
	level     domsvc.LevelScorer
	metrics   domrepo.Metrics
	log       *applogger.Logger
	stdErr    float64
	timeout   time.Duration
}

func NewForecastUseCase(pipeline PipelineReader, direction domsvc.DirectionScorer, level domsvc.LevelScorer, levelStdErr float64, metrics domrepo.Metrics, l *applogger.Logger) *ForecastUseCase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ForecastUseCase{
		pipeline:  pipeline,
		direction: direction,
		level:     level,
		metrics:   metrics,
		log:       l,
		stdErr:    levelStdErr,
		timeout:   10 * time.Second,
	}
}

// Forecast runs both scorers concurrently. A model that abstains or fails is
// reported in Errors; the call itself only fails when there is no panel.
func (uc *ForecastUseCase) Forecast(ctx context.Context) (*models.ForecastBundle, error) {
	res, err := uc.pipeline.Latest(ctx)
	if err != nil {
		return nil, err
	}
	p := res.Panel
	n := p.Len()
	if n == 0 {
		return nil, ErrNoData
	}
	last := n - 1

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	out := &models.ForecastBundle{Errors: map[string]string{}}
	if p.HasDates() {
		out.Date = p.Dates[last]
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	fail := func(model string, err error) {
		mu.Lock()
		out.Errors[model] = err.Error()
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		feats, err := gate(res, models.FeatureSetNPRS1, last)
		if err != nil {
			fail(modelDirection, err)
			return
		}
		start := time.Now()
		prob, err := uc.direction.ScoreDirection(ctx, feats)
		uc.metrics.RecordScore(modelDirection, time.Since(start).Seconds(), err)
		if err != nil {
			fail(modelDirection, err)
			return
		}
		dir, conf := analytics.Direction(prob)
		f := &models.DirectionForecast{
			Model:         string(models.FeatureSetNPRS1),
			Date:          out.Date,
			Direction:     dir,
			ProbabilityUp: prob,
			Confidence:    conf,
			Features:      feats,
		}
		mu.Lock()
		out.Direction = f
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		feats, err := gate(res, models.FeatureSetRF11, last)
		if err != nil {
			fail(modelLevel, err)
			return
		}
		start := time.Now()
		v, err := uc.level.ScoreLevel(ctx, feats)
		uc.metrics.RecordScore(modelLevel, time.Since(start).Seconds(), err)
		if err != nil {
			fail(modelLevel, err)
			return
		}
		lo, hi := analytics.LevelRange(v, uc.stdErr)
		f := &models.LevelForecast{
			Model:           string(models.FeatureSetRF11),
			Date:            out.Date,
			Forecast:        v,
			RangeLow:        lo,
			RangeHigh:       hi,
			ConfidenceLevel: analytics.LevelConfidence(feats[models.ColLRegime]),
			Features:        feats,
		}
		mu.Lock()
		out.Level = f
		mu.Unlock()
	}()

	wg.Wait()
	if len(out.Errors) > 0 {
		uc.log.Warn("forecast incomplete", applogger.Any("errors", out.Errors))
	}
	if len(out.Errors) == 0 {
		out.Errors = nil
	}
	return out, nil
}

// gate returns row i of the set's features, or ErrFeatureGate when the set did
// not validate or any feature is missing on that row.
func gate(res *models.PipelineResult, set models.FeatureSet, i int) (map[models.Column]float64, error) {
	rep, ok := res.Summary.Sets[set]
	if !ok {
		return nil, fmt.Errorf("%w: %s was not evaluated", ErrFeatureGate, set)
	}
	if !rep.Validation.Valid {
		return nil, fmt.Errorf("%w: %s failed validation", ErrFeatureGate, set)
	}
	feats := make(map[models.Column]float64, len(rep.Features))
	var missing []string
	for _, c := range set.Canonical() {
		s, ok := res.Panel.Column(c)
		if !ok || math.IsNaN(s.At(i)) {
			missing = append(missing, string(c))
			continue
		}
		feats[c] = s.At(i)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s missing %v on latest row", ErrFeatureGate, set, missing)
	}
	return feats, nil
}
