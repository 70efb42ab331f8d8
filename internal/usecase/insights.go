package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"OVIP/internal/domain/models"
	"OVIP/internal/services/analytics"
	"OVIP/internal/services/features"
)

// InsightsUseCase derives dashboard views from the latest engineered panel.
type InsightsUseCase struct {
	pipeline   PipelineReader
	classifier analytics.RegimeClassifier
}

func NewInsightsUseCase(pipeline PipelineReader) *InsightsUseCase {
	return &InsightsUseCase{pipeline: pipeline, classifier: analytics.NewRegimeClassifier()}
}

// Regime classifies the last n rows and lists the state changes between them.
func (uc *InsightsUseCase) Regime(ctx context.Context, n int) (*models.RegimeReport, error) {
	res, err := uc.pipeline.Latest(ctx)
	if err != nil {
		return nil, err
	}
	p := res.Panel
	if p.Len() == 0 {
		return nil, ErrNoData
	}
	if p.CrisisProb == nil {
		return nil, fmt.Errorf("regime: %w: %s", features.ErrMissingColumn, models.ColCrisisProb)
	}
	from := 0
	if n > 0 && n < p.Len() {
		from = p.Len() - n
	}
	points := uc.classifier.Points(tailDates(p.Dates, from), p.CrisisProb[from:])
	out := &models.RegimeReport{
		Current: models.RegimeCalm,
		Points:  points,
		Shifts:  uc.classifier.DetectShifts(points),
	}
	if len(points) > 0 {
		out.Current = points[len(points)-1].State
	}
	return out, nil
}

// LatestMetrics summarises the last row against the one before it.
func (uc *InsightsUseCase) LatestMetrics(ctx context.Context) (*models.LatestMetrics, error) {
	res, err := uc.pipeline.Latest(ctx)
	if err != nil {
		return nil, err
	}
	p := res.Panel
	n := p.Len()
	if n == 0 {
		return nil, ErrNoData
	}
	i := n - 1

	m := &models.LatestMetrics{
		Price:      p.WTI.Nullable(i),
		Volatility: p.Volatility.Nullable(i),
		CrisisProb: p.CrisisProb.Nullable(i),
		Sentiment:  p.Score.Nullable(i),
		Regime:     models.RegimeCalm,
	}
	if p.HasDates() {
		m.Date = p.Dates[i]
	}
	if i > 0 {
		cur, prev := p.WTI.At(i), p.WTI.At(i-1)
		if !math.IsNaN(cur) && !math.IsNaN(prev) && prev != 0 {
			chg := (cur - prev) / prev * 100
			m.PriceChange = &chg
		}
	}
	if m.CrisisProb != nil {
		m.Regime = analytics.DashboardRegime(*m.CrisisProb)
	}
	if p.Score != nil && p.Intensity != nil {
		mom := analytics.SentimentMomentum(p.Score, p.Intensity, analytics.DefaultMomentumWindow)
		m.Momentum = mom.Momentum.Nullable(i)

		score, inten := p.Score.At(i), p.Intensity.At(i)
		if !math.IsNaN(score) && !math.IsNaN(inten) {
			alert := analytics.SentimentAlert(score, inten)
			m.Alert = &alert
		}
	}
	return m, nil
}

func tailDates(d []time.Time, from int) []time.Time {
	if d == nil {
		return nil
	}
	return d[from:]
}
