package features

import (
	"math"
	"time"

	"OVIP/internal/domain/models"
	"OVIP/pkg/logger"
)

func (e *Engineer) addBasicLags(p *models.EngineeredPanel) {
	if p.Volatility != nil {
		p.LVol = Shift(p.Volatility)
	}
	if p.CrisisProb != nil {
		p.LRegime = Shift(p.CrisisProb)
	}
	if p.Intensity != nil {
		p.LInten = Shift(p.Intensity)
	}
	// The contemporaneous return is never exposed; only its lag is.
	if p.WTI != nil {
		p.LWTIRet = Shift(PctChange(p.WTI))
	}
	if p.GPR != nil {
		p.LGPR = Shift(p.GPR)
	}
}

func (e *Engineer) addRegimeFeatures(p *models.EngineeredPanel) {
	if p.LRegime == nil {
		return
	}

	// NaN compares false, so rows without a lagged probability land in label 0.
	label := make(models.Series, len(p.LRegime))
	for i, v := range p.LRegime {
		if v > RegimeThreshold {
			label[i] = 1
		}
	}
	p.RegimeLabel = label

	if p.Volatility != nil {
		p.LMSVolSafe = GroupedExpandingStdBefore(p.Volatility, label)
	}
}

func (e *Engineer) addVolatilityDynamics(p *models.EngineeredPanel) {
	if p.LVol == nil {
		return
	}
	p.LAccel = Diff(p.LVol)
	p.LVolStd = RollingStd(p.LVol, VolStdWindow)
	p.LVolMA3 = RollingMean(p.LVol, VolShortMAWindow)
	p.LVolMA12 = RollingMean(p.LVol, VolLongMAWindow)
}

func (e *Engineer) addSentimentCentering(p *models.EngineeredPanel) {
	if p.Score == nil {
		return
	}
	lagged := Shift(p.Score)
	p.LNewsShk = Diff(lagged)

	mean := e.centeringMean(p.Dates, lagged)
	if math.IsNaN(mean) {
		e.log.Warn("no training sentiment; Score_Centered is missing", logger.Time("cutoff", e.cutoff))
	}

	centered := make(models.Series, len(lagged))
	for i, v := range lagged {
		centered[i] = v - mean
	}
	p.ScoreCentered = centered
}

// centeringMean returns the training-only mean of lagged Score according to the
// engineer's centering mode.
func (e *Engineer) centeringMean(dates []time.Time, lagged models.Series) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == CenteringFitOnce && e.stats.Fitted {
		return e.stats.ScoreMean
	}
	e.stats = e.trainStats(dates, lagged)
	return e.stats.ScoreMean
}

func (e *Engineer) addInteractions(p *models.EngineeredPanel) {
	if p.ScoreCentered == nil {
		return
	}
	if p.LRegime != nil {
		p.LStateSSafe = Mul(p.LRegime, p.ScoreCentered)
	}
	if p.LInten != nil {
		p.LCrowdSafe = Mul(p.ScoreCentered, Log1p(p.LInten))
	}
}
