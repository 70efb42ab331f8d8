package analytics

import (
	"math"
	"time"

	"OVIP/internal/domain/models"
)

// RegimeClassifier maps a crisis probability to a discrete regime state.
type RegimeClassifier struct {
	CrisisThreshold   float64
	ModerateThreshold float64
}

func NewRegimeClassifier() RegimeClassifier {
	return RegimeClassifier{CrisisThreshold: 0.5, ModerateThreshold: 0.2}
}

func (c RegimeClassifier) Classify(prob float64) models.RegimeState {
	switch {
	case prob >= c.CrisisThreshold:
		return models.RegimeCrisis
	case prob >= c.ModerateThreshold:
		return models.RegimeModerate
	default:
		return models.RegimeCalm
	}
}

// Points classifies every row with a crisis probability; missing rows are skipped.
func (c RegimeClassifier) Points(dates []time.Time, probs models.Series) []models.RegimePoint {
	out := make([]models.RegimePoint, 0, len(probs))
	for i, p := range probs {
		if math.IsNaN(p) {
			continue
		}
		var d time.Time
		if i < len(dates) {
			d = dates[i]
		}
		out = append(out, models.RegimePoint{Date: d, CrisisProb: p, State: c.Classify(p)})
	}
	return out
}

// DetectShifts returns the points whose state differs from the previous point's.
func (c RegimeClassifier) DetectShifts(points []models.RegimePoint) []models.RegimeShift {
	var out []models.RegimeShift
	for i := 1; i < len(points); i++ {
		if points[i].State != points[i-1].State {
			out = append(out, models.RegimeShift{
				Date: points[i].Date,
				From: points[i-1].State,
				To:   points[i].State,
			})
		}
	}
	return out
}

// DashboardRegime is the coarser headline label: above 0.5 CRISIS, above 0.1 MODERATE.
func DashboardRegime(prob float64) models.RegimeState {
	switch {
	case prob > 0.5:
		return models.RegimeCrisis
	case prob > 0.1:
		return models.RegimeModerate
	default:
		return models.RegimeCalm
	}
}
