package analytics

import (
	"math"

	"OVIP/internal/domain/models"
)

// LevelZ is the two-sided 95% normal quantile used for level ranges.
const LevelZ = 1.96

// Direction maps P(up) to a call and its confidence max(p, 1-p).
func Direction(probUp float64) (models.Direction, float64) {
	if math.IsNaN(probUp) {
		return models.DirectionUnknown, 0
	}
	if probUp > 0.5 {
		return models.DirectionUp, probUp
	}
	return models.DirectionDown, 1 - probUp
}

// LevelRange is forecast ± LevelZ * stdErr with the lower bound clipped at zero.
func LevelRange(forecast, stdErr float64) (float64, float64) {
	return math.Max(0, forecast-LevelZ*stdErr), forecast + LevelZ*stdErr
}

// LevelConfidence grades a level forecast by how clear the lagged regime signal is.
func LevelConfidence(lRegime float64) models.ConfidenceLevel {
	switch {
	case math.IsNaN(lRegime):
		return models.ConfidenceLow
	case lRegime < 0.3 || lRegime > 0.7:
		return models.ConfidenceHigh
	case lRegime >= 0.4 && lRegime <= 0.6:
		return models.ConfidenceLow
	default:
		return models.ConfidenceModerate
	}
}
