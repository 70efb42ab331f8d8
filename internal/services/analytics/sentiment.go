package analytics

import (
	"OVIP/internal/domain/models"
	"OVIP/internal/services/features"
)

// DefaultMomentumWindow is the rolling window for smoothed sentiment.
const DefaultMomentumWindow = 3

// MomentumSeries is sentiment weighted by news intensity, smoothed, and differenced.
// It uses same-period values and is meant for monitoring, not as model input.
type MomentumSeries struct {
	Weighted models.Series `json:"weighted"`
	MA       models.Series `json:"ma"`
	Momentum models.Series `json:"momentum"`
}

// SentimentMomentum computes Score * log1p(Intensity), its rolling mean and the
// first difference of that mean.
func SentimentMomentum(score, intensity models.Series, window int) MomentumSeries {
	if window <= 0 {
		window = DefaultMomentumWindow
	}
	weighted := features.Mul(score, features.Log1p(intensity))
	ma := features.RollingMean(weighted, window)
	return MomentumSeries{
		Weighted: weighted,
		MA:       ma,
		Momentum: features.Diff(ma),
	}
}

// SentimentAlert grades the current news flow for the threat matrix.
func SentimentAlert(score, intensity float64) models.SentimentAlert {
	switch {
	case score < -0.10 && intensity > 200:
		return models.SentimentAlert{Level: models.AlertCritical, Score: 8.9, Message: "High volume negative news"}
	case score < -0.05:
		return models.SentimentAlert{Level: models.AlertWarning, Score: 6.5, Message: "Elevated negative sentiment"}
	default:
		return models.SentimentAlert{Level: models.AlertNormal, Score: 2.5, Message: "Baseline news flow"}
	}
}
