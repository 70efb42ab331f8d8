package service

import (
	"context"

	"OVIP/internal/domain/models"
)

// DirectionScorer returns the probability that volatility rises next period.
type DirectionScorer interface {
	ScoreDirection(ctx context.Context, features map[models.Column]float64) (float64, error)
}

// LevelScorer returns a point forecast of next-period volatility.
type LevelScorer interface {
	ScoreLevel(ctx context.Context, features map[models.Column]float64) (float64, error)
}
