package analytics

import (
	"context"
	"fmt"
	"math"

	"OVIP/internal/domain/models"
	domsvc "OVIP/internal/domain/service"
)

// HTTPLevelScorer calls the RF-11 regressor behind the model service.
type HTTPLevelScorer struct{ base *HTTPServiceBase }

func NewHTTPLevelScorer(base *HTTPServiceBase) *HTTPLevelScorer {
	return &HTTPLevelScorer{base: base}
}

type levelResp struct {
	Forecast float64 `json:"forecast"`
}

func (s *HTTPLevelScorer) ScoreLevel(ctx context.Context, features map[models.Column]float64) (float64, error) {
	var resp levelResp
	req := scoreReq{
		Model:    string(models.FeatureSetRF11),
		Order:    models.FeatureSetRF11.Canonical(),
		Features: features,
	}
	if err := s.base.PostJSONWithRetry(ctx, "/predict/level", req, &resp); err != nil {
		return 0, fmt.Errorf("score level: %w", err)
	}
	if math.IsNaN(resp.Forecast) || math.IsInf(resp.Forecast, 0) {
		return 0, fmt.Errorf("score level: non-finite forecast")
	}
	return resp.Forecast, nil
}

var _ domsvc.LevelScorer = (*HTTPLevelScorer)(nil)
