package analytics

import (
	"context"
	"fmt"

	"OVIP/internal/domain/models"
	domsvc "OVIP/internal/domain/service"
)

// HTTPDirectionScorer calls the NPRS-1 classifier behind the model service.
type HTTPDirectionScorer struct{ base *HTTPServiceBase }

func NewHTTPDirectionScorer(base *HTTPServiceBase) *HTTPDirectionScorer {
	return &HTTPDirectionScorer{base: base}
}

type scoreReq struct {
	Model    string                    `json:"model"`
	Order    []models.Column           `json:"feature_order"`
	Features map[models.Column]float64 `json:"features"`
}

type directionResp struct {
	ProbabilityUp float64 `json:"probability_up"`
}

func (s *HTTPDirectionScorer) ScoreDirection(ctx context.Context, features map[models.Column]float64) (float64, error) {
	var resp directionResp
	req := scoreReq{
		Model:    string(models.FeatureSetNPRS1),
		Order:    models.FeatureSetNPRS1.Canonical(),
		Features: features,
	}
	if err := s.base.PostJSONWithRetry(ctx, "/predict/direction", req, &resp); err != nil {
		return 0, fmt.Errorf("score direction: %w", err)
	}
	if resp.ProbabilityUp < 0 || resp.ProbabilityUp > 1 {
		return 0, fmt.Errorf("score direction: probability %v out of range", resp.ProbabilityUp)
	}
	return resp.ProbabilityUp, nil
}

var _ domsvc.DirectionScorer = (*HTTPDirectionScorer)(nil)
