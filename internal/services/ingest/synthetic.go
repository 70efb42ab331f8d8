package ingest

import (
	"context"
	"math/rand"
	"time"

	"OVIP/internal/domain/models"
	"OVIP/pkg/util"
)

// Synthetic builds a deterministic monthly panel starting at start's month:
// Volatility ~ U(0.1, 0.5), Crisis_Prob ~ U(0, 1), Score ~ U(-0.5, 0.5),
// Intensity ~ U(100, 300), gpr ~ U(100, 200) and a WTI random walk around 60.
func Synthetic(start time.Time, months int, seed int64) *models.MarketPanel {
	if months < 0 {
		months = 0
	}
	rng := rand.New(rand.NewSource(seed))
	first := util.MonthStart(start)

	p := &models.MarketPanel{
		Dates:      make([]time.Time, months),
		Volatility: make(models.Series, months),
		CrisisProb: make(models.Series, months),
		Intensity:  make(models.Series, months),
		Score:      make(models.Series, months),
		WTI:        make(models.Series, months),
		GPR:        make(models.Series, months),
	}
	price := 60.0
	for i := 0; i < months; i++ {
		p.Dates[i] = first.AddDate(0, i, 0)
		p.Volatility[i] = 0.1 + 0.4*rng.Float64()
		p.CrisisProb[i] = rng.Float64()
		p.Score[i] = rng.Float64() - 0.5
		p.Intensity[i] = 100 + 200*rng.Float64()
		p.GPR[i] = 100 + 100*rng.Float64()
		price *= 1 + 0.08*(rng.Float64()-0.5)
		p.WTI[i] = price
	}
	return p
}

// SyntheticSource serves a fixed synthetic panel; used for demos and the CLI.
type SyntheticSource struct {
	Start  time.Time
	Months int
	Seed   int64
}

func (s SyntheticSource) Name() string { return "synthetic" }

func (s SyntheticSource) Load(ctx context.Context) (*models.MarketPanel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Synthetic(s.Start, s.Months, s.Seed), nil
}
