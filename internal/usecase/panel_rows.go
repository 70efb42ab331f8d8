package usecase

import (
	"errors"
	"fmt"
	"sort"

	"OVIP/internal/domain/models"
	"OVIP/pkg/util"
)

// ErrBadRow marks client-supplied rows that cannot be turned into observations.
var ErrBadRow = errors.New("invalid panel row")

// ObservationFromRow parses the row's date and copies its values.
func ObservationFromRow(r models.PanelRow) (models.Observation, error) {
	d, ok := util.ParseTime(r.Date)
	if !ok {
		return models.Observation{}, fmt.Errorf("%w: date %q", ErrBadRow, r.Date)
	}
	return models.Observation{
		Date:       d,
		Volatility: r.Volatility,
		CrisisProb: r.CrisisProb,
		Intensity:  r.Intensity,
		Score:      r.Score,
		WTI:        r.WTI,
		GPR:        r.GPR,
		Extra:      r.Extra,
	}, nil
}

// PanelFromRows converts request rows into a date-sorted panel. Duplicate dates are rejected.
func PanelFromRows(rows []models.PanelRow) (*models.MarketPanel, error) {
	obs := make([]models.Observation, 0, len(rows))
	seen := make(map[int64]bool, len(rows))
	for i, r := range rows {
		o, err := ObservationFromRow(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		k := o.Date.UnixNano()
		if seen[k] {
			return nil, fmt.Errorf("row %d: %w: duplicate date %s", i, ErrBadRow, r.Date)
		}
		seen[k] = true
		obs = append(obs, o)
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	return models.PanelFromObservations(obs), nil
}
