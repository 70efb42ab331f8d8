package features

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"OVIP/internal/domain/models"
	"OVIP/pkg/logger"
	"OVIP/pkg/util"
)

// ErrMissingColumn is returned when an operation's required input column is absent.
var ErrMissingColumn = errors.New("required column missing")

// ErrNoTrainingRows is returned by Fit when no lagged Score falls before the cutoff.
var ErrNoTrainingRows = errors.New("no training rows before cutoff")

// DefaultTrainCutoff separates training rows (strictly before) from test rows.
var DefaultTrainCutoff = time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)

// Window sizes for the lagged-volatility statistics.
const (
	VolStdWindow     = 6
	VolShortMAWindow = 3
	VolLongMAWindow  = 12
)

// RegimeThreshold splits L_Regime into the binary Regime_Label.
const RegimeThreshold = 0.5

// CenteringMode controls when the sentiment-centering mean is computed.
type CenteringMode int

const (
	// CenteringRefit recomputes the training mean on every CreateAllFeatures call.
	CenteringRefit CenteringMode = iota
	// CenteringFitOnce freezes the mean on the first call (or Fit) and reapplies it.
	CenteringFitOnce
)

func (m CenteringMode) String() string {
	if m == CenteringFitOnce {
		return "fit_once"
	}
	return "refit"
}

func ParseCenteringMode(s string) (CenteringMode, error) {
	switch s {
	case "", "refit":
		return CenteringRefit, nil
	case "fit_once":
		return CenteringFitOnce, nil
	}
	return CenteringRefit, fmt.Errorf("unknown centering mode %q", s)
}

// ParseCutoff parses a cutoff date; an empty string yields DefaultTrainCutoff.
func ParseCutoff(s string) (time.Time, error) {
	if s == "" {
		return DefaultTrainCutoff, nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("parse cutoff: unrecognised date %q", s)
	}
	return t, nil
}

// Engineer builds leakage-safe features from a market panel. It is safe for
// concurrent use; the only shared state is the fitted TrainStats.
type Engineer struct {
	cutoff time.Time
	mode   CenteringMode
	log    *logger.Logger

	mu    sync.Mutex
	stats models.TrainStats
}

type Option func(*Engineer)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engineer) {
		if l != nil {
			e.log = l
		}
	}
}

func WithCenteringMode(m CenteringMode) Option {
	return func(e *Engineer) { e.mode = m }
}

func NewEngineer(cutoff time.Time, opts ...Option) *Engineer {
	if cutoff.IsZero() {
		cutoff = DefaultTrainCutoff
	}
	e := &Engineer{
		cutoff: cutoff,
		log:    logger.Nop(),
		stats:  models.TrainStats{ScoreMean: math.NaN()},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engineer) Cutoff() time.Time { return e.cutoff }

func (e *Engineer) Mode() CenteringMode { return e.mode }

// TrainStats returns a snapshot of the fitted statistics.
func (e *Engineer) TrainStats() models.TrainStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Reset clears fitted statistics so the next call refits.
func (e *Engineer) Reset() {
	e.mu.Lock()
	e.stats = models.TrainStats{ScoreMean: math.NaN()}
	e.mu.Unlock()
}

// Fit computes the training-only statistics from p and freezes them for
// CenteringFitOnce. In refit mode they are overwritten by the next call.
// A panel without training sentiment leaves the engineer unfitted.
func (e *Engineer) Fit(p *models.MarketPanel) error {
	if p.Score == nil {
		e.log.Error("cannot fit centering mean", logger.String("column", string(models.ColScore)))
		return fmt.Errorf("fit: %w: %s", ErrMissingColumn, models.ColScore)
	}
	stats := e.trainStats(p.Dates, Shift(p.Score))

	e.mu.Lock()
	e.stats = stats
	e.mu.Unlock()

	if !stats.Fitted {
		e.log.Error("cannot fit centering mean",
			logger.Time("cutoff", e.cutoff),
			logger.Int("train_rows", stats.TrainRows),
		)
		return fmt.Errorf("fit: %w", ErrNoTrainingRows)
	}

	e.log.Info("centering statistics fitted",
		logger.Float64("score_mean", stats.ScoreMean),
		logger.Int("train_rows", stats.TrainRows),
	)
	return nil
}

// CreateAllFeatures engineers every derivable feature on a private copy of p.
// Stages whose inputs are absent are skipped.
func (e *Engineer) CreateAllFeatures(p *models.MarketPanel) *models.EngineeredPanel {
	out := models.NewEngineeredPanel(p)
	if !datesSorted(p.Dates) {
		e.log.Warn("panel dates are not sorted; lags follow row order")
	}

	e.addBasicLags(out)
	e.addRegimeFeatures(out)
	e.addVolatilityDynamics(out)
	e.addSentimentCentering(out)
	e.addInteractions(out)

	rows, cols := out.Shape()
	e.log.Info("features created", logger.Int("rows", rows), logger.Int("columns", cols))
	return out
}

// CreateBinaryTarget adds Vol_Direction: 1 when volatility rose from the previous
// period, 0 otherwise, missing at row 0 or where either value is missing.
func (e *Engineer) CreateBinaryTarget(p *models.EngineeredPanel) error {
	vol := p.Volatility
	if vol == nil {
		e.log.Error("cannot create target", logger.String("missing", string(models.ColVolatility)))
		return fmt.Errorf("create target: %w: %s", ErrMissingColumn, models.ColVolatility)
	}

	target := models.NewSeries(len(vol))
	for t := 1; t < len(vol); t++ {
		cur, prev := vol[t], vol[t-1]
		if math.IsNaN(cur) || math.IsNaN(prev) {
			continue
		}
		if cur > prev {
			target[t] = 1
		} else {
			target[t] = 0
		}
	}
	p.VolDirection = target
	return nil
}

// NPRS1Features returns the NPRS-1 direction model inputs present in p.
func (e *Engineer) NPRS1Features(p *models.EngineeredPanel) []models.Column {
	return e.selectLogged(p, models.FeatureSetNPRS1)
}

// RF11Features returns the RF-11 level model inputs present in p.
func (e *Engineer) RF11Features(p *models.EngineeredPanel) []models.Column {
	return e.selectLogged(p, models.FeatureSetRF11)
}

// FeatureSet dispatches to the selector for a named set.
func (e *Engineer) FeatureSet(p *models.EngineeredPanel, set models.FeatureSet) ([]models.Column, error) {
	switch set {
	case models.FeatureSetNPRS1:
		return e.NPRS1Features(p), nil
	case models.FeatureSetRF11:
		return e.RF11Features(p), nil
	}
	return nil, fmt.Errorf("unknown feature set %q", set)
}

func (e *Engineer) selectLogged(p *models.EngineeredPanel, set models.FeatureSet) []models.Column {
	present, missing := SelectFeatures(p, set)
	if len(missing) > 0 {
		e.log.Warn("features missing from panel",
			logger.String("set", string(set)),
			logger.Strings("missing", columnNames(missing)),
		)
	}
	return present
}

// SelectFeatures splits a set's canonical list into present and missing columns,
// both in canonical order.
func SelectFeatures(p *models.EngineeredPanel, set models.FeatureSet) (present, missing []models.Column) {
	present = []models.Column{}
	for _, c := range set.Canonical() {
		if p.HasColumn(c) {
			present = append(present, c)
		} else {
			missing = append(missing, c)
		}
	}
	return present, missing
}

// ValidateFeatures checks that every listed column exists and that none has a
// missing value in the test partition (Date >= cutoff, or the second half of the
// rows when the panel has no dates).
func (e *Engineer) ValidateFeatures(p *models.EngineeredPanel, cols []models.Column) models.ValidationReport {
	report := models.ValidationReport{Valid: true}

	for _, c := range cols {
		if !p.HasColumn(c) {
			report.Missing = append(report.Missing, c)
		}
	}
	if len(report.Missing) > 0 {
		report.Valid = false
		e.log.Error("validation failed: missing features", logger.Strings("missing", columnNames(report.Missing)))
		return report
	}

	rows, partition := e.testRows(p)
	report.TestRows = len(rows)
	report.Partition = partition
	if len(rows) == 0 {
		e.log.Warn("validation: empty test window", logger.Time("cutoff", e.cutoff))
	}

	for _, c := range cols {
		s, ok := p.Column(c)
		if !ok {
			continue // Date
		}
		n := 0
		for _, i := range rows {
			if math.IsNaN(s.At(i)) {
				n++
			}
		}
		if n > 0 {
			if report.NaNCounts == nil {
				report.NaNCounts = make(map[models.Column]int)
			}
			report.NaNCounts[c] = n
		}
	}

	if len(report.NaNCounts) > 0 {
		report.Valid = false
		e.log.Warn("validation failed: missing values in test window",
			logger.Any("nan_counts", report.NaNCounts),
			logger.Int("test_rows", report.TestRows),
		)
		return report
	}

	e.log.Debug("features validated", logger.Int("features", len(cols)), logger.Int("test_rows", report.TestRows))
	return report
}

func (e *Engineer) testRows(p *models.EngineeredPanel) ([]int, string) {
	n := p.Len()
	var rows []int
	if p.HasDates() {
		for i, d := range p.Dates {
			if !d.Before(e.cutoff) {
				rows = append(rows, i)
			}
		}
		return rows, "date"
	}
	for i := n / 2; i < n; i++ {
		rows = append(rows, i)
	}
	return rows, "positional"
}

func (e *Engineer) trainRows(dates []time.Time, n int) []int {
	var rows []int
	if dates != nil {
		for i, d := range dates {
			if d.Before(e.cutoff) {
				rows = append(rows, i)
			}
		}
		return rows
	}
	for i := 0; i < n/2; i++ {
		rows = append(rows, i)
	}
	return rows
}

func (e *Engineer) trainStats(dates []time.Time, lagged models.Series) models.TrainStats {
	rows := e.trainRows(dates, len(lagged))
	mean, _ := MeanSkipNaN(lagged, rows)
	return models.TrainStats{ScoreMean: mean, Fitted: !math.IsNaN(mean), TrainRows: len(rows)}
}

func datesSorted(dates []time.Time) bool {
	for i := 1; i < len(dates); i++ {
		if dates[i].Before(dates[i-1]) {
			return false
		}
	}
	return true
}

func columnNames(cols []models.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = string(c)
	}
	return out
}
