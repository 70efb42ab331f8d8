package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"OVIP/internal/domain/models"
	domrepo "OVIP/internal/domain/repository"
	pkgch "OVIP/pkg/clickhouse"
	applogger "OVIP/pkg/logger"
)

// CHPanelStore implements PanelStore and FeatureStore backed by ClickHouse.
type CHPanelStore struct {
	client *pkgch.Client
	db     *sql.DB
	schema string
	l      *applogger.Logger
}

func NewCHPanelStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHPanelStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHPanelStore{client: ch, db: ch.DB(), schema: database, l: l}
}

func (s *CHPanelStore) Name() string { return "clickhouse:" + s.schema + ".market_panel" }

func (s *CHPanelStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, Schema(s.schema))
}

// Load reads the deduplicated panel in date order.
func (s *CHPanelStore) Load(ctx context.Context) (*models.MarketPanel, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT date, volatility, crisis_prob, intensity, score, wti, gpr, extra
        FROM %s.market_panel FINAL
        ORDER BY date ASC
    `, s.schema)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse load_panel query error", applogger.Error(err))
		return nil, fmt.Errorf("load panel: %w", err)
	}
	defer rows.Close()

	obs := make([]models.Observation, 0, 256)
	for rows.Next() {
		var (
			o     models.Observation
			vals  [6]sql.NullFloat64
			extra map[string]float64
		)
		if err := rows.Scan(&o.Date, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &extra); err != nil {
			return nil, fmt.Errorf("scan panel row: %w", err)
		}
		o.Volatility = fromNull(vals[0])
		o.CrisisProb = fromNull(vals[1])
		o.Intensity = fromNull(vals[2])
		o.Score = fromNull(vals[3])
		o.WTI = fromNull(vals[4])
		o.GPR = fromNull(vals[5])
		if len(extra) > 0 {
			o.Extra = extra
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	p := panelFromRows(obs)
	s.l.Info("clickhouse load_panel ok",
		applogger.Int("rows", p.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return p, nil
}

// AppendObservations upserts rows; a later insert for the same date replaces the earlier one.
func (s *CHPanelStore) AppendObservations(ctx context.Context, obs []models.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s.market_panel (date, volatility, crisis_prob, intensity, score, wti, gpr, extra)", s.schema)
	err := pkgch.Batch(ctx, s.db, q, func(stmt *sql.Stmt) error {
		for _, o := range obs {
			extra := o.Extra
			if extra == nil {
				extra = map[string]float64{}
			}
			if _, err := stmt.ExecContext(ctx,
				o.Date,
				toNull(o.Volatility),
				toNull(o.CrisisProb),
				toNull(o.Intensity),
				toNull(o.Score),
				toNull(o.WTI),
				toNull(o.GPR),
				extra,
			); err != nil {
				return fmt.Errorf("append %s: %w", o.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		s.l.Error("clickhouse append_observations error", applogger.Int("rows", len(obs)), applogger.Error(err))
	}
	return err
}

// SaveFeatures writes cols in long format (run_id, date, feature, value). Missing values are skipped.
func (s *CHPanelStore) SaveFeatures(ctx context.Context, runID string, panel *models.EngineeredPanel, cols []models.Column) error {
	if !panel.HasDates() {
		return fmt.Errorf("save features: panel has no dates")
	}
	recs := featureRecords(panel, cols)
	if len(recs) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s.engineered_features (run_id, date, feature, value)", s.schema)
	err := pkgch.Batch(ctx, s.db, q, func(stmt *sql.Stmt) error {
		for _, r := range recs {
			if _, err := stmt.ExecContext(ctx, runID, r.date, string(r.feature), r.value); err != nil {
				return fmt.Errorf("save feature %s: %w", r.feature, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.l.Info("clickhouse save_features ok",
		applogger.String("run_id", runID),
		applogger.Int("values", len(recs)),
	)
	return nil
}

func (s *CHPanelStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

// Close is a no-op; the client is owned by the caller.
func (s *CHPanelStore) Close() error { return nil }

type featureRecord struct {
	date    time.Time
	feature models.Column
	value   float64
}

func featureRecords(p *models.EngineeredPanel, cols []models.Column) []featureRecord {
	out := make([]featureRecord, 0, p.Len()*len(cols))
	for _, c := range cols {
		if c == models.ColDate {
			continue
		}
		s, ok := p.Column(c)
		if !ok {
			continue
		}
		for i, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out = append(out, featureRecord{date: p.Dates[i], feature: c, value: v})
		}
	}
	return out
}

// panelFromRows guards against a table whose ORDER BY was changed.
func panelFromRows(obs []models.Observation) *models.MarketPanel {
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	return models.PanelFromObservations(obs)
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil || math.IsNaN(*v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var (
	_ domrepo.PanelStore   = (*CHPanelStore)(nil)
	_ domrepo.FeatureStore = (*CHPanelStore)(nil)
)
