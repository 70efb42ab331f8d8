package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"OVIP/internal/domain/models"
	domrepo "OVIP/internal/domain/repository"
	"OVIP/internal/services/features"
	"OVIP/pkg/cache"
	applogger "OVIP/pkg/logger"
)

// ErrNoData is returned when the source yields an empty panel.
var ErrNoData = errors.New("panel is empty")

// FeaturePipeline loads the market panel, engineers and validates both feature
// sets, and keeps the latest result in memory. Persistence, publishing and the
// shared summary cache are optional.
type FeaturePipeline struct {
	source  domrepo.PanelSource
	eng     *features.Engineer
	cache   cache.Service
	store   domrepo.FeatureStore
	pub     domrepo.FeaturePublisher
	metrics domrepo.Metrics
	log     *applogger.Logger
	ttl     time.Duration

	runMu    sync.Mutex
	mu       sync.RWMutex
	latest   *models.PipelineResult
	loadedAt time.Time
}

type PipelineOption func(*FeaturePipeline)

func WithSummaryCache(c cache.Service) PipelineOption {
	return func(p *FeaturePipeline) { p.cache = c }
}

func WithFeatureStore(s domrepo.FeatureStore) PipelineOption {
	return func(p *FeaturePipeline) { p.store = s }
}

func WithPublisher(pub domrepo.FeaturePublisher) PipelineOption {
	return func(p *FeaturePipeline) { p.pub = pub }
}

func WithMetrics(m domrepo.Metrics) PipelineOption {
	return func(p *FeaturePipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *FeaturePipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithCacheTTL bounds how long a result is served before the next Latest reruns.
func WithCacheTTL(d time.Duration) PipelineOption {
	return func(p *FeaturePipeline) {
		if d > 0 {
			p.ttl = d
		}
	}
}

func NewFeaturePipeline(source domrepo.PanelSource, eng *features.Engineer, opts ...PipelineOption) *FeaturePipeline {
	p := &FeaturePipeline{
		source:  source,
		eng:     eng,
		metrics: nopMetrics{},
		log:     applogger.Nop(),
		ttl:     time.Hour,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *FeaturePipeline) summaryKey() string {
	return cache.GenerateKey("pipeline", p.source.Name(), "summary")
}

func (p *FeaturePipeline) lockKey() string {
	return cache.GenerateKey("lock", "pipeline", p.source.Name())
}

// Run executes the full pipeline against the configured source.
func (p *FeaturePipeline) Run(ctx context.Context) (*models.PipelineResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()
	res, err := p.run(ctx)
	p.metrics.RecordPipelineRun(p.source.Name(), time.Since(start), err)
	if err != nil {
		p.log.Error("pipeline run failed", applogger.String("source", p.source.Name()), applogger.Error(err))
		return nil, err
	}

	p.mu.Lock()
	p.latest = res
	p.loadedAt = time.Now()
	p.mu.Unlock()

	p.log.Info("pipeline run complete",
		applogger.String("run_id", res.Summary.RunID),
		applogger.Int("rows", res.Summary.Rows),
		applogger.Int("columns", res.Summary.Columns),
		applogger.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (p *FeaturePipeline) run(ctx context.Context) (*models.PipelineResult, error) {
	panel, err := p.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load panel from %s: %w", p.source.Name(), err)
	}
	if panel.Len() == 0 {
		return nil, fmt.Errorf("load panel from %s: %w", p.source.Name(), ErrNoData)
	}

	res := process(p.eng, panel, models.AllFeatureSets())
	res.Summary.RunID = uuid.NewString()
	res.Summary.Source = p.source.Name()
	for set, rep := range res.Summary.Sets {
		p.metrics.RecordValidation(set, rep.Validation.Valid)
	}

	// only the lock holder writes side effects; others still serve their own result
	owner := true
	if p.cache != nil {
		ok, lerr := p.cache.TryLock(ctx, p.lockKey(), time.Minute)
		if lerr != nil {
			p.log.Warn("pipeline lock unavailable", applogger.Error(lerr))
		}
		owner = ok || lerr != nil
		if ok {
			defer func() { _ = p.cache.Unlock(context.Background(), p.lockKey()) }()
		}
	}
	if owner {
		p.sideEffects(ctx, res)
	}
	return res, nil
}

func (p *FeaturePipeline) sideEffects(ctx context.Context, res *models.PipelineResult) {
	if p.store != nil {
		cols := persistedColumns(res)
		if err := p.store.SaveFeatures(ctx, res.Summary.RunID, res.Panel, cols); err != nil {
			p.log.Warn("persist features failed", applogger.String("run_id", res.Summary.RunID), applogger.Error(err))
		}
	}
	if p.pub != nil {
		if err := p.pub.PublishSnapshot(ctx, &res.Summary); err != nil {
			p.log.Warn("publish snapshot failed", applogger.String("run_id", res.Summary.RunID), applogger.Error(err))
		}
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, p.summaryKey(), res.Summary, p.ttl); err != nil {
			p.log.Warn("cache summary failed", applogger.Error(err))
		}
	}
}

// Latest returns the in-memory result while it is fresh, otherwise reruns.
func (p *FeaturePipeline) Latest(ctx context.Context) (*models.PipelineResult, error) {
	p.mu.RLock()
	res, at := p.latest, p.loadedAt
	p.mu.RUnlock()
	if res != nil && time.Since(at) < p.ttl {
		return res, nil
	}
	return p.Run(ctx)
}

// Summary prefers the shared cache so replicas report the same run.
func (p *FeaturePipeline) Summary(ctx context.Context) (*models.PipelineSummary, error) {
	if p.cache != nil {
		var s models.PipelineSummary
		if err := p.cache.Get(ctx, p.summaryKey(), &s); err == nil {
			return &s, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			p.log.Warn("read cached summary", applogger.Error(err))
		}
	}
	res, err := p.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return &res.Summary, nil
}

// Invalidate drops the in-memory result and the shared summary.
func (p *FeaturePipeline) Invalidate(ctx context.Context) error {
	p.mu.Lock()
	p.latest = nil
	p.mu.Unlock()
	if p.cache == nil {
		return nil
	}
	if err := p.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKey("pipeline", p.source.Name()))); err != nil {
		return fmt.Errorf("invalidate summary: %w", err)
	}
	return nil
}

// Engineer runs the pipeline on a caller-supplied panel with its own engineer,
// so request data never touches the fitted state of the shared one.
func (p *FeaturePipeline) Engineer(ctx context.Context, panel *models.MarketPanel, cutoff time.Time, sets []models.FeatureSet) (*models.PipelineResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if panel.Len() == 0 {
		return nil, ErrNoData
	}
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	if cutoff.IsZero() {
		cutoff = p.eng.Cutoff()
	}
	if len(sets) == 0 {
		sets = models.AllFeatureSets()
	}
	eng := features.NewEngineer(cutoff, features.WithLogger(p.log), features.WithCenteringMode(features.CenteringRefit))
	res := process(eng, panel, sets)
	res.Summary.Source = "request"
	return res, nil
}

// process engineers panel and builds the summary for the requested sets.
func process(eng *features.Engineer, panel *models.MarketPanel, sets []models.FeatureSet) *models.PipelineResult {
	ep := eng.CreateAllFeatures(panel)
	_ = eng.CreateBinaryTarget(ep) // optional; logged by the engineer

	rows, cols := ep.Shape()
	s := models.PipelineSummary{
		GeneratedAt: time.Now().UTC(),
		Cutoff:      eng.Cutoff(),
		Rows:        rows,
		Columns:     cols,
		ColumnNames: ep.Columns(),
		Sets:        make(map[models.FeatureSet]models.FeatureSetReport, len(sets)),
	}
	if ep.HasColumn(models.ColScoreCentered) {
		stats := eng.TrainStats()
		s.TrainRows = stats.TrainRows
		if !math.IsNaN(stats.ScoreMean) {
			m := stats.ScoreMean
			s.ScoreMean = &m
		}
	}
	if ep.HasDates() && rows > 0 {
		first, last := ep.Dates[0], ep.Dates[rows-1]
		s.FirstDate, s.LastDate = &first, &last
	}

	for _, set := range sets {
		present, _ := eng.FeatureSet(ep, set)
		_, missing := features.SelectFeatures(ep, set)
		s.Sets[set] = models.FeatureSetReport{
			Set:        set,
			Features:   present,
			Missing:    missing,
			Validation: eng.ValidateFeatures(ep, set.Canonical()),
		}
	}
	return &models.PipelineResult{Summary: s, Panel: ep}
}

// persistedColumns is the union of every set's features plus the target.
func persistedColumns(res *models.PipelineResult) []models.Column {
	seen := make(map[models.Column]bool)
	var out []models.Column
	for _, set := range models.AllFeatureSets() {
		rep, ok := res.Summary.Sets[set]
		if !ok {
			continue
		}
		for _, c := range rep.Features {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	if res.Panel.HasColumn(models.ColVolDirection) {
		out = append(out, models.ColVolDirection)
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordPipelineRun(string, time.Duration, error) {}
func (nopMetrics) RecordValidation(models.FeatureSet, bool)      {}
func (nopMetrics) RecordScore(string, float64, error)            {}
func (nopMetrics) RecordObservation(string)                      {}
