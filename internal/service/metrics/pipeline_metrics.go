package metrics

import (
	"time"

	"OVIP/internal/domain/models"
	pkgmetrics "OVIP/pkg/metrics"
)

// PipelineMetrics implements repository.Metrics on top of the shared recorder.
type PipelineMetrics struct {
	rec *pkgmetrics.Recorder
}

func NewPipelineMetrics(rec *pkgmetrics.Recorder) *PipelineMetrics {
	return &PipelineMetrics{rec: rec}
}

func (m *PipelineMetrics) RecordPipelineRun(source string, d time.Duration, err error) {
	m.rec.RecordOperation("pipeline_run", err)
	m.rec.RecordLatency("pipeline_run:"+source, d.Seconds())
}

func (m *PipelineMetrics) RecordValidation(set models.FeatureSet, valid bool) {
	v := 0.0
	if valid {
		v = 1
	}
	m.rec.RecordValue("features_valid:"+string(set), v)
}

func (m *PipelineMetrics) RecordScore(model string, seconds float64, err error) {
	m.rec.RecordOperation("score:"+model, err)
	m.rec.RecordLatency("score:"+model, seconds)
}

func (m *PipelineMetrics) RecordObservation(status string) {
	m.rec.RecordOperation("observation:"+status, nil)
}

// ObserveHTTP records latency of an API route.
func (m *PipelineMetrics) ObserveHTTP(route string, d time.Duration, status int) {
	m.rec.RecordLatency("http:"+route, d.Seconds())
	if status >= 500 {
		m.rec.RecordError("http:" + route)
	}
}
