package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the generic operation metrics shared by the service.
type Recorder struct {
	operations  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	gauges      *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	gatherer    prometheus.Gatherer
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ovip_operations_total",
				Help: "Total operations by name and result",
			},
			[]string{"operation", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ovip_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		gauges: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ovip_last_value",
				Help: "Last recorded value of a named quantity",
			},
			[]string{"name"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ovip_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		gatherer: g,
	}
}

// RecordOperation counts one operation with its outcome.
func (r *Recorder) RecordOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		r.errorsTotal.WithLabelValues(op).Inc()
	}
	r.operations.WithLabelValues(op, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordValue sets a named gauge.
func (r *Recorder) RecordValue(name string, v float64) {
	r.gauges.WithLabelValues(name).Set(v)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Handler exposes the registry this recorder was built on.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
