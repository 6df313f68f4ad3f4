package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the pipeline-level Prometheus recorder: bars and decisions
// handed to sinks, error kinds, last close per symbol and stage latency.
type Recorder struct {
	delivered *prometheus.CounterVec
	errors    *prometheus.CounterVec
	lastClose *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
}

// New registers the collectors on the default registry. Call it once per process.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		delivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademind_pipeline_delivered_total",
				Help: "Bars and decisions delivered to a sink",
			},
			[]string{"sink", "symbol"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademind_pipeline_errors_total",
				Help: "Pipeline errors by kind",
			},
			[]string{"kind"},
		),
		lastClose: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trademind_last_close",
				Help: "Close of the latest accepted bar",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trademind_pipeline_stage_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"stage"},
		),
	}
}

func (r *Recorder) RecordMessageSent(sink, symbol string) {
	r.delivered.WithLabelValues(sink, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastClose.WithLabelValues(symbol).Set(price)
}

// RecordLatency observes a stage duration in seconds.
func (r *Recorder) RecordLatency(stage string, seconds float64) {
	r.latency.WithLabelValues(stage).Observe(seconds)
}
