// Package metrics records run statistics in a Prometheus registry and
// exports them in the textfile exposition format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/logflow/batchflow/pkg/discovery"
)

// Recorder holds the metrics of batchflow runs.
type Recorder struct {
	registry *prometheus.Registry

	InstancesTotal   prometheus.Counter
	BatchesTotal     *prometheus.CounterVec
	KeysReported     prometheus.Gauge
	RulesAccepted    prometheus.Counter
	DiagnosticsTotal *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	StageDuration    *prometheus.HistogramVec
}

// New creates a recorder on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		InstancesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchflow_instances_total",
			Help: "The total number of activity instances analysed",
		}),
		BatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "batchflow_batches_total",
			Help: "The total number of batch instances detected",
		}, []string{"type"}),
		KeysReported: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batchflow_keys_reported",
			Help: "The number of keys in the last report",
		}),
		RulesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchflow_rules_accepted_total",
			Help: "The total number of firing rules accepted",
		}),
		DiagnosticsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "batchflow_diagnostics_total",
			Help: "The total number of diagnostics emitted",
		}, []string{"code"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchflow_cache_hits_total",
			Help: "The total number of runs answered from the report cache",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batchflow_stage_duration_seconds",
			Help:    "The duration of pipeline stages",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveReport records the counts of a finished discovery run.
func (r *Recorder) ObserveReport(rep *discovery.Report) {
	r.InstancesTotal.Add(float64(rep.Instances))
	for kind, n := range rep.Batches {
		r.BatchesTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
	r.KeysReported.Set(float64(len(rep.Characteristics)))
	for _, c := range rep.Characteristics {
		if c.FiringRules != nil {
			r.RulesAccepted.Add(float64(len(c.FiringRules.Rules)))
		}
	}
	for _, d := range rep.Diagnostics {
		r.DiagnosticsTotal.WithLabelValues(string(d.Code)).Inc()
	}
}

// ObserveStage records the duration of a pipeline stage.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Time returns a function that records the time elapsed since Time was
// called under stage.
func (r *Recorder) Time(stage string) func() {
	start := time.Now()
	return func() { r.ObserveStage(stage, time.Since(start)) }
}

// WriteTextfile writes every metric to path for a node exporter textfile
// collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
