package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline run metrics.
type Recorder struct {
	runs        *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	droppedRows prometheus.Counter
	lastSignal  *prometheus.GaugeVec
	lastRunTime prometheus.Gauge
	duration    *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ni225_signal_runs_total",
				Help: "Signal pipeline runs by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ni225_run_diagnostics_total",
				Help: "Diagnostics raised during runs, by kind",
			},
			[]string{"kind"},
		),
		droppedRows: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ni225_incomplete_rows_dropped_total",
				Help: "ModelInput rows dropped for missing values",
			},
		),
		lastSignal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ni225_last_signal",
				Help: "Most recent signal value per profile",
			},
			[]string{"profile"},
		),
		lastRunTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ni225_last_successful_run_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ni225_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
	}
}

func (r *Recorder) RecordRun(trigger, outcome string) {
	r.runs.WithLabelValues(trigger, outcome).Inc()
}

func (r *Recorder) RecordDiagnostic(kind string) {
	r.diagnostics.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordDroppedRows(n int) {
	r.droppedRows.Add(float64(n))
}

func (r *Recorder) RecordSignal(profile string, signal float64, unixSeconds int64) {
	r.lastSignal.WithLabelValues(profile).Set(signal)
	r.lastRunTime.Set(float64(unixSeconds))
}

func (r *Recorder) RecordStage(stage string, seconds float64) {
	r.duration.WithLabelValues(stage).Observe(seconds)
}
