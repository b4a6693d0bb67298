package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the judge.
type Metrics struct {
	Registry *prometheus.Registry

	JudgementsTotal    *prometheus.CounterVec
	JudgeDuration      *prometheus.HistogramVec
	CompileDuration    *prometheus.HistogramVec
	RunDuration        *prometheus.HistogramVec
	InternalErrors     *prometheus.CounterVec
	ActiveJudgements   prometheus.Gauge
	SuspiciousPatterns *prometheus.CounterVec
	TestCasesTotal     *prometheus.CounterVec
	CodeSizeBytes      prometheus.Histogram
	OutputSizeBytes    prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		JudgementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "judgements_total",
				Help:      "Total number of judged submissions by language and verdict.",
			},
			[]string{"language", "verdict"},
		),

		JudgeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "judgement_duration_seconds",
				Help:      "Wall time of a whole judgement, compile included.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"language"},
		),

		CompileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "compile_duration_seconds",
				Help:      "Duration of the compile step for compiled languages.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"language"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "run_duration_seconds",
				Help:      "Duration of the harness run in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"language"},
		),

		InternalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "internal_errors_total",
				Help:      "Failures of the judge itself, by stage.",
			},
			[]string{"op"},
		),

		ActiveJudgements: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "judge",
				Name:      "active_judgements",
				Help:      "Number of judgements currently in progress.",
			},
		),

		SuspiciousPatterns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "suspicious_patterns_total",
				Help:      "Suspicious patterns seen in submissions and their output.",
			},
			[]string{"pattern"},
		),

		TestCasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "test_cases_total",
				Help:      "Evaluated test cases by outcome.",
			},
			[]string{"language", "outcome"},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "output_size_bytes",
				Help:      "Size of harness stdout plus stderr in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	reg.MustRegister(
		m.JudgementsTotal,
		m.JudgeDuration,
		m.CompileDuration,
		m.RunDuration,
		m.InternalErrors,
		m.ActiveJudgements,
		m.SuspiciousPatterns,
		m.TestCasesTotal,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordJudgement records metrics for a finished judgement.
func (m *Metrics) RecordJudgement(language, verdict string, durationSec float64) {
	m.JudgementsTotal.WithLabelValues(language, verdict).Inc()
	m.JudgeDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordCompile records the duration of a compile step.
func (m *Metrics) RecordCompile(language string, durationSec float64) {
	m.CompileDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordRun records the duration of a harness run.
func (m *Metrics) RecordRun(language string, durationSec float64) {
	m.RunDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordCases counts per-case outcomes of a run that produced results.
func (m *Metrics) RecordCases(language string, passed, failed int) {
	m.TestCasesTotal.WithLabelValues(language, "passed").Add(float64(passed))
	m.TestCasesTotal.WithLabelValues(language, "failed").Add(float64(failed))
}

// RecordError records an internal failure at the given stage.
func (m *Metrics) RecordError(op string) {
	m.InternalErrors.WithLabelValues(op).Inc()
}

// RecordSuspicious records a detector hit.
func (m *Metrics) RecordSuspicious(pattern string) {
	m.SuspiciousPatterns.WithLabelValues(pattern).Inc()
}
