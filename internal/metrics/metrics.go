// Package metrics holds the Prometheus counters for evaluation runs.
//
// Metrics live on a private registry so that several runs (and tests) never
// collide on the global default registry. All methods are safe on a nil
// *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmRetries      *prometheus.CounterVec
	llmDuration     prometheus.Histogram
	manifestRecords prometheus.Counter
	manifests       prometheus.Counter
	outputRecords   *prometheus.CounterVec
	findings        prometheus.Counter
	evalErrors      prometheus.Counter
	skipped         prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rulecheck_llm_calls_total", Help: "Synchronous model calls by outcome"}, []string{"outcome"})
	m.llmRetries = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rulecheck_llm_retries_total", Help: "Retries by retry policy"}, []string{"policy"})
	m.llmDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rulecheck_llm_call_seconds",
		Help:    "Duration of a synchronous model call including retries",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	m.manifestRecords = prometheus.NewCounter(prometheus.CounterOpts{Name: "rulecheck_manifest_records_total", Help: "Invocation records written to manifests"})
	m.manifests = prometheus.NewCounter(prometheus.CounterOpts{Name: "rulecheck_manifests_written_total", Help: "Manifest objects uploaded"})
	m.outputRecords = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rulecheck_output_records_total", Help: "Batch output records by status"}, []string{"status"})
	m.findings = prometheus.NewCounter(prometheus.CounterOpts{Name: "rulecheck_findings_total", Help: "Findings produced"})
	m.evalErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "rulecheck_eval_errors_total", Help: "Evaluation errors produced"})
	m.skipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "rulecheck_records_skipped_total", Help: "Output records skipped because they were already processed"})

	m.registry.MustRegister(
		m.llmCalls, m.llmRetries, m.llmDuration,
		m.manifestRecords, m.manifests,
		m.outputRecords, m.findings, m.evalErrors, m.skipped,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteFile writes every metric in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveCall records one model call and its outcome.
func (m *Metrics) ObserveCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(outcome).Inc()
	m.llmDuration.Observe(d.Seconds())
}

// Retry records a retry under the named policy.
func (m *Metrics) Retry(policy string) {
	if m == nil {
		return
	}
	m.llmRetries.WithLabelValues(policy).Inc()
}

// ManifestWritten records an uploaded manifest and its record count.
func (m *Metrics) ManifestWritten(records int) {
	if m == nil {
		return
	}
	m.manifests.Inc()
	m.manifestRecords.Add(float64(records))
}

// OutputRecord records a processed batch output line.
func (m *Metrics) OutputRecord(failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.outputRecords.WithLabelValues(status).Inc()
}

// Findings adds n findings.
func (m *Metrics) Findings(n int) {
	if m == nil || n == 0 {
		return
	}
	m.findings.Add(float64(n))
}

// EvalError records one evaluation error.
func (m *Metrics) EvalError() {
	if m == nil {
		return
	}
	m.evalErrors.Inc()
}

// Skipped records an output record that was already processed.
func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}
