// Package metrics records batch outcomes as Prometheus collectors. The CLI is
// short-lived, so instead of serving /metrics it writes the registry to a
// node_exporter textfile after each batch.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ocr_batch"

// Batch outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Metrics exposes Prometheus collectors that report batch activity.
type Metrics struct {
	registry *prometheus.Registry

	batches        *prometheus.CounterVec
	records        *prometheus.CounterVec
	uploadBytes    *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	serverSeconds  *prometheus.CounterVec
	exports        *prometheus.CounterVec
	lastBatchFiles prometheus.Gauge
}

// New constructs Metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches submitted, by mode and outcome.",
		}, []string{"mode", "outcome", "kind"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Per-file records received, by mode and success.",
		}, []string{"mode", "success"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Document bytes submitted.",
		}, []string{"mode"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time from submission to response or failure.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"mode", "outcome"}),
		serverSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_processing_seconds_total",
			Help:      "Sum of backend-reported processing time.",
		}, []string{"mode"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export operations, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		lastBatchFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_files",
			Help:      "Number of files in the most recent batch.",
		}),
	}
	m.registry.MustRegister(m.batches, m.records, m.uploadBytes, m.batchDuration,
		m.serverSeconds, m.exports, m.lastBatchFiles)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSubmitted records the size of a batch as it starts.
func (m *Metrics) ObserveSubmitted(mode string, files int, bytes int64) {
	if m == nil {
		return
	}
	m.lastBatchFiles.Set(float64(files))
	m.uploadBytes.WithLabelValues(mode).Add(float64(bytes))
}

// ObserveCompleted records a batch that produced a response.
func (m *Metrics) ObserveCompleted(mode string, succeeded, failed int, serverSeconds float64, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(mode, OutcomeCompleted, "").Inc()
	m.records.WithLabelValues(mode, "true").Add(float64(succeeded))
	m.records.WithLabelValues(mode, "false").Add(float64(failed))
	m.serverSeconds.WithLabelValues(mode).Add(serverSeconds)
	m.batchDuration.WithLabelValues(mode, OutcomeCompleted).Observe(d.Seconds())
}

// ObserveFailed records a top-level failure of kind (server, transport, request).
func (m *Metrics) ObserveFailed(mode, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(mode, OutcomeFailed, kind).Inc()
	m.batchDuration.WithLabelValues(mode, OutcomeFailed).Observe(d.Seconds())
}

// ObserveExport records one export operation.
func (m *Metrics) ObserveExport(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.exports.WithLabelValues(kind, outcome).Inc()
}

// WriteTextfile writes the registry in the text exposition format. The
// write is atomic (temp file plus rename).
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
