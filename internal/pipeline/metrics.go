package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"repograph/internal/crawler"
)

const metricsNamespace = "repograph"

// Metrics counts what analysis runs scanned, skipped and found. Each
// Metrics owns its registry so several analyzers can coexist.
type Metrics struct {
	registry *prometheus.Registry

	filesScanned    prometheus.Counter
	filesSkipped    *prometheus.CounterVec
	findings        *prometheus.CounterVec
	vulnerabilities *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	graphSize       *prometheus.GaugeVec
}

// NewMetrics creates and registers the analysis metrics.
func NewMetrics(logger zerolog.Logger) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.filesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "files_scanned_total",
		Help:      "Files handed to the detectors",
	})
	m.filesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "files_skipped_total",
		Help:      "Files skipped by the crawler",
	}, []string{"reason"})
	m.findings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "findings_total",
		Help:      "Merged findings per domain",
	}, []string{"domain"})
	m.vulnerabilities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "vulnerabilities_total",
		Help:      "Merged vulnerabilities per severity",
	}, []string{"severity"})
	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of analysis stages in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})
	m.graphSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "graph_size",
		Help:      "Nodes and edges of the last assembled graph",
	}, []string{"kind"})

	m.registry.MustRegister(m.filesScanned, m.filesSkipped, m.findings, m.vulnerabilities, m.stageDuration, m.graphSize)
	logger.Debug().Str("component", "metrics").Str("namespace", metricsNamespace).Msg("metrics initialized")
	return m
}

// Registry exposes the registry for export.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteFile writes the current metrics in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeCrawl(st crawler.Stats) {
	m.filesScanned.Add(float64(st.Supplied))
	m.filesSkipped.WithLabelValues("oversize").Add(float64(st.SkippedOversize))
	m.filesSkipped.WithLabelValues("ignored").Add(float64(st.SkippedIgnored))
	m.filesSkipped.WithLabelValues("binary").Add(float64(st.SkippedBinary))
	m.filesSkipped.WithLabelValues("unreadable").Add(float64(st.Unreadable))
}
