package client

import (
	"context"

	"traffic-anomaly-detector/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
)

// PrometheusMetrics holds the analysis metrics on a dedicated registry
type PrometheusMetrics struct {
	Registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RecordsTotal     *prometheus.CounterVec
	AnomalousRecords prometheus.Gauge
	AnomalyScore     prometheus.Histogram
	RunDuration      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
	SourceErrors     *prometheus.CounterVec
}

// NewPrometheusMetrics registers the analysis metrics and a build info collector for program
func NewPrometheusMetrics(program string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		Registry: registry,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_analyzer_runs_total",
			Help: "Analysis runs by outcome",
		}, []string{"outcome"}),
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_analyzer_records_total",
			Help: "Scored captures by label",
		}, []string{"label"}),
		AnomalousRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_analyzer_last_run_anomalous",
			Help: "Captures labeled anomalous in the last run",
		}),
		AnomalyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_analyzer_anomaly_score",
			Help:    "Isolation forest anomaly scores",
			Buckets: prometheus.LinearBuckets(0.3, 0.05, 14),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_analyzer_run_duration_seconds",
			Help:    "Wall time of an analysis run",
			Buckets: prometheus.DefBuckets,
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_analyzer_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_analyzer_source_errors_total",
			Help: "Errors while listing or streaming identifiers",
		}, []string{"source", "reason"}),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RecordsTotal,
		m.AnomalousRecords,
		m.AnomalyScore,
		m.RunDuration,
		m.LastRunTimestamp,
		m.SourceErrors,
		versioncollector.NewCollector(program),
	)
	return m
}

// RecordRun updates the metrics for a completed run
func (m *PrometheusMetrics) RecordRun(result *pipeline.RunResult) {
	m.RunsTotal.WithLabelValues("success").Inc()
	m.RecordsTotal.WithLabelValues("anomalous").Add(float64(result.Summary.Anomalous))
	m.RecordsTotal.WithLabelValues("normal").Add(float64(result.Summary.Normal))
	m.AnomalousRecords.Set(float64(result.Summary.Anomalous))
	for _, r := range result.Records {
		m.AnomalyScore.Observe(r.Score)
	}
	m.RunDuration.Observe(result.Duration.Seconds())
	m.LastRunTimestamp.SetToCurrentTime()
}

// RecordFailure counts a failed run
func (m *PrometheusMetrics) RecordFailure() {
	m.RunsTotal.WithLabelValues("failure").Inc()
}

// RecordSourceError counts an identifier source error
func (m *PrometheusMetrics) RecordSourceError(source, reason string) {
	m.SourceErrors.WithLabelValues(source, reason).Inc()
}

// Hook returns a pipeline hook that records every completed run
func (m *PrometheusMetrics) Hook() pipeline.RunHook {
	return func(ctx context.Context, result *pipeline.RunResult) {
		m.RecordRun(result)
	}
}
