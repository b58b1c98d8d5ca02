package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"traffic-anomaly-detector/internal/pipeline"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
)

// PrometheusClient wraps Prometheus API client
type PrometheusClient struct {
	client v1.API
	url    string
}

// NewPrometheusClient creates a new Prometheus client
func NewPrometheusClient(url string) (*PrometheusClient, error) {
	promClient, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusClient{
		client: v1.NewAPI(promClient),
		url:    url,
	}, nil
}

// LabelValues returns the sorted values of label across series matching match,
// over the window ending now
func (p *PrometheusClient) LabelValues(ctx context.Context, label, match string, window, timeout time.Duration) ([]string, error) {
	if !prommodel.LabelName(label).IsValid() {
		return nil, fmt.Errorf("%w: invalid label name %q", pipeline.ErrConfiguration, label)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var matches []string
	if match != "" {
		matches = []string{match}
	}
	end := time.Now()
	values, _, err := p.client.LabelValues(ctx, label, matches, end.Add(-window), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query label values for %s: %w", label, err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, string(v))
		}
	}
	sort.Strings(out)
	return out, nil
}

// PrometheusSource lists identifiers as the values of one label, e.g. the pod label of
// the flow series exported by the Hubble metrics server
type PrometheusSource struct {
	client  *PrometheusClient
	label   string
	match   string
	window  time.Duration
	timeout time.Duration
	metrics *PrometheusMetrics
	logger  *logrus.Logger
}

// NewPrometheusSource creates a label-values identifier source
func NewPrometheusSource(client *PrometheusClient, label, match string, window, timeout time.Duration, metrics *PrometheusMetrics, logger *logrus.Logger) *PrometheusSource {
	return &PrometheusSource{
		client:  client,
		label:   label,
		match:   match,
		window:  window,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Identifiers implements pipeline.Source
func (s *PrometheusSource) Identifiers(ctx context.Context) ([]string, error) {
	ids, err := s.client.LabelValues(ctx, s.label, s.match, s.window, s.timeout)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSourceError("prometheus", "query_failed")
		}
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no values for label %s in %s", pipeline.ErrConfiguration, s.label, s.client.url)
	}
	s.logger.Debugf("Prometheus returned %d values for label %s", len(ids), s.label)
	return ids, nil
}

// Describe implements pipeline.Source
func (s *PrometheusSource) Describe() string {
	return fmt.Sprintf("prometheus:%s{%s}", s.label, s.match)
}
