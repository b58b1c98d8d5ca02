package alert

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

// PrometheusExporter exposes a gatherer over HTTP
type PrometheusExporter struct {
	server   *http.Server
	listener net.Listener
	logger   *logrus.Logger
	port     string
}

// MetricsHandler serves /metrics and /health for gatherer
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// NewPrometheusExporter creates an exporter for gatherer listening on port.
// Port "0" picks a free port; see Addr after Listen.
func NewPrometheusExporter(port string, gatherer prometheus.Gatherer, logger *logrus.Logger) *PrometheusExporter {
	return &PrometheusExporter{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           MetricsHandler(gatherer),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
		port:   port,
	}
}

// Listen binds the exporter's port without serving yet
func (e *PrometheusExporter) Listen() error {
	ln, err := net.Listen("tcp", e.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to start Prometheus exporter: %w", err)
	}
	e.listener = ln
	return nil
}

// Addr is the bound address, or "" before Listen
func (e *PrometheusExporter) Addr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Serve handles requests on the bound listener until ctx is cancelled, then shuts down
func (e *PrometheusExporter) Serve(ctx context.Context) error {
	if e.listener == nil {
		return errors.New("prometheus exporter: Serve called before Listen")
	}
	e.logger.Infof("Starting Prometheus exporter on %s", e.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := e.server.Serve(e.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("prometheus exporter stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.logger.Info("Shutting down Prometheus exporter...")
	return e.server.Shutdown(shutdownCtx)
}

// Start binds the port and serves until ctx is cancelled
func (e *PrometheusExporter) Start(ctx context.Context) error {
	if err := e.Listen(); err != nil {
		return err
	}
	return e.Serve(ctx)
}

// PushMetrics pushes gatherer to a Pushgateway under job
func PushMetrics(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

// WriteTextfile writes gatherer in the node_exporter textfile format
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
