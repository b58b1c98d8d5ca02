package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-anomaly-detector/api/internal/handlers"
	"traffic-anomaly-detector/api/internal/storage"
	"traffic-anomaly-detector/internal/alert"
	"traffic-anomaly-detector/internal/client"
	"traffic-anomaly-detector/internal/utils"
)

func main() {
	var (
		configFile = flag.String("config", "configs/traffic_analysis.yaml", "Configuration file path (YAML)")
		port       = flag.String("port", "", "API server port (overrides application.api_port)")
	)
	flag.Parse()

	// Load configuration
	config, err := utils.LoadAnalysisConfig(*configFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		config = utils.GetDefaultAnalysisConfig()
	}
	if *port != "" {
		config.Application.APIPort = *port
	}

	logger := utils.NewLoggerWithFormat(config.Logging.Level, config.Logging.Format)

	// Create in-memory storage
	store := storage.NewStorage(logger)

	// Shared metrics, also served on /metrics
	metrics := client.NewPrometheusMetrics("traffic_analyzer")

	processor := utils.NewProcessor(config, metrics, logger)
	// Keep the alerts of API runs for GET /api/v1/alerts
	processor.RegisterHook(alert.NewDispatcher(config.Alerting.Severity, logger, store).Hook())

	h := handlers.NewHandlers(store, config, processor, logger)
	router := handlers.NewRouter(h, metrics.Registry)

	// Start server
	addr := fmt.Sprintf(":%s", config.Application.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	logger.Infof("API server starting on port %s", config.Application.APIPort)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down API server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}
}
