package handlers

import (
	"net/http"

	"traffic-anomaly-detector/internal/alert"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// NewRouter registers the API routes, CORS handling and the metrics endpoint
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()

	// CORS middleware
	router.Use(corsMiddleware)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Analyses endpoints
	api.HandleFunc("/analyses", h.CreateAnalysis).Methods("POST")
	api.HandleFunc("/analyses", h.GetAnalyses).Methods("GET")
	api.HandleFunc("/analyses/{id}", h.GetAnalysis).Methods("GET")
	api.HandleFunc("/analyses/{id}/records", h.GetRecords).Methods("GET")
	api.HandleFunc("/analyses/{id}/table.csv", h.GetTable).Methods("GET")
	api.HandleFunc("/stream/analyses", h.StreamAnalyses).Methods("GET")

	// Features endpoint; identifiers may contain slashes (namespace/workload)
	api.HandleFunc("/features/{identifier:.+}", h.GetFeatures).Methods("GET")

	// Alerts endpoints
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")

	// Metrics
	if gatherer != nil {
		router.Handle("/metrics", alert.MetricsHandler(gatherer)).Methods("GET")
	}

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	return router
}

var allowedOrigins = []string{
	"http://localhost:5000",
	"http://localhost:3000",
	"http://127.0.0.1:5000",
	"http://127.0.0.1:3000",
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if origin != "" {
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					allowOrigin = origin
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if allowOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
