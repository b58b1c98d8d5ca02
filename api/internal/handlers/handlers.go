package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"traffic-anomaly-detector/api/internal/storage"
	"traffic-anomaly-detector/internal/detector"
	"traffic-anomaly-detector/internal/features"
	"traffic-anomaly-detector/internal/pipeline"
	"traffic-anomaly-detector/internal/sink"
	"traffic-anomaly-detector/internal/source"
	"traffic-anomaly-detector/internal/utils"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	store     *storage.Storage
	config    *utils.AnalysisConfig
	processor *pipeline.Processor
	logger    *logrus.Logger
	upgrader  websocket.Upgrader
	// runMu serializes analyses so concurrent requests do not compete for the worker pool
	runMu sync.Mutex
}

func NewHandlers(store *storage.Storage, config *utils.AnalysisConfig, processor *pipeline.Processor, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:     store,
		config:    config,
		processor: processor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins for development
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// AnalysisRequest is the body of POST /api/v1/analyses. Either IDs or a configured
// source is scored; hyperparameters left nil keep the server configuration.
type AnalysisRequest struct {
	IDs           []string `json:"ids,omitempty"`
	Source        string   `json:"source,omitempty"`
	NEstimators   *int     `json:"n_estimators,omitempty"`
	MaxSamples    *int     `json:"max_samples,omitempty"`
	Contamination *float64 `json:"contamination,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	Bootstrap     *bool    `json:"bootstrap,omitempty"`
}

func (req AnalysisRequest) apply(cfg pipeline.Config) pipeline.Config {
	if req.NEstimators != nil {
		cfg.NEstimators = *req.NEstimators
	}
	if req.MaxSamples != nil {
		cfg.MaxSamples = *req.MaxSamples
	}
	if req.Contamination != nil {
		cfg.Contamination = *req.Contamination
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.Bootstrap != nil {
		cfg.Bootstrap = *req.Bootstrap
	}
	return cfg
}

// Analyses handlers
func (h *Handlers) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var src pipeline.Source
	if len(req.IDs) > 0 {
		src = &source.StaticSource{IDs: req.IDs, Name: "request"}
	} else {
		cfg := *h.config
		if req.Source != "" {
			cfg.Input.Source = req.Source
		}
		switch cfg.Input.Source {
		case utils.SourceDirectory, utils.SourceHubble, utils.SourcePrometheus:
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", cfg.Input.Source))
			return
		}
		built, closeSrc, err := utils.BuildSource(&cfg, nil, h.logger)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		defer closeSrc()
		src = built
	}

	processor := h.processor.WithConfig(req.apply(h.processor.Config()))

	h.runMu.Lock()
	result, err := processor.Execute(r.Context(), src, nil)
	h.runMu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	analysis := h.store.AddAnalysis(result)
	writeJSON(w, http.StatusCreated, analysis)
}

func (h *Handlers) GetAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	analyses := h.store.GetAnalyses(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": analyses,
		"total": len(analyses),
		"limit": limit,
	})
}

func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	analysis := h.store.GetAnalysisByID(id)
	if analysis == nil {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

func (h *Handlers) GetRecords(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var label *int
	if raw := r.URL.Query().Get("label"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || (v != 0 && v != 1) {
			writeError(w, http.StatusBadRequest, "label must be 0 or 1")
			return
		}
		label = &v
	}

	records, ok := h.store.GetRecords(id, label)
	if !ok {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *Handlers) GetTable(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	analysis := h.store.GetAnalysisByID(id)
	if analysis == nil {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "analysis_"+analysis.ID+".csv"))
	if err := sink.WriteCSV(w, analysis.Records, h.config.TableOptions()); err != nil {
		h.logger.Errorf("Failed to write table for %s: %v", analysis.ID, err)
	}
}

// Features handlers
func (h *Handlers) GetFeatures(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       identifier,
		"features": features.Synthesize(identifier),
	})
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 100
	}

	alerts := h.store.GetAlerts(limit, r.URL.Query().Get("severity"))
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handlers) StreamAnalyses(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &storage.AnalysisSubscriber{
		ID:      generateID(),
		Channel: make(chan storage.AnalysisSummary, 100),
		Filter: storage.AnalysisFilter{
			AnomalousOnly: r.URL.Query().Get("anomalous") == "true",
			Source:        r.URL.Query().Get("source"),
		},
	}

	h.store.SubscribeAnalyses(sub)
	defer h.store.UnsubscribeAnalyses(sub)

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]string{"type": "connected", "message": "WebSocket connection established"}); err != nil {
		h.logger.Errorf("Failed to send initial message: %v", err)
		return
	}

	// Read messages (for pong and close)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send ping to keep connection alive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case summary, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(summary); err != nil {
				h.logger.Errorf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			h.logger.Debugf("WebSocket connection closed for %s", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		}
	}
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrConfiguration), errors.Is(err, detector.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func generateID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
