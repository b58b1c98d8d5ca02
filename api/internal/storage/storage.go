package storage

import (
	"context"
	"sync"
	"time"

	"traffic-anomaly-detector/internal/model"
	"traffic-anomaly-detector/internal/pipeline"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Storage struct {
	mu             sync.RWMutex
	analyses       []Analysis
	alerts         []Alert
	maxAnalyses    int
	maxAlerts      int
	logger         *logrus.Logger
	analysisSubs   map[*AnalysisSubscriber]bool
	analysisSubsMu sync.RWMutex
}

// Analysis is a stored run with its full table
type Analysis struct {
	AnalysisSummary
	Records []model.AnomalyRecord `json:"records"`
}

// AnalysisSummary is the list and stream view of a run
type AnalysisSummary struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Source    string          `json:"source"`
	Config    pipeline.Config `json:"config"`
	Summary   model.Summary   `json:"summary"`
	Duration  string          `json:"duration"`
}

type Alert struct {
	ID string `json:"id"`
	model.Alert
}

type AnalysisSubscriber struct {
	ID      string
	Channel chan AnalysisSummary
	Filter  AnalysisFilter
}

type AnalysisFilter struct {
	AnomalousOnly bool
	Source        string
}

func NewStorage(logger *logrus.Logger) *Storage {
	return &Storage{
		analyses:     make([]Analysis, 0),
		alerts:       make([]Alert, 0),
		maxAnalyses:  100,  // Keep last 100 runs
		maxAlerts:    1000, // Keep last 1k alerts
		logger:       logger,
		analysisSubs: make(map[*AnalysisSubscriber]bool),
	}
}

// Analysis methods
func (s *Storage) AddAnalysis(result *pipeline.RunResult) Analysis {
	created := result.Started
	if created.IsZero() {
		created = time.Now()
	}

	analysis := Analysis{
		AnalysisSummary: AnalysisSummary{
			ID:        uuid.NewString(),
			CreatedAt: created,
			Source:    result.Source,
			Config:    result.Config,
			Summary:   result.Summary,
			Duration:  result.Duration.String(),
		},
		Records: result.Records,
	}

	s.mu.Lock()
	s.analyses = append(s.analyses, analysis)
	// Keep only last maxAnalyses
	if len(s.analyses) > s.maxAnalyses {
		s.analyses = s.analyses[len(s.analyses)-s.maxAnalyses:]
	}
	s.mu.Unlock()

	s.logger.Debugf("Stored analysis %s (%d records)", analysis.ID, len(analysis.Records))
	s.notifyAnalysisSubscribers(analysis.AnalysisSummary)
	return analysis
}

// GetAnalyses returns up to limit summaries, latest first
func (s *Storage) GetAnalyses(limit int) []AnalysisSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]AnalysisSummary, 0)
	for i := len(s.analyses) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.analyses[i].AnalysisSummary)
	}
	return result
}

func (s *Storage) GetAnalysisByID(id string) *Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.analyses {
		if s.analyses[i].ID == id {
			a := s.analyses[i]
			return &a
		}
	}
	return nil
}

// GetRecords returns the records of analysis id, optionally only those with label.
// The second result is false when no such analysis exists.
func (s *Storage) GetRecords(id string, label *int) ([]model.AnomalyRecord, bool) {
	analysis := s.GetAnalysisByID(id)
	if analysis == nil {
		return nil, false
	}
	if label == nil {
		return analysis.Records, true
	}

	result := make([]model.AnomalyRecord, 0)
	for _, r := range analysis.Records {
		if r.Label == *label {
			result = append(result, r)
		}
	}
	return result, true
}

// Alert methods

// SendAlert implements alert.Notifier so the API can keep the alerts raised by its runs
func (s *Storage) SendAlert(ctx context.Context, alert model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	s.alerts = append(s.alerts, Alert{ID: uuid.NewString(), Alert: alert})

	// Keep only last maxAlerts
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	return nil
}

// GetAlerts returns up to limit alerts, latest first, optionally filtered by severity
func (s *Storage) GetAlerts(limit int, severity string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Alert, 0)
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		if severity != "" && s.alerts[i].Severity != severity {
			continue
		}
		result = append(result, s.alerts[i])
	}
	return result
}

// Subscriber methods
func (s *Storage) SubscribeAnalyses(sub *AnalysisSubscriber) {
	s.analysisSubsMu.Lock()
	defer s.analysisSubsMu.Unlock()
	s.analysisSubs[sub] = true
}

func (s *Storage) UnsubscribeAnalyses(sub *AnalysisSubscriber) {
	s.analysisSubsMu.Lock()
	defer s.analysisSubsMu.Unlock()
	if s.analysisSubs[sub] {
		delete(s.analysisSubs, sub)
		close(sub.Channel)
	}
}

func (s *Storage) notifyAnalysisSubscribers(summary AnalysisSummary) {
	s.analysisSubsMu.RLock()
	defer s.analysisSubsMu.RUnlock()

	for sub := range s.analysisSubs {
		if sub.Filter.AnomalousOnly && summary.Summary.Anomalous == 0 {
			continue
		}
		if sub.Filter.Source != "" && summary.Source != sub.Filter.Source {
			continue
		}

		select {
		case sub.Channel <- summary:
		default:
			// Channel full, skip
		}
	}
}
