package model

import "time"

// Label values assigned by the scorer
const (
	LabelNormal    = 0
	LabelAnomalous = 1
)

// AnomalyRecord is one row of the output table
type AnomalyRecord struct {
	ID       string        `json:"id"`
	Features FeatureVector `json:"features"`
	Score    float64       `json:"score"`
	Label    int           `json:"label"`
}

// IsAnomalous reports whether the record carries the anomaly label
func (r AnomalyRecord) IsAnomalous() bool {
	return r.Label == LabelAnomalous
}

// Summary aggregates a labeled table
type Summary struct {
	Total       int     `json:"total"`
	Anomalous   int     `json:"anomalous"`
	Normal      int     `json:"normal"`
	ScoreMean   float64 `json:"score_mean"`
	ScoreStdDev float64 `json:"score_stddev"`
	ScoreP95    float64 `json:"score_p95"`
}

// Alert is emitted after a run that labeled at least one record anomalous
type Alert struct {
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Source       string    `json:"source"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	AnomalousIDs []string  `json:"anomalous_ids,omitempty"`
	Summary      Summary   `json:"summary"`
}
