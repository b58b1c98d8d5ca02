package pipeline

import (
	"sort"

	"traffic-anomaly-detector/internal/model"

	"gonum.org/v1/gonum/stat"
)

// Summarize counts labels and describes the score distribution of records
func Summarize(records []model.AnomalyRecord) model.Summary {
	s := model.Summary{Total: len(records)}
	if len(records) == 0 {
		return s
	}

	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.Score
		if r.IsAnomalous() {
			s.Anomalous++
		}
	}
	s.Normal = s.Total - s.Anomalous

	s.ScoreMean, s.ScoreStdDev = stat.MeanStdDev(scores, nil)
	if len(scores) < 2 {
		s.ScoreStdDev = 0
	}
	sort.Float64s(scores)
	s.ScoreP95 = stat.Quantile(0.95, stat.Empirical, scores, nil)
	return s
}

// AnomalousIDs returns the ids labeled anomalous, in table order
func AnomalousIDs(records []model.AnomalyRecord) []string {
	var ids []string
	for _, r := range records {
		if r.IsAnomalous() {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
