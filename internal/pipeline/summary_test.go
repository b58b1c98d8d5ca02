package pipeline

import (
	"testing"

	"traffic-anomaly-detector/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	records := []model.AnomalyRecord{
		{ID: "a", Score: 0.4, Label: model.LabelNormal},
		{ID: "b", Score: 0.5, Label: model.LabelNormal},
		{ID: "c", Score: 0.6, Label: model.LabelNormal},
		{ID: "d", Score: 0.7, Label: model.LabelAnomalous},
	}

	s := Summarize(records)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Anomalous)
	assert.Equal(t, 3, s.Normal)
	assert.InDelta(t, 0.55, s.ScoreMean, 1e-12)
	assert.Greater(t, s.ScoreStdDev, 0.0)
	assert.InDelta(t, 0.7, s.ScoreP95, 1e-12)
}

func TestSummarizeEdgeCases(t *testing.T) {
	assert.Equal(t, model.Summary{}, Summarize(nil))

	s := Summarize([]model.AnomalyRecord{{ID: "only", Score: 0.5}})
	assert.Equal(t, 1, s.Total)
	assert.InDelta(t, 0.5, s.ScoreMean, 1e-12)
	assert.Zero(t, s.ScoreStdDev)
	assert.InDelta(t, 0.5, s.ScoreP95, 1e-12)
}

func TestAnomalousIDs(t *testing.T) {
	records := []model.AnomalyRecord{
		{ID: "a", Label: model.LabelAnomalous},
		{ID: "b", Label: model.LabelNormal},
		{ID: "c", Label: model.LabelAnomalous},
	}
	assert.Equal(t, []string{"a", "c"}, AnomalousIDs(records))
	assert.Nil(t, AnomalousIDs(records[1:2]))
}
