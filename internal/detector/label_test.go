package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnomalyCount(t *testing.T) {
	cases := []struct {
		rows          int
		contamination float64
		want          int
	}{
		{3, 0.15, 0},
		{20, 0.15, 3},
		{10, 0.15, 2}, // 1.5 rounds away from zero
		{10, 0.25, 3}, // 2.5 rounds away from zero
		{4, 0.1, 0},
		{7, 0.99, 7},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AnomalyCount(tc.rows, tc.contamination), "rows=%d c=%v", tc.rows, tc.contamination)
	}
}

func TestLabelTopScores(t *testing.T) {
	scores := []float64{0.41, 0.78, 0.52, 0.66, 0.39}
	labels := Label(scores, 0.4)

	assert.Equal(t, []int{0, 1, 0, 1, 0}, labels)
}

func TestLabelTieBreaksByRowIndex(t *testing.T) {
	scores := []float64{0.5, 0.7, 0.7, 0.7, 0.1}
	labels := Label(scores, 0.4)

	assert.Equal(t, []int{0, 1, 1, 0, 0}, labels)
}

func TestLabelHasNoInversion(t *testing.T) {
	scores := []float64{0.61, 0.44, 0.58, 0.72, 0.58, 0.49, 0.55, 0.58, 0.31, 0.66}
	labels := Label(scores, 0.3)

	minAnomalous, maxNormal := 1.0, 0.0
	count := 0
	for i, l := range labels {
		if l == 1 {
			count++
			minAnomalous = min(minAnomalous, scores[i])
		} else {
			maxNormal = max(maxNormal, scores[i])
		}
	}
	assert.Equal(t, 3, count)
	assert.GreaterOrEqual(t, minAnomalous, maxNormal)
}

func TestLabelRoundsDownBelowOneUnit(t *testing.T) {
	labels := Label([]float64{0.9, 0.5, 0.4}, 0.15)
	assert.Equal(t, []int{0, 0, 0}, labels)
}
