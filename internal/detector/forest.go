// Package detector implements an isolation forest: an ensemble of random partition
// trees where points that isolate in few splits score as anomalous.
package detector

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Forest is a fitted ensemble. It owns its trees.
type Forest struct {
	trees       []*Tree
	maxSamples  int
	seed        int64
	numFeatures int
}

// Result is the score and label of one matrix row
type Result struct {
	Score float64 `json:"score"`
	Label int     `json:"label"`
}

// Fit builds p.NEstimators trees over matrix. Tree i draws from a stream seeded by
// (p.Seed, i), so the ensemble does not depend on p.Workers or scheduling.
func Fit(ctx context.Context, matrix [][]float64, p Params) (*Forest, error) {
	cols, err := validateMatrix(matrix)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(len(matrix)); err != nil {
		return nil, err
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	f := &Forest{
		trees:       make([]*Tree, p.NEstimators),
		maxSamples:  p.MaxSamples,
		seed:        p.Seed,
		numFeatures: cols,
	}
	limit := heightLimit(p.MaxSamples)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range f.trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := treeRand(p.Seed, i)
			sample := drawSample(len(matrix), p.MaxSamples, p.Bootstrap, rng)
			f.trees[i] = buildTree(matrix, sample, limit, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

func treeRand(seed int64, tree int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(tree)))
}

// drawSample picks m row indices out of rows, without replacement unless bootstrap is set
func drawSample(rows, m int, bootstrap bool, rng *rand.Rand) []int {
	if bootstrap {
		out := make([]int, m)
		for i := range out {
			out[i] = rng.IntN(rows)
		}
		return out
	}

	perm := make([]int, rows)
	for i := range perm {
		perm[i] = i
	}
	// partial Fisher-Yates
	for i := 0; i < m; i++ {
		j := i + rng.IntN(rows-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:m]
}

// Trees returns the fitted trees in construction order
func (f *Forest) Trees() []*Tree {
	return f.trees
}

// MaxSamples is the per-tree sample size used at fit time
func (f *Forest) MaxSamples() int {
	return f.maxSamples
}

// Seed is the seed the forest was built from
func (f *Forest) Seed() int64 {
	return f.seed
}

// Score returns 2^(-E[h(x)]/c(max_samples)); values near 1 are anomalous.
// x must have as many features as the rows the forest was fitted on.
func (f *Forest) Score(x []float64) (float64, error) {
	if len(x) != f.numFeatures {
		return 0, fmt.Errorf("%w: row has %d features, forest expects %d", ErrValidation, len(x), f.numFeatures)
	}
	if len(f.trees) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, t := range f.trees {
		sum += t.PathLength(x)
	}
	mean := sum / float64(len(f.trees))

	c := AveragePathLength(f.maxSamples)
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -mean/c), nil
}

// ScoreAll scores every row, preserving order
func (f *Forest) ScoreAll(matrix [][]float64) ([]float64, error) {
	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		s, err := f.Score(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}

// AnomalyCount is round(contamination * rows), halves rounded away from zero
func AnomalyCount(rows int, contamination float64) int {
	k := int(math.Round(contamination * float64(rows)))
	return max(0, min(k, rows))
}

// Label marks the AnomalyCount highest scores with 1. Equal scores are ranked by row
// index, so the lower index wins the anomaly label at the threshold.
func Label(scores []float64, contamination float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	labels := make([]int, len(scores))
	for _, i := range order[:AnomalyCount(len(scores), contamination)] {
		labels[i] = 1
	}
	return labels
}

// FitScore fits a forest on matrix and returns one Result per row, in row order
func FitScore(ctx context.Context, matrix [][]float64, p Params) ([]Result, error) {
	forest, err := Fit(ctx, matrix, p)
	if err != nil {
		return nil, err
	}

	scores, err := forest.ScoreAll(matrix)
	if err != nil {
		return nil, err
	}
	labels := Label(scores, p.Contamination)

	results := make([]Result, len(matrix))
	for i := range results {
		results[i] = Result{Score: scores[i], Label: labels[i]}
	}
	return results, nil
}
