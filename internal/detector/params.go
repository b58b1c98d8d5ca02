package detector

import (
	"fmt"
	"math"
)

// Params configures one fit of the forest
type Params struct {
	NEstimators   int
	MaxSamples    int
	Contamination float64
	Seed          int64
	// Workers bounds parallel tree construction; <=0 uses GOMAXPROCS
	Workers int
	// Bootstrap draws each tree sample with replacement
	Bootstrap bool
}

// DefaultParams mirrors the batch analyzer defaults
func DefaultParams() Params {
	return Params{
		NEstimators:   200,
		MaxSamples:    256,
		Contamination: 0.15,
		Seed:          42,
	}
}

// Validate checks p against a matrix of rows x cols
func (p Params) Validate(rows int) error {
	if rows < 2 {
		return fmt.Errorf("%w: need at least 2 rows, got %d", ErrValidation, rows)
	}
	if p.NEstimators < 1 {
		return fmt.Errorf("%w: n_estimators must be >= 1, got %d", ErrValidation, p.NEstimators)
	}
	if p.MaxSamples < 1 || p.MaxSamples > rows {
		return fmt.Errorf("%w: max_samples must be in [1, %d], got %d", ErrValidation, rows, p.MaxSamples)
	}
	if math.IsNaN(p.Contamination) || p.Contamination <= 0 || p.Contamination >= 1 {
		return fmt.Errorf("%w: contamination must be in (0, 1), got %v", ErrValidation, p.Contamination)
	}
	return nil
}

func validateMatrix(matrix [][]float64) (int, error) {
	if len(matrix) == 0 {
		return 0, fmt.Errorf("%w: need at least 2 rows, got 0", ErrValidation)
	}
	cols := len(matrix[0])
	if cols == 0 {
		return 0, fmt.Errorf("%w: rows have no features", ErrValidation)
	}
	for i, row := range matrix {
		if len(row) != cols {
			return 0, fmt.Errorf("%w: row %d has %d features, expected %d", ErrValidation, i, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d feature %d is not finite", ErrValidation, i, j)
			}
		}
	}
	return cols, nil
}
