package pipeline

import (
	"fmt"
	"math"

	"traffic-anomaly-detector/internal/detector"
)

// AutoMaxSamples is the sample cap applied when MaxSamples is left at 0
const AutoMaxSamples = 256

// Config holds the scorer hyperparameters for a run
type Config struct {
	NEstimators   int     `json:"n_estimators"`
	MaxSamples    int     `json:"max_samples"`
	Contamination float64 `json:"contamination"`
	Seed          int64   `json:"seed"`
	Workers       int     `json:"workers,omitempty"`
	Bootstrap     bool    `json:"bootstrap,omitempty"`
}

// DefaultConfig is 200 trees, 15% contamination and seed 42
func DefaultConfig() Config {
	return Config{
		NEstimators:   200,
		MaxSamples:    0,
		Contamination: 0.15,
		Seed:          42,
	}
}

// Validate rejects hyperparameters that can never be valid, independent of row count
func (c Config) Validate() error {
	if c.NEstimators < 1 {
		return fmt.Errorf("%w: n_estimators must be >= 1, got %d", ErrConfiguration, c.NEstimators)
	}
	if c.MaxSamples < 0 {
		return fmt.Errorf("%w: max_samples must be >= 0 (0 = auto), got %d", ErrConfiguration, c.MaxSamples)
	}
	if math.IsNaN(c.Contamination) || c.Contamination <= 0 || c.Contamination >= 1 {
		return fmt.Errorf("%w: contamination must be in (0, 1), got %v", ErrConfiguration, c.Contamination)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrConfiguration, c.Workers)
	}
	return nil
}

// Params resolves c for a matrix of the given row count. MaxSamples 0 means min(256, rows).
func (c Config) Params(rows int) detector.Params {
	samples := c.MaxSamples
	if samples == 0 {
		samples = min(AutoMaxSamples, rows)
	}
	return detector.Params{
		NEstimators:   c.NEstimators,
		MaxSamples:    samples,
		Contamination: c.Contamination,
		Seed:          c.Seed,
		Workers:       c.Workers,
		Bootstrap:     c.Bootstrap,
	}
}
