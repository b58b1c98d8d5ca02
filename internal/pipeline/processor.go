// Package pipeline turns an ordered list of capture identifiers into a labeled anomaly table.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"traffic-anomaly-detector/internal/detector"
	"traffic-anomaly-detector/internal/features"
	"traffic-anomaly-detector/internal/model"

	"github.com/sirupsen/logrus"
)

// Source supplies the ordered identifiers to score
type Source interface {
	Identifiers(ctx context.Context) ([]string, error)
	Describe() string
}

// Sink receives the finished table
type Sink interface {
	Write(ctx context.Context, records []model.AnomalyRecord) error
	Location() string
}

// RunResult describes one completed Execute call
type RunResult struct {
	Source   string                `json:"source"`
	Output   string                `json:"output,omitempty"`
	Config   Config                `json:"config"`
	Records  []model.AnomalyRecord `json:"records"`
	Summary  model.Summary         `json:"summary"`
	Started  time.Time             `json:"started"`
	Duration time.Duration         `json:"duration"`
}

// RunHook is called after a run has been written to its sink
type RunHook func(ctx context.Context, result *RunResult)

// Processor synthesizes features, scores them and hands the table to a sink
type Processor struct {
	config Config
	logger *logrus.Logger
	hooks  []RunHook
	mu     sync.RWMutex
}

// NewProcessor creates a processor with the given scorer configuration
func NewProcessor(config Config, logger *logrus.Logger) *Processor {
	return &Processor{
		config: config,
		logger: logger,
		hooks:  make([]RunHook, 0),
	}
}

// Config returns the scorer configuration
func (p *Processor) Config() Config {
	return p.config
}

// WithConfig returns a processor sharing logger and hooks but scoring with config
func (p *Processor) WithConfig(config Config) *Processor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hooks := make([]RunHook, len(p.hooks))
	copy(hooks, p.hooks)
	return &Processor{config: config, logger: p.logger, hooks: hooks}
}

// RegisterHook adds a hook that runs after every successful Execute
func (p *Processor) RegisterHook(hook RunHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// Run scores ids and returns one record per id, in input order. It has no side effects.
func (p *Processor) Run(ctx context.Context, ids []string) ([]model.AnomalyRecord, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: input source is empty, no identifiers to score", ErrConfiguration)
	}
	if err := p.config.Validate(); err != nil {
		return nil, err
	}

	vectors := features.SynthesizeAll(ids)
	p.logger.Debugf("Synthesized %d feature vectors", len(vectors))

	params := p.config.Params(len(ids))
	results, err := detector.FitScore(ctx, model.Matrix(vectors), params)
	if err != nil {
		return nil, fmt.Errorf("failed to score %d identifiers: %w", len(ids), err)
	}
	p.logger.Debugf("Scored %d rows with %d trees (max_samples=%d, seed=%d)",
		len(results), params.NEstimators, params.MaxSamples, params.Seed)

	records := make([]model.AnomalyRecord, len(ids))
	for i, id := range ids {
		records[i] = model.AnomalyRecord{
			ID:       id,
			Features: vectors[i],
			Score:    results[i].Score,
			Label:    results[i].Label,
		}
	}
	return records, nil
}

// Execute reads identifiers from src, runs the scorer and writes the table to sink.
// Nothing reaches sink unless scoring succeeded; sink errors are returned as is.
func (p *Processor) Execute(ctx context.Context, src Source, sink Sink) (*RunResult, error) {
	started := time.Now()

	ids, err := src.Identifiers(ctx)
	if err != nil {
		return nil, err
	}

	records, err := p.Run(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Source:  src.Describe(),
		Config:  p.config,
		Records: records,
		Summary: Summarize(records),
		Started: started,
	}

	if sink != nil {
		if err := sink.Write(ctx, records); err != nil {
			return nil, err
		}
		result.Output = sink.Location()
	}
	result.Duration = time.Since(started)

	p.logger.WithFields(logrus.Fields{
		"source":    result.Source,
		"output":    result.Output,
		"total":     result.Summary.Total,
		"anomalous": result.Summary.Anomalous,
		"duration":  result.Duration.String(),
	}).Info("Analysis complete")

	p.mu.RLock()
	hooks := make([]RunHook, len(p.hooks))
	copy(hooks, p.hooks)
	p.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, result)
	}
	return result, nil
}
