package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"traffic-anomaly-detector/internal/detector"
	"traffic-anomaly-detector/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []string

func (s staticSource) Identifiers(ctx context.Context) ([]string, error) { return s, nil }
func (s staticSource) Describe() string                                   { return "static" }

type failingSource struct{ err error }

func (s failingSource) Identifiers(ctx context.Context) ([]string, error) { return nil, s.err }
func (s failingSource) Describe() string                                   { return "failing" }

type memorySink struct {
	writes  int
	records []model.AnomalyRecord
	err     error
}

func (m *memorySink) Write(ctx context.Context, records []model.AnomalyRecord) error {
	m.writes++
	if m.err != nil {
		return m.err
	}
	m.records = append([]model.AnomalyRecord(nil), records...)
	return nil
}

func (m *memorySink) Location() string { return "memory" }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func captureIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("capture_%02d.pcap", i)
	}
	return ids
}

func TestRunThreeCapturesHasNoAnomalies(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())

	records, err := p.Run(context.Background(), []string{"a.pcap", "b.pcap", "c.pcap"})
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, id := range []string{"a.pcap", "b.pcap", "c.pcap"} {
		assert.Equal(t, id, records[i].ID)
		assert.Equal(t, model.LabelNormal, records[i].Label)
		assert.Greater(t, records[i].Score, 0.0)
		assert.LessOrEqual(t, records[i].Score, 1.0)
	}
}

func TestRunTwentyCapturesLabelsThree(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())
	ids := captureIDs(20)

	records, err := p.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, records, 20)

	anomalous := 0
	for i, r := range records {
		assert.Equal(t, ids[i], r.ID)
		if r.IsAnomalous() {
			anomalous++
		}
	}
	assert.Equal(t, 3, anomalous)
}

func TestRunEmptyInputIsConfigurationError(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())

	_, err := p.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "empty")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contamination = 1.5
	p := NewProcessor(cfg, quietLogger())

	_, err := p.Run(context.Background(), captureIDs(5))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestRunMaxSamplesAboveRowsIsValidationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSamples = 50
	p := NewProcessor(cfg, quietLogger())

	_, err := p.Run(context.Background(), captureIDs(5))
	require.ErrorIs(t, err, detector.ErrValidation)
	assert.Contains(t, err.Error(), "max_samples")
}

func TestRunIsDeterministic(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())
	ids := captureIDs(30)

	first, err := p.Run(context.Background(), ids)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunFeaturesMatchIdentifiers(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())

	records, err := p.Run(context.Background(), []string{"x.pcap", "y.pcap"})
	require.NoError(t, err)
	assert.NotEqual(t, records[0].Features, records[1].Features)

	again, err := p.Run(context.Background(), []string{"y.pcap", "x.pcap"})
	require.NoError(t, err)
	assert.Equal(t, records[0].Features, again[1].Features)
	assert.Equal(t, records[1].Features, again[0].Features)
}

func TestExecuteWritesSinkAndRunsHooks(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())
	var hooked *RunResult
	p.RegisterHook(func(ctx context.Context, result *RunResult) { hooked = result })

	sink := &memorySink{}
	result, err := p.Execute(context.Background(), staticSource(captureIDs(20)), sink)
	require.NoError(t, err)

	assert.Equal(t, 1, sink.writes)
	assert.Equal(t, result.Records, sink.records)
	assert.Equal(t, "static", result.Source)
	assert.Equal(t, "memory", result.Output)
	assert.Equal(t, 20, result.Summary.Total)
	assert.Equal(t, 3, result.Summary.Anomalous)
	assert.Same(t, result, hooked)
}

func TestExecuteEmptySourceNeverWrites(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())
	hookCalled := false
	p.RegisterHook(func(ctx context.Context, result *RunResult) { hookCalled = true })

	sink := &memorySink{}
	_, err := p.Execute(context.Background(), staticSource{}, sink)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, sink.writes)
	assert.False(t, hookCalled)
}

func TestExecuteReturnsSourceError(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())
	boom := errors.New("listing failed")

	sink := &memorySink{}
	_, err := p.Execute(context.Background(), failingSource{err: boom}, sink)
	assert.Same(t, boom, err)
	assert.Zero(t, sink.writes)
}

func TestExecuteReturnsSinkErrorUnchanged(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())
	hookCalled := false
	p.RegisterHook(func(ctx context.Context, result *RunResult) { hookCalled = true })
	diskFull := errors.New("disk full")

	_, err := p.Execute(context.Background(), staticSource(captureIDs(4)), &memorySink{err: diskFull})
	assert.Same(t, diskFull, err)
	assert.False(t, hookCalled)
}

func TestExecuteWithoutSink(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())

	result, err := p.Execute(context.Background(), staticSource(captureIDs(3)), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Output)
	assert.Len(t, result.Records, 3)
}

func TestWithConfigKeepsHooks(t *testing.T) {
	p := NewProcessor(DefaultConfig(), quietLogger())
	calls := 0
	p.RegisterHook(func(ctx context.Context, result *RunResult) { calls++ })

	cfg := DefaultConfig()
	cfg.Seed = 7
	derived := p.WithConfig(cfg)
	assert.Equal(t, int64(7), derived.Config().Seed)
	assert.Equal(t, int64(42), p.Config().Seed)

	_, err := derived.Execute(context.Background(), staticSource(captureIDs(3)), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
