package utils

import (
	"os"
	"path/filepath"
	"testing"

	"traffic-anomaly-detector/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAnalysisConfigFillsDefaults(t *testing.T) {
	path := writeConfig(t, "cfg.yaml", "input:\n  pcap_dir: captures\n  extensions: [pcapng]\n")

	cfg, err := LoadAnalysisConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "captures", cfg.Input.PcapDir)
	assert.Equal(t, SourceDirectory, cfg.Input.Source)
	assert.Equal(t, []string{".pcapng"}, cfg.Input.Extensions)
	assert.Equal(t, pipeline.DefaultConfig(), cfg.PipelineConfig())
	assert.True(t, cfg.TableOptions().IncludeScore)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "traffic-analyzer", cfg.Metrics.Job)
}

func TestLoadAnalysisConfigExplicitValues(t *testing.T) {
	body := `
detection:
  n_estimators: 50
  max_samples: 16
  contamination: 0.2
  seed: 0
  bootstrap: true
output:
  include_score: false
  legacy_label_column: true
`
	cfg, err := LoadAnalysisConfig(writeConfig(t, "cfg.yml", body))
	require.NoError(t, err)

	pc := cfg.PipelineConfig()
	assert.Equal(t, 50, pc.NEstimators)
	assert.Equal(t, 16, pc.MaxSamples)
	assert.Equal(t, 0.2, pc.Contamination)
	assert.Equal(t, int64(0), pc.Seed)
	assert.True(t, pc.Bootstrap)

	opts := cfg.TableOptions()
	assert.False(t, opts.IncludeScore)
	assert.True(t, opts.LegacyLabel)
}

func TestLoadAnalysisConfigJSON(t *testing.T) {
	cfg, err := LoadAnalysisConfig(writeConfig(t, "cfg.json", `{"detection": {"n_estimators": 10}}`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Detection.NEstimators)
}

func TestLoadAnalysisConfigRejectsBadHyperparameters(t *testing.T) {
	cases := map[string]string{
		"contamination": "detection:\n  contamination: 1.5\n",
		"estimators":    "detection:\n  n_estimators: -3\n",
		"max_samples":   "detection:\n  max_samples: -1\n",
		"source":        "input:\n  source: kafka\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadAnalysisConfig(writeConfig(t, "cfg.yaml", body))
			require.ErrorIs(t, err, pipeline.ErrConfiguration)
		})
	}
}

func TestLoadAnalysisConfigMissingFile(t *testing.T) {
	_, err := LoadAnalysisConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	def := GetDefaultAnalysisConfig()
	require.NoError(t, def.Validate())
	require.NoError(t, def.SaveConfig(path))

	loaded, err := LoadAnalysisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, def, loaded)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := LoadAnalysisConfig("../../configs/traffic_analysis.yaml")
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultConfig(), cfg.PipelineConfig())
	assert.Equal(t, []string{"default"}, cfg.Hubble.Namespaces)
}

func TestNewLoggerLevels(t *testing.T) {
	assert.Equal(t, "debug", NewLogger("DEBUG").GetLevel().String())
	assert.Equal(t, "warning", NewLogger("warn").GetLevel().String())
	assert.Equal(t, "info", NewLogger("").GetLevel().String())
}

func TestPrometheusSourceDefaults(t *testing.T) {
	cfg := &AnalysisConfig{Input: InputConfig{Source: SourcePrometheus}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:9090", cfg.Prometheus.URL)
	assert.Equal(t, "pod", cfg.Prometheus.Label)
	assert.Equal(t, 60, cfg.Prometheus.WindowMinutes)
	assert.Equal(t, 30, cfg.Prometheus.TimeoutSeconds)
}
