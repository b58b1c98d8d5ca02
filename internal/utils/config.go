package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"traffic-anomaly-detector/internal/pipeline"
	"traffic-anomaly-detector/internal/sink"

	"gopkg.in/yaml.v3"
)

// Input source kinds
const (
	SourceDirectory  = "directory"
	SourceHubble     = "hubble"
	SourcePrometheus = "prometheus"
)

type AnalysisConfig struct {
	Application ApplicationConfig `yaml:"application" json:"application"`
	Input       InputConfig       `yaml:"input" json:"input"`
	Output      OutputConfig      `yaml:"output" json:"output"`
	Detection   DetectionConfig   `yaml:"detection" json:"detection"`
	Hubble      HubbleConfig      `yaml:"hubble" json:"hubble"`
	Prometheus  PrometheusConfig  `yaml:"prometheus" json:"prometheus"`
	Alerting    AlertingConfig    `yaml:"alerting" json:"alerting"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

type ApplicationConfig struct {
	Name    string `yaml:"name" json:"name"`
	APIPort string `yaml:"api_port" json:"api_port"`
}

type InputConfig struct {
	Source     string   `yaml:"source" json:"source"`
	PcapDir    string   `yaml:"pcap_dir" json:"pcap_dir"`
	Extensions []string `yaml:"extensions" json:"extensions"`
}

type OutputConfig struct {
	Path              string `yaml:"path" json:"path"`
	IncludeScore      *bool  `yaml:"include_score,omitempty" json:"include_score,omitempty"`
	LegacyLabelColumn bool   `yaml:"legacy_label_column" json:"legacy_label_column"`
}

type DetectionConfig struct {
	NEstimators   int     `yaml:"n_estimators" json:"n_estimators"`
	MaxSamples    int     `yaml:"max_samples" json:"max_samples"`
	Contamination float64 `yaml:"contamination" json:"contamination"`
	Seed          *int64  `yaml:"seed,omitempty" json:"seed,omitempty"`
	Workers       int     `yaml:"workers" json:"workers"`
	Bootstrap     bool    `yaml:"bootstrap" json:"bootstrap"`
}

type HubbleConfig struct {
	Server         string   `yaml:"server" json:"server"`
	Namespaces     []string `yaml:"namespaces" json:"namespaces"`
	MaxFlows       int      `yaml:"max_flows" json:"max_flows"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
}

type PrometheusConfig struct {
	URL            string `yaml:"url" json:"url"`
	Label          string `yaml:"label" json:"label"`
	Match          string `yaml:"match" json:"match"`
	WindowMinutes  int    `yaml:"window_minutes" json:"window_minutes"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

type AlertingConfig struct {
	Enabled  bool                 `yaml:"enabled" json:"enabled"`
	Severity string               `yaml:"severity" json:"severity"`
	Channels AlertChannelsConfig  `yaml:"channels" json:"channels"`
	Telegram TelegramAlertsConfig `yaml:"telegram" json:"telegram"`
}

type AlertChannelsConfig struct {
	Log      bool `yaml:"log" json:"log"`
	Telegram bool `yaml:"telegram" json:"telegram"`
}

type TelegramAlertsConfig struct {
	BotToken        string `yaml:"bot_token" json:"bot_token"`
	ChatID          string `yaml:"chat_id" json:"chat_id"`
	ParseMode       string `yaml:"parse_mode" json:"parse_mode"`
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	MessageTemplate string `yaml:"message_template,omitempty" json:"message_template,omitempty"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"`
	Job            string `yaml:"job" json:"job"`
	TextfilePath   string `yaml:"textfile_path" json:"textfile_path"`
	// ListenPort serves /metrics after the run until interrupted; empty disables it
	ListenPort string `yaml:"listen_port" json:"listen_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// LoadAnalysisConfig reads a YAML (or .json) configuration file and validates it
func LoadAnalysisConfig(filename string) (*AnalysisConfig, error) {
	if filename == "" {
		filename = "configs/traffic_analysis.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config AnalysisConfig
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file %s: %w", filename, err)
		}
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate fills defaults and rejects invalid detection hyperparameters
func (c *AnalysisConfig) Validate() error {
	if c.Application.Name == "" {
		c.Application.Name = "traffic-analyzer"
	}
	if c.Application.APIPort == "" {
		c.Application.APIPort = "5001"
	}

	if c.Input.Source == "" {
		c.Input.Source = SourceDirectory
	}
	switch c.Input.Source {
	case SourceDirectory, SourceHubble, SourcePrometheus:
	default:
		return fmt.Errorf("%w: unknown input source %q", pipeline.ErrConfiguration, c.Input.Source)
	}
	if len(c.Input.Extensions) == 0 {
		c.Input.Extensions = []string{".pcap"}
	}
	for i, ext := range c.Input.Extensions {
		if !strings.HasPrefix(ext, ".") {
			c.Input.Extensions[i] = "." + ext
		}
	}

	if c.Output.IncludeScore == nil {
		include := true
		c.Output.IncludeScore = &include
	}

	defaults := pipeline.DefaultConfig()
	if c.Detection.NEstimators == 0 {
		c.Detection.NEstimators = defaults.NEstimators
	}
	if c.Detection.Contamination == 0 {
		c.Detection.Contamination = defaults.Contamination
	}
	if c.Detection.Seed == nil {
		seed := defaults.Seed
		c.Detection.Seed = &seed
	}
	if err := c.PipelineConfig().Validate(); err != nil {
		return err
	}

	if c.Hubble.Server == "" {
		c.Hubble.Server = "localhost:4245"
	}
	if c.Hubble.MaxFlows <= 0 {
		c.Hubble.MaxFlows = 10000
	}
	if c.Hubble.TimeoutSeconds <= 0 {
		c.Hubble.TimeoutSeconds = 30
	}

	if c.Prometheus.URL == "" {
		c.Prometheus.URL = "http://localhost:9090"
	}
	if c.Prometheus.Label == "" {
		c.Prometheus.Label = "pod"
	}
	if c.Prometheus.WindowMinutes <= 0 {
		c.Prometheus.WindowMinutes = 60
	}
	if c.Prometheus.TimeoutSeconds <= 0 {
		c.Prometheus.TimeoutSeconds = 30
	}

	if c.Alerting.Severity == "" {
		c.Alerting.Severity = "HIGH"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = c.Application.Name
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// PipelineConfig returns the scorer configuration
func (c *AnalysisConfig) PipelineConfig() pipeline.Config {
	cfg := pipeline.Config{
		NEstimators:   c.Detection.NEstimators,
		MaxSamples:    c.Detection.MaxSamples,
		Contamination: c.Detection.Contamination,
		Workers:       c.Detection.Workers,
		Bootstrap:     c.Detection.Bootstrap,
	}
	if c.Detection.Seed != nil {
		cfg.Seed = *c.Detection.Seed
	}
	return cfg
}

// TableOptions returns the output column options
func (c *AnalysisConfig) TableOptions() sink.TableOptions {
	opts := sink.TableOptions{
		IncludeScore: true,
		LegacyLabel:  c.Output.LegacyLabelColumn,
	}
	if c.Output.IncludeScore != nil {
		opts.IncludeScore = *c.Output.IncludeScore
	}
	return opts
}

// GetDefaultAnalysisConfig returns a default AnalysisConfig
func GetDefaultAnalysisConfig() *AnalysisConfig {
	include := true
	seed := int64(42)
	return &AnalysisConfig{
		Application: ApplicationConfig{
			Name:    "traffic-analyzer",
			APIPort: "5001",
		},
		Input: InputConfig{
			Source:     SourceDirectory,
			PcapDir:    "sample_pcaps",
			Extensions: []string{".pcap"},
		},
		Output: OutputConfig{
			Path:         "reports/anomaly_report.csv",
			IncludeScore: &include,
		},
		Detection: DetectionConfig{
			NEstimators:   200,
			MaxSamples:    0,
			Contamination: 0.15,
			Seed:          &seed,
		},
		Hubble: HubbleConfig{
			Server:         "localhost:4245",
			Namespaces:     []string{"default"},
			MaxFlows:       10000,
			TimeoutSeconds: 30,
		},
		Prometheus: PrometheusConfig{
			URL:            "http://localhost:9090",
			Label:          "pod",
			Match:          "hubble_flows_processed_total",
			WindowMinutes:  60,
			TimeoutSeconds: 30,
		},
		Alerting: AlertingConfig{
			Enabled:  true,
			Severity: "HIGH",
			Channels: AlertChannelsConfig{
				Log:      true,
				Telegram: false,
			},
			Telegram: TelegramAlertsConfig{
				ParseMode: "Markdown",
			},
		},
		Metrics: MetricsConfig{
			Job: "traffic-analyzer",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// SaveConfig writes the configuration as YAML
func (c *AnalysisConfig) SaveConfig(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
