package utils

import (
	"time"

	"traffic-anomaly-detector/internal/alert"
	"traffic-anomaly-detector/internal/client"
	"traffic-anomaly-detector/internal/pipeline"
	"traffic-anomaly-detector/internal/sink"
	"traffic-anomaly-detector/internal/source"

	"github.com/sirupsen/logrus"
)

// BuildSource creates the identifier source selected by input.source. The returned
// close function releases any connection held by the source and is never nil.
func BuildSource(config *AnalysisConfig, metrics *client.PrometheusMetrics, logger *logrus.Logger) (pipeline.Source, func(), error) {
	noop := func() {}

	switch config.Input.Source {
	case SourceHubble:
		hubbleClient, err := client.NewHubbleGRPCClient(config.Hubble.Server, metrics, logger)
		if err != nil {
			return nil, noop, err
		}
		src := client.NewHubbleSource(hubbleClient, config.Hubble.Namespaces,
			uint64(config.Hubble.MaxFlows), time.Duration(config.Hubble.TimeoutSeconds)*time.Second)
		return src, func() { _ = hubbleClient.Close() }, nil

	case SourcePrometheus:
		promClient, err := client.NewPrometheusClient(config.Prometheus.URL)
		if err != nil {
			return nil, noop, err
		}
		src := client.NewPrometheusSource(promClient, config.Prometheus.Label, config.Prometheus.Match,
			time.Duration(config.Prometheus.WindowMinutes)*time.Minute,
			time.Duration(config.Prometheus.TimeoutSeconds)*time.Second, metrics, logger)
		return src, noop, nil

	default:
		return source.NewDirSource(config.Input.PcapDir, config.Input.Extensions...), noop, nil
	}
}

// BuildSink creates the CSV sink for output.path
func BuildSink(config *AnalysisConfig) *sink.CSVSink {
	s := sink.NewCSVSink(config.Output.Path)
	s.Options = config.TableOptions()
	return s
}

// BuildNotifiers returns the alert channels enabled in config
func BuildNotifiers(config *AnalysisConfig, logger *logrus.Logger) []alert.Notifier {
	if !config.Alerting.Enabled {
		return nil
	}

	var notifiers []alert.Notifier
	if config.Alerting.Channels.Log {
		notifiers = append(notifiers, alert.NewLogAlertNotifier(logger))
	}

	if config.Alerting.Channels.Telegram && config.Alerting.Telegram.Enabled {
		notifiers = append(notifiers, alert.NewTelegramNotifierWithTemplate(
			config.Alerting.Telegram.BotToken,
			config.Alerting.Telegram.ChatID,
			config.Alerting.Telegram.ParseMode,
			config.Alerting.Telegram.Enabled,
			config.Alerting.Telegram.MessageTemplate,
			logger,
		))
	}
	return notifiers
}

// NewProcessor creates a processor for config with metrics and alert hooks registered
func NewProcessor(config *AnalysisConfig, metrics *client.PrometheusMetrics, logger *logrus.Logger) *pipeline.Processor {
	processor := pipeline.NewProcessor(config.PipelineConfig(), logger)
	if metrics != nil {
		processor.RegisterHook(metrics.Hook())
	}
	if notifiers := BuildNotifiers(config, logger); len(notifiers) > 0 {
		dispatcher := alert.NewDispatcher(config.Alerting.Severity, logger, notifiers...)
		processor.RegisterHook(dispatcher.Hook())
	}
	return processor
}
