package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-anomaly-detector/internal/alert"
	"traffic-anomaly-detector/internal/client"
	"traffic-anomaly-detector/internal/pipeline"
	"traffic-anomaly-detector/internal/utils"

	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

const programName = "traffic_analyzer"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configFile         string
	pcapDir            string
	output             string
	source             string
	logLevel           string
	seed               int64
	nEstimators        int
	maxSamples         int
	contamination      float64
	workers            int
	showVersion        bool
	testTelegram       bool
	writeDefaultConfig string
	metricsPort        string
	set                map[string]bool
	configLoaded       bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{set: map[string]bool{}}

	flags := flag.NewFlagSet("traffic-analyzer", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.configFile, "config", "configs/traffic_analysis.yaml", "Configuration file path (YAML or JSON)")
	flags.StringVar(&opts.pcapDir, "pcap_dir", "", "Directory of capture files to score")
	flags.StringVar(&opts.output, "output", "", "Path of the CSV table to write")
	flags.StringVar(&opts.source, "source", "", "Identifier source: directory, hubble or prometheus")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	flags.Int64Var(&opts.seed, "seed", 0, "Random seed for the isolation forest")
	flags.IntVar(&opts.nEstimators, "n_estimators", 0, "Number of isolation trees")
	flags.IntVar(&opts.maxSamples, "max_samples", 0, "Rows sampled per tree (0 = min(256, rows))")
	flags.Float64Var(&opts.contamination, "contamination", 0, "Expected anomaly fraction in (0, 1)")
	flags.IntVar(&opts.workers, "workers", 0, "Trees built concurrently (0 = GOMAXPROCS)")
	flags.BoolVar(&opts.showVersion, "version", false, "Show version information")
	flags.BoolVar(&opts.testTelegram, "test-telegram", false, "Send test message to Telegram")
	flags.StringVar(&opts.metricsPort, "metrics-port", "", "Serve /metrics on this port after the run until interrupted")
	flags.StringVar(&opts.writeDefaultConfig, "write-default-config", "", "Write the default configuration to this path and exit")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: traffic-analyzer [flags] [pcap_dir] [output]\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	flags.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	// Positional form: traffic-analyzer <pcap_dir> <output>
	rest := flags.Args()
	if len(rest) > 2 {
		flags.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", rest[2:])
	}
	if len(rest) > 0 {
		opts.pcapDir = rest[0]
		opts.set["pcap_dir"] = true
	}
	if len(rest) > 1 {
		opts.output = rest[1]
		opts.set["output"] = true
	}
	return opts, nil
}

// loadConfig reads the configuration file, falling back to defaults when it does not exist
func loadConfig(opts *options, stderr io.Writer) (*utils.AnalysisConfig, error) {
	config, err := utils.LoadAnalysisConfig(opts.configFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if opts.set["config"] {
			fmt.Fprintf(stderr, "Config file %s not found, using default configuration\n", opts.configFile)
		}
		config = utils.GetDefaultAnalysisConfig()
	} else {
		opts.configLoaded = true
	}

	if opts.set["pcap_dir"] {
		config.Input.PcapDir = opts.pcapDir
		if !opts.set["source"] {
			config.Input.Source = utils.SourceDirectory
		}
	}
	if opts.set["output"] {
		config.Output.Path = opts.output
	}
	if opts.set["source"] {
		config.Input.Source = opts.source
	}
	if opts.set["log-level"] {
		config.Logging.Level = opts.logLevel
	}
	if opts.set["seed"] {
		config.Detection.Seed = &opts.seed
	}
	// Zero would otherwise be replaced by the configured default
	if opts.set["n_estimators"] && opts.nEstimators <= 0 {
		return nil, fmt.Errorf("%w: n_estimators must be >= 1, got %d", pipeline.ErrConfiguration, opts.nEstimators)
	}
	if opts.set["contamination"] && opts.contamination <= 0 {
		return nil, fmt.Errorf("%w: contamination must be in (0, 1), got %v", pipeline.ErrConfiguration, opts.contamination)
	}
	if opts.set["n_estimators"] {
		config.Detection.NEstimators = opts.nEstimators
	}
	if opts.set["max_samples"] {
		config.Detection.MaxSamples = opts.maxSamples
	}
	if opts.set["contamination"] {
		config.Detection.Contamination = opts.contamination
	}
	if opts.set["workers"] {
		config.Detection.Workers = opts.workers
	}
	if opts.set["metrics-port"] {
		config.Metrics.ListenPort = opts.metricsPort
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.showVersion {
		fmt.Fprintln(stdout, version.Print(programName))
		return exitOK
	}

	if opts.writeDefaultConfig != "" {
		if err := utils.GetDefaultAnalysisConfig().SaveConfig(opts.writeDefaultConfig); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "[ok] wrote %s\n", opts.writeDefaultConfig)
		return exitOK
	}

	config, err := loadConfig(opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	logger := utils.NewLoggerWithFormat(config.Logging.Level, config.Logging.Format)
	logger.SetOutput(stderr)

	if opts.testTelegram {
		return testTelegramNotification(ctx, config, logger, stdout, stderr)
	}

	if missing := missingArguments(opts, config); missing != "" {
		fmt.Fprintf(stderr, "error: %s is required\n", missing)
		return exitUsage
	}

	metrics := client.NewPrometheusMetrics(programName)
	processor := utils.NewProcessor(config, metrics, logger)

	src, closeSrc, err := utils.BuildSource(config, metrics, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer closeSrc()

	logger.WithFields(logrus.Fields{
		"source":        src.Describe(),
		"output":        config.Output.Path,
		"n_estimators":  config.Detection.NEstimators,
		"contamination": config.Detection.Contamination,
	}).Debug("Starting analysis")

	var exporter *alert.PrometheusExporter
	if config.Metrics.ListenPort != "" {
		exporter = alert.NewPrometheusExporter(config.Metrics.ListenPort, metrics.Registry, logger)
		if err := exporter.Listen(); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitError
		}
	}

	code := exitOK
	result, err := processor.Execute(ctx, src, utils.BuildSink(config))
	if err != nil {
		metrics.RecordFailure()
		fmt.Fprintf(stderr, "error: %v\n", err)
		code = exitError
	} else {
		logSummary(logger, result)
		fmt.Fprintf(stdout, "[ok] wrote %s\n", result.Output)
	}
	exportMetrics(ctx, config, metrics, logger)

	if exporter != nil {
		fmt.Fprintf(stdout, "[ok] serving metrics on http://%s/metrics\n", exporter.Addr())
		if err := exporter.Serve(ctx); err != nil {
			logger.Warnf("Metrics exporter failed: %v", err)
		}
	}
	return code
}

// missingArguments names the first required location not supplied. Unless a config
// file was named with -config and loaded, both locations must come from the command line.
func missingArguments(opts *options, config *utils.AnalysisConfig) string {
	explicit := opts.set["config"] && opts.configLoaded
	if config.Input.Source == utils.SourceDirectory && !opts.set["pcap_dir"] && (!explicit || config.Input.PcapDir == "") {
		return "an input directory (-pcap_dir)"
	}
	if !opts.set["output"] && (!explicit || config.Output.Path == "") {
		return "an output path (-output)"
	}
	return ""
}

func logSummary(logger *logrus.Logger, result *pipeline.RunResult) {
	logger.WithFields(logrus.Fields{
		"total":        result.Summary.Total,
		"anomalous":    result.Summary.Anomalous,
		"score_mean":   fmt.Sprintf("%.4f", result.Summary.ScoreMean),
		"score_stddev": fmt.Sprintf("%.4f", result.Summary.ScoreStdDev),
		"score_p95":    fmt.Sprintf("%.4f", result.Summary.ScoreP95),
	}).Info("Score summary")
}

// exportMetrics pushes or writes the run metrics when a destination is configured.
// Failures are logged and never change the exit code.
func exportMetrics(ctx context.Context, config *utils.AnalysisConfig, metrics *client.PrometheusMetrics, logger *logrus.Logger) {
	if config.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := alert.PushMetrics(pushCtx, config.Metrics.PushgatewayURL, config.Metrics.Job, metrics.Registry); err != nil {
			logger.Warnf("Metrics push failed: %v", err)
		}
	}
	if config.Metrics.TextfilePath != "" {
		if err := alert.WriteTextfile(config.Metrics.TextfilePath, metrics.Registry); err != nil {
			logger.Warnf("Metrics textfile failed: %v", err)
		}
	}
}

func testTelegramNotification(ctx context.Context, config *utils.AnalysisConfig, logger *logrus.Logger, stdout, stderr io.Writer) int {
	tg := config.Alerting.Telegram
	notifier := alert.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.ParseMode, tg.Enabled, logger)
	if err := notifier.SendTestMessage(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, "[ok] Telegram test message sent")
	return exitOK
}
