package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/babara6666/PDF-OCR-batch/internal/api"
	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/constants"
	"github.com/babara6666/PDF-OCR-batch/internal/events"
	"github.com/babara6666/PDF-OCR-batch/internal/export"
	"github.com/babara6666/PDF-OCR-batch/internal/export/sinks"
	"github.com/babara6666/PDF-OCR-batch/internal/http"
	"github.com/babara6666/PDF-OCR-batch/internal/logging"
	"github.com/babara6666/PDF-OCR-batch/internal/metrics"
	"github.com/babara6666/PDF-OCR-batch/internal/notify"
	"github.com/babara6666/PDF-OCR-batch/internal/progress"
	"github.com/babara6666/PDF-OCR-batch/internal/services"
	"github.com/babara6666/PDF-OCR-batch/internal/state"
)

// loadConfig reads the config file and applies environment and flag
// overrides. Priority: flags > environment > config file > defaults.
func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfigCSV(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	cfg.MergeWithEnv()

	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// appOptions tunes newApp for a command.
type appOptions struct {
	IncludeCrop *bool  // Overrides cfg.IncludeCrop when set
	OutDir      string // Overrides cfg.OutputDir for the dir target
	Interactive bool   // Shell: no progress bar, indicator on stderr
	Out         io.Writer
}

// app wires one session to the backend client, the upload orchestrator
// and the export service.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	eventBus *events.EventBus
	client   *api.Client
	session  *state.Session
	uploader *services.UploadOrchestrator
	exporter *export.Service
	metrics  *metrics.Metrics
	out      io.Writer
	outDir   string // Local export directory; empty for object-storage targets

	stopNotify func()
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	log := GetLogger()
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if http.NeedsProxyPassword(cfg) {
		pw, err := promptPassword(fmt.Sprintf("Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = pw
	}

	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	client, err := api.NewClientWithHTTP(cfg, httpClient, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	sink, err := sinks.New(ctx, cfg, httpClient, opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("failed to configure export target: %w", err)
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	m := metrics.New()
	session := state.NewSession(bus)

	includeCrop := cfg.IncludeCrop
	if opts.IncludeCrop != nil {
		includeCrop = *opts.IncludeCrop
	}

	var reporter progress.Reporter = progress.NewCLIProgress()
	if opts.Interactive {
		reporter = progress.NewNoOpProgress()
	}

	uploader := services.NewUploadOrchestrator(session, client, bus, log, services.OrchestratorConfig{
		IncludeCrop: includeCrop,
		Reporter:    reporter,
		Indicator:   progress.NewProcessingIndicator(os.Stderr, "Processing on server"),
		Metrics:     m,
	})

	exporter := export.NewService(sink, sinks.SystemClipboard{}, bus, log, m)

	var outDir string
	if cfg.ExportTarget == config.ExportTargetDir {
		outDir = cfg.OutputDir
		if opts.OutDir != "" {
			outDir = opts.OutDir
		}
	}

	stopNotify := func() {}
	if cfg.Notify {
		stopNotify = notify.NewNotifier(true, log).Watch(bus)
	}

	return &app{
		cfg:      cfg,
		logger:   log,
		eventBus: bus,
		client:   client,
		session:  session,
		uploader: uploader,
		exporter: exporter,
		metrics:  m,
		out:      opts.Out,
		outDir:   outDir,

		stopNotify: stopNotify,
	}, nil
}

// writeMetrics flushes the metrics textfile when one is configured.
func (a *app) writeMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Warn().Err(err).Str("path", a.cfg.MetricsFile).Msg("Could not write metrics")
	}
}

func (a *app) Close() {
	a.writeMetrics()
	if a.stopNotify != nil {
		a.stopNotify()
	}
	if n := a.eventBus.GetDroppedEventCount(); n > 0 {
		a.logger.Warn().Int64("events", n).Msg("Slow subscribers missed events")
	}
	a.eventBus.Close()
}
