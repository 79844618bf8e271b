package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/cueplex/cueplex/cmd"
	"github.com/cueplex/cueplex/internal/api"
	"github.com/cueplex/cueplex/internal/config"
	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/health"
	"github.com/cueplex/cueplex/internal/logging"
	"github.com/cueplex/cueplex/internal/manifest"
	"github.com/cueplex/cueplex/internal/metrics/exporters"
	"github.com/cueplex/cueplex/internal/orchestrator"
	"github.com/cueplex/cueplex/internal/presets"
	"github.com/cueplex/cueplex/internal/scte35"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Stream settings
	PresetsFile string `help:"Stream presets file" default:"presets.toml" toml:"streams.presets_file" env:"PRESETS_FILE"`
	OutputDir   string `help:"Base directory for manifests and segments" default:"streams" toml:"streams.output_dir" env:"OUTPUT_DIR"`
	Autostart   bool   `help:"Start autostart presets on boot" default:"true" toml:"streams.autostart" env:"AUTOSTART"`

	// Ad-marker settings
	SCTE35SequenceStart uint64 `help:"Initial splice sequence number" default:"100000" toml:"scte35.sequence_start" env:"SCTE35_SEQUENCE_START"`

	// Health monitor settings
	HealthIntervalSeconds int `help:"Health sampling interval in seconds" default:"5" toml:"health.interval_seconds" env:"HEALTH_INTERVAL_SECONDS"`

	// Metrics settings
	MetricsSSEEnabled bool `help:"Publish periodic metrics events over SSE" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStreams  string `help:"Stream orchestration logging level" default:"info" toml:"logging.streams" env:"LOGGING_STREAMS"`
	LoggingSCTE35   string `help:"Ad-marker logging level" default:"info" toml:"logging.scte35" env:"LOGGING_SCTE35"`
	LoggingManifest string `help:"Manifest logging level" default:"info" toml:"logging.manifest" env:"LOGGING_MANIFEST"`
	LoggingHealth   string `help:"Health monitor logging level" default:"info" toml:"logging.health" env:"LOGGING_HEALTH"`
	LoggingEncoder  string `help:"Encoder subprocess logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"streams":  opts.LoggingStreams,
				"scte35":   opts.LoggingSCTE35,
				"manifest": opts.LoggingManifest,
				"health":   opts.LoggingHealth,
				"encoder":  opts.LoggingEncoder,
				"api":      opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		bus := events.New()

		logging.SetLogCallback(func(entry logging.LogEntry) {
			bus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		injector := scte35.New(
			scte35.WithBus(bus),
			scte35.WithSequencer(scte35.NewSequencer(opts.SCTE35SequenceStart)),
		)

		monitor := health.NewMonitor(
			health.WithBus(bus),
			health.WithInterval(time.Duration(opts.HealthIntervalSeconds)*time.Second),
		)

		generators := []manifest.Generator{
			manifest.NewHLS(bus),
			manifest.NewDASH(bus),
		}

		orch := orchestrator.New(injector, monitor, bus, generators)

		store := presets.NewStore(opts.PresetsFile)
		if loadErr := store.Load(); loadErr != nil {
			logger.Warn("Failed to load presets", "error", loadErr)
		}

		presetsWatcher := config.NewConfigWatcher(opts.PresetsFile, presets.ReadFile,
			logging.GetLogger("streams"))
		presetsWatcher.OnReload(func(loaded map[string]presets.Preset) {
			store.Replace(loaded)
			logger.Info("Presets reloaded", "count", len(loaded))
		})

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSEEnabled {
			sseExporter = exporters.NewSSEExporter(bus)
		}

		server := api.NewServer(&api.Options{
			Orchestrator:      orch,
			Injector:          injector,
			Monitor:           monitor,
			Presets:           store,
			Bus:               bus,
			PrometheusHandler: exporters.HTTPHandler(),
		})

		hooks.OnStart(func() {
			if sseExporter != nil {
				sseExporter.Start(context.Background())
			}

			if watchErr := presetsWatcher.Start(); watchErr != nil {
				logger.Warn("Presets watcher unavailable", "error", watchErr)
			}

			if opts.Autostart {
				for _, preset := range store.Autostart() {
					streamConfig := preset.Stream
					if streamConfig.OutputDir == "" {
						streamConfig.OutputDir = opts.OutputDir
					}
					if _, startErr := orch.StartStream(streamConfig); startErr != nil {
						logger.Error("Failed to autostart stream",
							"stream_id", streamConfig.Name, "error", startErr)
					}
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Encoders go down after the API stops taking requests
			orch.Shutdown()

			if sseExporter != nil {
				sseExporter.Stop()
			}
			if stopErr := presetsWatcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping presets watcher", "error", stopErr)
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateValidatePresetsCmd())
	cli.Root().AddCommand(cmd.CreatePipelineCmd())

	cli.Run()
}
