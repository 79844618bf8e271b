package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cueplex/cueplex/internal/encoder"
	"github.com/cueplex/cueplex/internal/logging"
	"github.com/cueplex/cueplex/internal/orchestrator"
	"github.com/cueplex/cueplex/internal/presets"
	"github.com/cueplex/cueplex/internal/process"
)

// CreatePipelineCmd creates the pipeline command. It runs a single
// encoder pipeline for a saved stream without the orchestration daemon,
// useful for debugging encoder parameters in isolation.
func CreatePipelineCmd() *cobra.Command {
	var presetsFile string
	var format string
	var logJSON bool
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "pipeline <stream-name>",
		Short: "Run one encoder pipeline standalone",
		Long: `Loads a stream configuration from the presets file and runs its encoder ` +
			`subprocess in the foreground with lifecycle management and graceful shutdown. ` +
			`Manifest maintenance and ad-marker injection are not available in this mode.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			name := args[0]

			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("pipeline").With("stream_id", name)

			store := presets.NewStore(presetsFile)
			if err := store.Load(); err != nil {
				logger.Error("Failed to load presets", "error", err, "path", presetsFile)
				os.Exit(1)
			}
			preset, ok := store.Get(name)
			if !ok {
				logger.Error("Preset not found", "path", presetsFile)
				os.Exit(1)
			}
			config := preset.Stream
			if err := config.Validate(); err != nil {
				logger.Error("Invalid stream configuration", "error", err)
				os.Exit(1)
			}
			if !config.HasFormat(format) {
				logger.Error("Format not enabled for stream", "format", format)
				os.Exit(1)
			}

			command := encoder.BuildCommand(config.EncoderParams(format))
			if printOnly {
				fmt.Println(command)
				return
			}

			proc := process.New(name+"-"+format, command, logger)
			proc.SetLogParser(logging.GetLogger("encoder").With("stream_id", name),
				encoder.ParseLogLevel)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("Shutdown signal received")
				proc.Shutdown()
			}()

			os.Exit(proc.RunWithRestart())
		},
	}

	cmd.Flags().StringVarP(&presetsFile, "presets", "f", "presets.toml", "Presets file")
	cmd.Flags().StringVar(&format, "format", orchestrator.FormatHLS, "Output format (hls, dash)")
	cmd.Flags().BoolVar(&logJSON, "json", false, "JSON log output")
	cmd.Flags().BoolVar(&printOnly, "print-command", false, "Print the encoder command and exit")
	return cmd
}
