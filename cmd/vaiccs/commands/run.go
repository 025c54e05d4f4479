package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/app"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
)

// shutdownTimeout bounds graceful teardown after the run context ends.
const shutdownTimeout = 15 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the captioning daemon",
	Long: `Run the captioning daemon until SIGINT or SIGTERM.

The daemon captures audio from the configured source, recognizes it with
the configured engine chain, and emits speaker-attributed captions to every
configured sink. With no engines configured it still runs end to end,
emitting heartbeat captions so the capture path can be verified before any
model is installed.

The config file is watched while running: log level changes apply
immediately, anything else is reported as needing a restart.

Examples:
  vaiccs run
  vaiccs run -c /etc/vaiccs/config.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, level := newLogger(cfg.Log)
		slog.SetDefault(logger)

		slog.Info("vaiccs starting",
			"version", version,
			"config", cfgFile,
			"source", string(cfg.Source.Kind),
			"engines", len(cfg.Engines),
		)

		reg := config.NewRegistry()
		registerBuiltinComponents(reg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printStartupSummary(cfg)

		application, err := app.New(ctx, cfg, reg, app.WithVersion(version))
		if err != nil {
			return fmt.Errorf("initialise service: %w", err)
		}

		watcher, err := config.NewWatcher(cfgFile, func(old, new *config.Config) {
			applyConfigChange(level, old, new)
		})
		if err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}

		slog.Info("service ready, press Ctrl+C to shut down")

		runErr := application.Run(ctx)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		slog.Info("stopping")
		shutdownErr := application.Shutdown(shutdownCtx)

		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		slog.Info("goodbye")
		return nil
	},
}

// applyConfigChange applies what a running daemon can absorb from a config
// file edit and reports the rest.
func applyConfigChange(level *slog.LevelVar, old, new *config.Config) {
	changes := config.Diff(old, new)
	if !changes.Any() {
		return
	}
	if changes.LogLevel {
		level.Set(slogLevel(changes.NewLogLevel))
		slog.Info("log level changed", "level", string(changes.NewLogLevel))
	}
	if len(changes.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to apply",
			"sections", strings.Join(changes.RestartRequired, ", "),
		)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║          VAICCS startup summary        ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printSummaryRow("Source", sourceSummary(cfg))
	printSummaryRow("Engines", engineSummary(cfg.Engines))
	printSummaryRow("Speaker store", string(cfg.Speaker.Store))
	printSummaryRow("Vocabulary", cfg.Vocabulary.Dir)
	printSummaryRow("Punctuation", punctuationSummary(cfg.Punctuation))
	printSummaryRow("Denoise", cfg.Denoise.Mode)
	printSummaryRow("Sinks", strings.Join(cfg.Sinks.Enabled(), ", "))
	printSummaryRow("Journal", journalSummary(cfg.Journal))
	printSummaryRow("Health", healthSummary(cfg.Health))
	fmt.Println("╚════════════════════════════════════════╝")
}

func printSummaryRow(label, value string) {
	if value == "" {
		value = "(none)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func sourceSummary(cfg *config.Config) string {
	switch cfg.Source.Kind {
	case config.SourceFile:
		return "file " + cfg.Source.File.Path
	case config.SourceWebSocket:
		return "websocket " + cfg.Source.WebSocket.Addr
	}
	return string(cfg.Source.Kind)
}

func engineSummary(engines []config.EngineConfig) string {
	if len(engines) == 0 {
		return "(heartbeat mode)"
	}
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.Name
	}
	return strings.Join(names, " > ")
}

func punctuationSummary(cfg config.PunctuationConfig) string {
	if cfg.Mode == config.PunctuationLLM {
		return "llm " + cfg.LLM.Provider + "/" + cfg.LLM.Model
	}
	return string(cfg.Mode)
}

func journalSummary(cfg config.JournalConfig) string {
	if !cfg.IsEnabled() {
		return "(disabled)"
	}
	return cfg.Dir
}

func healthSummary(cfg config.HealthConfig) string {
	if cfg.Addr == "" {
		return "(disabled)"
	}
	if cfg.MetricsEnabled() {
		return cfg.Addr + " +metrics"
	}
	return cfg.Addr
}
