package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/journal"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
)

// loadConfig loads the file behind --config. A missing file is an error with
// a hint; the daemon refuses to guess its deployment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", cfgFile)
		}
		return nil, err
	}
	return cfg, nil
}

// loadConfigOrDefault loads the file behind --config, falling back to the
// built-in defaults when the default path does not exist. Management
// commands work in a fresh directory this way. An explicitly passed
// --config that is missing still errors.
func loadConfigOrDefault(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr, leaving stdout free for
// command output. The returned LevelVar lets the config watcher retune
// verbosity on a running daemon.
func newLogger(cfg config.LogConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == config.LogJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h), level
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openProfileStore builds the speaker profile store selected by the config,
// through the same builders the daemon uses. The caller owns the returned
// store and must Close it.
func openProfileStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (profile.Store, error) {
	reg := config.NewRegistry()
	registerBuiltinComponents(reg)

	st, err := reg.CreateStore(ctx, cfg.Speaker, log)
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	return st, nil
}

// withProfileStore loads the config, opens the configured profile store,
// runs fn, and closes the store again. Shared by the profiles subcommands.
func withProfileStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, st profile.Store) error) error {
	cfg, err := loadConfigOrDefault(cmd)
	if err != nil {
		return err
	}
	log, _ := newLogger(cfg.Log)

	st, err := openProfileStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(cmd.Context(), cfg, st)
}

// openJournal opens the caption journal for reading. The journal holds an
// exclusive directory lock, so this fails while the daemon is running.
func openJournal(cfg *config.Config, log *slog.Logger) (*journal.Journal, error) {
	if !cfg.Journal.IsEnabled() || cfg.Journal.Dir == "" {
		return nil, errors.New("the caption journal is disabled in the configuration")
	}
	return journal.Open(cfg.Journal.Dir, journal.WithLogger(log))
}
