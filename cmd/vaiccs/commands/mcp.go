package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/journal"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve profile and caption tools over MCP stdio",
	Long: `Serve the Model Context Protocol over stdio.

Exposes three read-only tools: profiles_list, profiles_match (taking a WAV
path) and captions_tail. Point an MCP-capable client at "vaiccs mcp" to let
it look up who is speaking and what was recently said.

A running daemon holds the journal lock, in which case the caption tools
report the journal as unavailable while the profile tools keep working.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfigOrDefault(cmd)
		if err != nil {
			return err
		}
		log, _ := newLogger(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openProfileStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer st.Close()

		var jrnl *journal.Journal
		if cfg.Journal.IsEnabled() && cfg.Journal.Dir != "" {
			jrnl, err = journal.Open(cfg.Journal.Dir, journal.WithLogger(log))
			if err != nil {
				// Most likely the daemon holds the lock. Profile tools
				// are still worth serving.
				log.Warn("caption journal unavailable", "error", err)
				jrnl = nil
			} else {
				defer jrnl.Close()
			}
		}

		srv := mcpserver.New(st, jrnl,
			mcpserver.WithLogger(log),
			mcpserver.WithVersion(version),
			mcpserver.WithTopK(cfg.Speaker.TopK),
		)
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
