package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	captionsExportOut  string
	captionsExportFrom string
	captionsExportTo   string
)

var captionsCmd = &cobra.Command{
	Use:   "captions",
	Short: "Work with the caption journal",
}

var captionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export journaled captions as SRT subtitles",
	Long: `Export captions from the journal as SRT subtitles.

Cue times are relative to the first exported caption, so exporting one
session yields subtitles that line up with a recording started at the same
moment. Heartbeat captions are skipped.

The journal directory is locked by a running daemon; stop it before
exporting.

Examples:
  vaiccs captions export -o session.srt
  vaiccs captions export --from 2026-08-25T09:00:00Z --to 2026-08-25T10:00:00Z`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfigOrDefault(cmd)
		if err != nil {
			return err
		}

		var from, to time.Time
		if captionsExportFrom != "" {
			if from, err = time.Parse(time.RFC3339, captionsExportFrom); err != nil {
				return fmt.Errorf("bad --from: %w", err)
			}
		}
		if captionsExportTo != "" {
			if to, err = time.Parse(time.RFC3339, captionsExportTo); err != nil {
				return fmt.Errorf("bad --to: %w", err)
			}
		}

		log, _ := newLogger(cfg.Log)
		jrnl, err := openJournal(cfg, log)
		if err != nil {
			return err
		}
		defer jrnl.Close()

		out := os.Stdout
		if captionsExportOut != "" {
			f, err := os.Create(captionsExportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		n, err := jrnl.ExportSRT(out, from, to)
		if err != nil {
			return err
		}
		if captionsExportOut != "" {
			fmt.Printf("Exported %d cue(s) to %s\n", n, captionsExportOut)
		} else {
			fmt.Fprintf(os.Stderr, "Exported %d cue(s)\n", n)
		}
		return nil
	},
}

func init() {
	captionsExportCmd.Flags().StringVarP(&captionsExportOut, "out", "o", "", "output file (default: stdout)")
	captionsExportCmd.Flags().StringVar(&captionsExportFrom, "from", "", "only captions at or after this RFC 3339 time")
	captionsExportCmd.Flags().StringVar(&captionsExportTo, "to", "", "only captions before this RFC 3339 time")

	captionsCmd.AddCommand(captionsExportCmd)
}
