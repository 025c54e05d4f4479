// Package commands implements the vaiccs command tree.
package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is stamped at release time via
// -ldflags "-X .../cmd/vaiccs/commands.version=v1.2.3".
var version = "dev"

// cfgFile is the --config persistent flag shared by every command.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vaiccs",
	Short: "Live captioning with speaker identification",
	Long: `VAICCS captions a live audio stream and labels each caption with the
enrolled speaker it most resembles.

The daemon (vaiccs run) ingests PCM audio from a websocket or a WAV file,
recognizes it with a chain of engines (Vosk, whisper.cpp, Deepgram),
corrects custom vocabulary, redacts restricted words, punctuates,
attributes a speaker by voice embedding, and fans the finished captions
out to the configured sinks (stdout, file, SRT, websocket, Discord). The remaining
commands manage the state the daemon works with: speaker profiles, the
custom vocabulary, and the caption journal.

Examples:
  # Start the daemon
  vaiccs run -c config.yaml

  # Enroll a speaker from two recordings
  vaiccs profiles create "Ada" ada1.wav ada2.wav

  # Teach the recognizer a project term
  vaiccs vocab add kubernetes

  # Export a morning's captions as subtitles
  vaiccs captions export --from 2026-08-25T09:00:00Z -o morning.srt`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Errors are returned to main for printing so they
// appear exactly once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(vocabCmd)
	rootCmd.AddCommand(captionsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vaiccs version",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("vaiccs %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
