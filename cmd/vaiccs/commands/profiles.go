package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage enrolled speaker profiles",
	Long: `Manage the speaker profiles captions are attributed against.

A profile pairs a name with a voice embedding computed from one or more WAV
recordings of that speaker. The daemon matches every finished utterance
against all profiles and prefixes the caption with the best match when its
score clears speaker.threshold.`,
}

var profilesCreateCmd = &cobra.Command{
	Use:   "create <name> <recording.wav>...",
	Short: "Enroll a new speaker",
	Long: `Enroll a new speaker from one or more WAV recordings.

The embedding is the mean of the per-recording embeddings, so a few short,
clean recordings beat one long noisy one. Recordings are copied into the
profile folder for later re-enrollment.

Examples:
  vaiccs profiles create "Ada Lovelace" ada1.wav ada2.wav`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProfileStore(cmd, func(ctx context.Context, _ *config.Config, st profile.Store) error {
			p, err := st.Create(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("Created profile %q from %d recording(s)\n", p.Name, len(p.SourceFiles))
			return nil
		})
	},
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withProfileStore(cmd, func(ctx context.Context, _ *config.Config, st profile.Store) error {
			profiles, err := st.List(ctx)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Println("No profiles enrolled.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tRECORDINGS\tCREATED\tUPDATED")
			for _, p := range profiles {
				updated := "-"
				if p.UpdatedAt != nil {
					updated = p.UpdatedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					p.Name,
					len(p.SourceFiles),
					p.CreatedAt.Local().Format("2006-01-02 15:04"),
					updated,
				)
			}
			return w.Flush()
		})
	},
}

var profilesMatchTopK int

var profilesMatchCmd = &cobra.Command{
	Use:   "match <recording.wav>",
	Short: "Rank profiles against a recording",
	Long: `Rank the enrolled profiles against a WAV recording by voice similarity.

Scores are cosine similarities in [-1, 1]. Matching is a pure ranking; the
daemon additionally applies speaker.threshold before accepting the best
match, but the full list is shown here so near misses are visible.

Examples:
  vaiccs profiles match unknown.wav
  vaiccs profiles match unknown.wav -k 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProfileStore(cmd, func(ctx context.Context, cfg *config.Config, st profile.Store) error {
			pcm, rate, channels, err := audio.ReadWAVFile(args[0])
			if err != nil {
				return err
			}
			if channels > 1 {
				pcm = audio.DownmixMono(pcm, channels)
			}

			topK := profilesMatchTopK
			if topK <= 0 {
				topK = cfg.Speaker.TopK
			}

			matches, err := st.Match(ctx, audio.Float64Samples(pcm), rate, topK)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("No profiles to match against.")
				return nil
			}
			for _, m := range matches {
				fmt.Printf("%s: %.4f\n", m.Name, m.Score)
			}
			return nil
		})
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProfileStore(cmd, func(ctx context.Context, _ *config.Config, st profile.Store) error {
			if err := st.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted profile %q\n", args[0])
			return nil
		})
	},
}

var (
	profilesEditRename  string
	profilesEditAdd     []string
	profilesEditRemove  []string
	profilesEditReplace []string
)

var profilesEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Re-enroll, rename, or prune a profile",
	Long: `Edit an enrolled profile.

--add averages new recordings into the existing embedding. --replace
discards the old recordings and embedding and rebuilds from the given set.
--remove deletes stored recordings by base name. --rename moves the profile
to a new name. Flags combine; an edit that would leave no recordings fails
without changing anything.

Examples:
  vaiccs profiles edit "Ada" --add ada3.wav
  vaiccs profiles edit "Ada" --replace fresh1.wav --replace fresh2.wav
  vaiccs profiles edit "Ada" --rename "Ada L."`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := profile.EditOptions{
			Add:     profilesEditAdd,
			Remove:  profilesEditRemove,
			Replace: profilesEditReplace,
			Rename:  profilesEditRename,
		}
		if len(opts.Add) == 0 && len(opts.Remove) == 0 && len(opts.Replace) == 0 && opts.Rename == "" {
			return errors.New("nothing to do: pass at least one of --add, --remove, --replace, --rename")
		}
		return withProfileStore(cmd, func(ctx context.Context, _ *config.Config, st profile.Store) error {
			p, err := st.Edit(ctx, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Printf("Updated profile %q (%d recording(s))\n", p.Name, len(p.SourceFiles))
			return nil
		})
	},
}

func init() {
	profilesMatchCmd.Flags().IntVarP(&profilesMatchTopK, "top", "k", 0, "matches to show (default: speaker.top_k from the config)")

	profilesEditCmd.Flags().StringVar(&profilesEditRename, "rename", "", "move the profile to a new name")
	profilesEditCmd.Flags().StringArrayVar(&profilesEditAdd, "add", nil, "WAV recording to average into the embedding (repeatable)")
	profilesEditCmd.Flags().StringArrayVar(&profilesEditRemove, "remove", nil, "stored recording base name to delete (repeatable)")
	profilesEditCmd.Flags().StringArrayVar(&profilesEditReplace, "replace", nil, "WAV recording to rebuild from, discarding the rest (repeatable)")

	profilesCmd.AddCommand(profilesCreateCmd)
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesMatchCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
	profilesCmd.AddCommand(profilesEditCmd)
}
