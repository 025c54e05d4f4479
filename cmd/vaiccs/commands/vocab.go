package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/vocab"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Manage the custom recognition vocabulary",
	Long: `Manage the custom vocabulary used to bias recognition.

Words added here are passed to the recognition engines as bias terms and
drive phonetic correction of near-miss transcriptions. A running daemon
picks up changes within a few seconds; no restart needed.`,
}

var vocabAddCmd = &cobra.Command{
	Use:   "add <word> [sample.wav...]",
	Short: "Add a word, optionally with pronunciation samples",
	Long: `Add a word to the vocabulary.

Sample recordings of the word being spoken are stored alongside it. They
are not used at runtime today but keep the option of engine-specific
pronunciation tuning open without re-collecting audio.

Examples:
  vaiccs vocab add kubernetes
  vaiccs vocab add "Okonkwo" okonkwo1.wav okonkwo2.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openVocabStore(cmd)
		if err != nil {
			return err
		}
		entry, err := st.Add(args[0], args[1:]...)
		if err != nil {
			return err
		}
		if len(entry.Samples) > 0 {
			fmt.Printf("Added %q (%d sample(s))\n", entry.Word, len(entry.Samples))
		} else {
			fmt.Printf("Added %q\n", entry.Word)
		}
		return nil
	},
}

var vocabRemoveCmd = &cobra.Command{
	Use:   "remove <word>",
	Short: "Remove a word",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openVocabStore(cmd)
		if err != nil {
			return err
		}
		if err := st.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %q\n", args[0])
		return nil
	},
}

var vocabListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vocabulary words",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openVocabStore(cmd)
		if err != nil {
			return err
		}
		entries := st.List()
		if len(entries) == 0 {
			fmt.Println("Vocabulary is empty.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WORD\tSAMPLES\tADDED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\n", e.Word, len(e.Samples), e.AddedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

// openVocabStore opens the vocabulary store at the configured directory.
func openVocabStore(cmd *cobra.Command) (*vocab.Store, error) {
	cfg, err := loadConfigOrDefault(cmd)
	if err != nil {
		return nil, err
	}
	return vocab.New(cfg.Vocabulary.Dir)
}

func init() {
	vocabCmd.AddCommand(vocabAddCmd)
	vocabCmd.AddCommand(vocabRemoveCmd)
	vocabCmd.AddCommand(vocabListCmd)
}
