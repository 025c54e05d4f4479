package transcript_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChainAppliesStagesInOrder(t *testing.T) {
	t.Parallel()

	chain := transcript.NewChain(discardLogger(),
		transcript.StageFunc{Label: "upper", Fn: func(_ context.Context, s string) (string, error) {
			return strings.ToUpper(s), nil
		}},
		transcript.StageFunc{Label: "suffix", Fn: func(_ context.Context, s string) (string, error) {
			return s + "!", nil
		}},
	)

	got := chain.Process(context.Background(), "abc")
	if got != "ABC!" {
		t.Errorf("Process: got %q, want %q", got, "ABC!")
	}
}

func TestChainStageErrorPassesTextThrough(t *testing.T) {
	t.Parallel()

	chain := transcript.NewChain(discardLogger(),
		transcript.StageFunc{Label: "upper", Fn: func(_ context.Context, s string) (string, error) {
			return strings.ToUpper(s), nil
		}},
		transcript.StageFunc{Label: "broken", Fn: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("boom")
		}},
		transcript.StageFunc{Label: "suffix", Fn: func(_ context.Context, s string) (string, error) {
			return s + "!", nil
		}},
	)

	// The broken stage must not lose the utterance; the text from before it
	// carries into the next stage.
	got := chain.Process(context.Background(), "abc")
	if got != "ABC!" {
		t.Errorf("Process: got %q, want %q", got, "ABC!")
	}
}

func TestChainEmpty(t *testing.T) {
	t.Parallel()

	chain := transcript.NewChain(discardLogger())
	got := chain.Process(context.Background(), "untouched")
	if got != "untouched" {
		t.Errorf("Process: got %q, want %q", got, "untouched")
	}
}

func TestChainRedactThenPunctuate(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor([]string{"badword"}, transcript.WithReplacement("[BLEEP]"))
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}
	chain := transcript.NewChain(discardLogger(), r, transcript.RulePunctuator{})

	got := chain.Process(context.Background(), "i saw BADWORD yesterday")
	if got != "I saw [BLEEP] yesterday." {
		t.Errorf("Process: got %q, want %q", got, "I saw [BLEEP] yesterday.")
	}
}
