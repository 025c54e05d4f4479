package app

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/observe"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/vocab"
	mocksource "github.com/dominicskywalkr/VAICCS-sub000/pkg/audio/source/mock"
	profmock "github.com/dominicskywalkr/VAICCS-sub000/pkg/profile/mock"
)

// TestReloadVocabulary exercises the poller's reload step directly: a word
// added to the store after startup must reach the recognizer bias and the
// phonetic corrector without a restart.
func TestReloadVocabulary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Default()
	off := false
	cfg.Sinks.Stdout = &off
	cfg.Journal.Enabled = &off
	cfg.Vocabulary.Dir = dir

	reg := config.NewRegistry()
	reg.RegisterPunctuator("rule", func(config.PunctuationConfig, *slog.Logger) (transcript.Stage, error) {
		return transcript.RulePunctuator{}, nil
	})

	a, err := New(
		context.Background(),
		cfg,
		reg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(observe.DefaultMetrics()),
		WithStore(&profmock.Store{}),
		WithSource(&mocksource.Source{}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if len(a.vocabWords) != 0 {
		t.Fatalf("initial vocabulary = %v, want empty", a.vocabWords)
	}
	if a.corrector == nil {
		t.Fatal("corrector not built despite vocabulary.dir being set")
	}

	// Simulate the CLI adding a word while the service runs.
	store, err := vocab.New(dir)
	if err != nil {
		t.Fatalf("vocab.New: %v", err)
	}
	if _, err := store.Add("kubernetes"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	a.reloadVocabulary()

	if got := a.pipe.Vocabulary(); !slices.Contains(got, "kubernetes") {
		t.Errorf("pipeline vocabulary = %v, want it to contain %q", got, "kubernetes")
	}
	if corrected, _, ok := a.corrector.Match("kubernetes"); !ok || corrected != "kubernetes" {
		t.Errorf("corrector Match(kubernetes) = %q, %v; want exact hit", corrected, ok)
	}
}
