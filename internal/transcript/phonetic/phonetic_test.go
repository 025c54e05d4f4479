package phonetic_test

import (
	"context"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript/phonetic"
)

func TestCorrectorMatch(t *testing.T) {
	t.Parallel()

	c := phonetic.New([]string{"Nakamura", "Grafana", "Redis"})

	corrected, score, ok := c.Match("nakamora")
	if !ok {
		t.Fatalf("Match(%q): ok=false, want true", "nakamora")
	}
	if corrected != "Nakamura" {
		t.Errorf("Match(%q): corrected=%q, want %q", "nakamora", corrected, "Nakamura")
	}
	if score < 0.84 {
		t.Errorf("Match(%q): score=%f, want >= 0.84", "nakamora", score)
	}
}

func TestCorrectorMatchRejectsDissimilar(t *testing.T) {
	t.Parallel()

	c := phonetic.New([]string{"Nakamura", "Grafana"})

	corrected, score, ok := c.Match("hello")
	if ok {
		t.Fatalf("Match(%q): ok=true, want false", "hello")
	}
	if corrected != "hello" {
		t.Errorf("Match(%q): corrected=%q, want original word", "hello", corrected)
	}
	if score != 0 {
		t.Errorf("Match(%q): score=%f, want 0", "hello", score)
	}
}

func TestCorrectorThreshold(t *testing.T) {
	t.Parallel()

	c := phonetic.New([]string{"Nakamura"}, phonetic.WithThreshold(0.99))

	if _, _, ok := c.Match("nakamora"); ok {
		t.Fatal("Match with threshold=0.99 should reject near-matches, got ok=true")
	}
}

func TestCorrectorProcessSubstitutesSpelling(t *testing.T) {
	t.Parallel()

	c := phonetic.New([]string{"Nakamura"})

	got, err := c.Process(context.Background(), "agent nakamora arrived")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "agent Nakamura arrived" {
		t.Errorf("Process: got %q, want %q", got, "agent Nakamura arrived")
	}
}

func TestCorrectorProcessKeepsLeadingCapital(t *testing.T) {
	t.Parallel()

	c := phonetic.New([]string{"grafana"})

	got, err := c.Process(context.Background(), "Grifana dashboards")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "Grafana dashboards" {
		t.Errorf("Process: got %q, want %q", got, "Grafana dashboards")
	}
}

func TestCorrectorProcessSkipsExactVocabWords(t *testing.T) {
	t.Parallel()

	c := phonetic.New([]string{"Redis"})

	got, err := c.Process(context.Background(), "we use redis daily")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "we use redis daily" {
		t.Errorf("Process: got %q, want input unchanged", got)
	}
}

func TestCorrectorEmptyVocabulary(t *testing.T) {
	t.Parallel()

	c := phonetic.New(nil)

	got, err := c.Process(context.Background(), "nothing to correct")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "nothing to correct" {
		t.Errorf("Process: got %q, want input unchanged", got)
	}
}

func TestCorrectorSetWords(t *testing.T) {
	t.Parallel()

	c := phonetic.New(nil)

	if got, _ := c.Process(context.Background(), "ask nakamora"); got != "ask nakamora" {
		t.Fatalf("Process before SetWords: got %q, want input unchanged", got)
	}

	c.SetWords([]string{"Nakamura"})

	if got, _ := c.Process(context.Background(), "ask nakamora"); got != "ask Nakamura" {
		t.Errorf("Process after SetWords: got %q, want %q", got, "ask Nakamura")
	}
}

func TestCorrectorMatchEmptyWord(t *testing.T) {
	t.Parallel()

	c := phonetic.New([]string{"Nakamura"})

	corrected, score, ok := c.Match("")
	if ok {
		t.Fatal("Match with empty word should return ok=false")
	}
	if corrected != "" {
		t.Errorf("corrected=%q, want empty string", corrected)
	}
	if score != 0 {
		t.Errorf("score=%f, want 0", score)
	}
}
