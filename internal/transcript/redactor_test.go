package transcript_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
)

var testWords = []string{"badword", "mother-in-law", "o'connor"}

func TestRedactorFixedReplacement(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(testWords, transcript.WithReplacement("[BLEEP]"))
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	got := r.Redact("hello BADWORD!")
	if got != "hello [BLEEP]!" {
		t.Errorf("Redact: got %q, want %q", got, "hello [BLEEP]!")
	}
}

func TestRedactorKeepFirst(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(testWords, transcript.WithRedactMode(transcript.RedactKeepFirst))
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	got := r.Redact("badword")
	if got != "b******" {
		t.Errorf("Redact: got %q, want %q", got, "b******")
	}
}

func TestRedactorKeepLastCustomMask(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(testWords,
		transcript.WithRedactMode(transcript.RedactKeepLast),
		transcript.WithMaskChar('#'),
	)
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	got := r.Redact("badword")
	if got != "######d" {
		t.Errorf("Redact: got %q, want %q", got, "######d")
	}
}

func TestRedactorKeepFirstLastPreservesHyphens(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(testWords, transcript.WithRedactMode(transcript.RedactKeepFirstLast))
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	got := r.Redact("mother-in-law")
	if got != "m*****-**-**w" {
		t.Errorf("Redact: got %q, want %q", got, "m*****-**-**w")
	}
}

func TestRedactorRemoveCollapsesSpace(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(testWords, transcript.WithRedactMode(transcript.RedactRemove))
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	if got := r.Redact("say badword now"); got != "say now" {
		t.Errorf("Redact: got %q, want %q", got, "say now")
	}
	// Adjacent punctuation survives removal.
	if got := r.Redact("hello badword!"); got != "hello !" {
		t.Errorf("Redact: got %q, want %q", got, "hello !")
	}
}

func TestRedactorApostropheToken(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(testWords, transcript.WithReplacement("[X]"))
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	got := r.Redact("O'Connor is here")
	if got != "[X] is here" {
		t.Errorf("Redact: got %q, want %q", got, "[X] is here")
	}
}

func TestRedactorWholeTokenOnly(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(testWords)
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	// "badwords" is a different token and must not be touched.
	got := r.Redact("badwords are fine")
	if got != "badwords are fine" {
		t.Errorf("Redact: got %q, want input unchanged", got)
	}
}

func TestRedactorNoWords(t *testing.T) {
	t.Parallel()

	r, err := transcript.NewRedactor(nil)
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}

	got := r.Redact("anything goes here")
	if got != "anything goes here" {
		t.Errorf("Redact: got %q, want input unchanged", got)
	}
}

func TestRedactorUnknownMode(t *testing.T) {
	t.Parallel()

	if _, err := transcript.NewRedactor(testWords, transcript.WithRedactMode("scramble")); err == nil {
		t.Fatal("expected error for unknown mode, got nil")
	}
}

func TestReadWordList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "restricted.txt")
	content := "# comment line\nBadWord\n\n  spaced  \nmother-in-law\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write word list: %v", err)
	}

	words, err := transcript.ReadWordList(path)
	if err != nil {
		t.Fatalf("ReadWordList: %v", err)
	}
	want := []string{"badword", "spaced", "mother-in-law"}
	if len(words) != len(want) {
		t.Fatalf("got %d words, want %d: %v", len(words), len(want), words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d: got %q, want %q", i, words[i], want[i])
		}
	}
}

func TestReadWordListMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := transcript.ReadWordList(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
