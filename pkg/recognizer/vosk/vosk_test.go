package vosk_test

import (
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer/vosk"
)

// testModelDir returns the path to a Vosk model directory for integration
// tests. It reads from the VAICCS_VOSK_MODEL environment variable. If unset
// the test is skipped.
func testModelDir(t *testing.T) string {
	t.Helper()
	p := os.Getenv("VAICCS_VOSK_MODEL")
	if p == "" {
		t.Skip("VAICCS_VOSK_MODEL not set; skipping Vosk integration test")
	}
	return p
}

func TestNewEmptyDirReturnsError(t *testing.T) {
	if _, err := vosk.New(""); err == nil {
		t.Fatal("expected error for empty model directory, got nil")
	}
}

func TestSessionLifecycle(t *testing.T) {
	e, err := vosk.New(testModelDir(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if got := e.Name(); got != "vosk" {
		t.Errorf("Name() = %q, want vosk", got)
	}

	s, err := e.NewSession(recognizer.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// One second of a 200 Hz tone: the engine must consume it without
	// error whether or not it decides the utterance is final.
	pcm := make([]byte, 2*16000)
	for i := range 16000 {
		v := int16(8000 * math.Sin(2*math.Pi*200*float64(i)/16000))
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
	}
	final, err := s.Accept(pcm)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if final {
		res, err := s.Result()
		if err != nil {
			t.Fatalf("Result: %v", err)
		}
		t.Logf("transcribed text: %q", res.Text)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Accept(pcm); err == nil {
		t.Fatal("Accept after Close should return an error")
	}
}

func TestSessionWithBiasWords(t *testing.T) {
	e, err := vosk.New(testModelDir(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	s, err := e.NewSession(recognizer.Config{
		SampleRate: 16000,
		BiasWords:  []string{"kubernetes", "pgvector"},
	})
	if err != nil {
		t.Fatalf("NewSession with bias words: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
