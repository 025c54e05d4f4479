package commands

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/vocab"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
)

// setupTestEnv points the CLI at a fresh config in a temp directory and
// returns that directory. The config keeps all state under the directory,
// disables the journal, and logs errors only.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cfgYAML := fmt.Sprintf(`log:
  level: error
speaker:
  dir: %q
vocabulary:
  dir: %q
journal:
  enabled: false
sinks:
  stdout: false
`, filepath.Join(dir, "profiles"), filepath.Join(dir, "vocab"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfgYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	oldCfg := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = oldCfg })
	return dir
}

// runCmd executes the CLI with args and captures stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Flag values persist between Execute calls; reset them.
	profilesMatchTopK = 0
	profilesEditRename = ""
	profilesEditAdd = nil
	profilesEditRemove = nil
	profilesEditReplace = nil
	captionsExportOut = ""
	captionsExportFrom = ""
	captionsExportTo = ""

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	rootCmd.SetArgs(args)
	execErr := rootCmd.Execute()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatal(err)
	}
	return buf.String(), execErr
}

// writeToneWAV writes a one-second sine tone as a 16 kHz mono WAV.
func writeToneWAV(t *testing.T, path string, freq float64) {
	t.Helper()
	const rate = 16000
	samples := make([]int16, rate)
	for i := range samples {
		samples[i] = int16(12000 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	if err := audio.WriteWAVFile(path, audio.PCMBytes(samples), rate, 1); err != nil {
		t.Fatal(err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "vaiccs") {
		t.Errorf("version output %q does not name the binary", out)
	}
}

func TestVocabAddListRemove(t *testing.T) {
	dir := setupTestEnv(t)

	if _, err := runCmd(t, "vocab", "add", "kubernetes"); err != nil {
		t.Fatalf("vocab add: %v", err)
	}
	out, err := runCmd(t, "vocab", "list")
	if err != nil {
		t.Fatalf("vocab list: %v", err)
	}
	if !strings.Contains(out, "kubernetes") {
		t.Errorf("vocab list output %q does not show the added word", out)
	}

	// The store on disk is what a running daemon reloads from.
	st, err := vocab.New(filepath.Join(dir, "vocab"))
	if err != nil {
		t.Fatal(err)
	}
	if words := st.Words(); len(words) != 1 || words[0] != "kubernetes" {
		t.Errorf("stored words = %v, want [kubernetes]", words)
	}

	if _, err := runCmd(t, "vocab", "remove", "kubernetes"); err != nil {
		t.Fatalf("vocab remove: %v", err)
	}
	out, err = runCmd(t, "vocab", "list")
	if err != nil {
		t.Fatalf("vocab list: %v", err)
	}
	if !strings.Contains(out, "empty") {
		t.Errorf("expected an empty vocabulary after remove, got %q", out)
	}
}

func TestProfilesLifecycle(t *testing.T) {
	dir := setupTestEnv(t)

	wav := filepath.Join(dir, "ada.wav")
	writeToneWAV(t, wav, 440)

	if _, err := runCmd(t, "profiles", "create", "Ada", wav); err != nil {
		t.Fatalf("profiles create: %v", err)
	}

	out, err := runCmd(t, "profiles", "list")
	if err != nil {
		t.Fatalf("profiles list: %v", err)
	}
	if !strings.Contains(out, "Ada") {
		t.Errorf("profiles list output %q does not show the profile", out)
	}

	// The enrollment recording must rank its own profile first.
	out, err = runCmd(t, "profiles", "match", wav, "-k", "1")
	if err != nil {
		t.Fatalf("profiles match: %v", err)
	}
	if !strings.HasPrefix(out, "Ada: ") {
		t.Errorf("match output %q, want a ranking led by %q", out, "Ada: ")
	}

	if _, err := runCmd(t, "profiles", "delete", "Ada"); err != nil {
		t.Fatalf("profiles delete: %v", err)
	}
	out, err = runCmd(t, "profiles", "list")
	if err != nil {
		t.Fatalf("profiles list: %v", err)
	}
	if strings.Contains(out, "Ada") {
		t.Errorf("profile still listed after delete: %q", out)
	}
}

func TestProfilesEditRequiresFlags(t *testing.T) {
	setupTestEnv(t)
	if _, err := runCmd(t, "profiles", "edit", "Ada"); err == nil {
		t.Fatal("expected an error when no edit flags are given")
	}
}

func TestCaptionsExportDisabledJournal(t *testing.T) {
	setupTestEnv(t)
	if _, err := runCmd(t, "captions", "export"); err == nil {
		t.Fatal("expected an error with the journal disabled")
	}
}

func TestRegisterBuiltinComponents(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinComponents(reg)

	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	p, err := reg.CreatePunctuator(cfg.Punctuation, log)
	if err != nil {
		t.Fatalf("rule punctuator: %v", err)
	}
	if _, ok := p.(transcript.RulePunctuator); !ok {
		t.Errorf("default punctuator is %T, want transcript.RulePunctuator", p)
	}

	if _, err := reg.CreateSink("stdout", cfg, log); err != nil {
		t.Errorf("stdout sink: %v", err)
	}

	// The file source refuses to build without a path.
	cfg.Source.Kind = config.SourceFile
	if _, err := reg.CreateSource(cfg, log); err == nil {
		t.Error("expected an error for a file source without a path")
	}

	_, _, err = reg.CreateEngine(config.EngineConfig{Name: "nonexistent"})
	if !errors.Is(err, config.ErrComponentNotRegistered) {
		t.Errorf("unknown engine error = %v, want ErrComponentNotRegistered", err)
	}
}

func TestBuildLLMProvider(t *testing.T) {
	if _, err := buildLLMProvider(config.LLMConfig{}); err == nil {
		t.Error("expected an error for an empty provider and model")
	}

	p, err := buildLLMProvider(config.LLMConfig{Provider: "ollama", Model: "llama3.2"})
	if err != nil {
		t.Fatalf("ollama provider: %v", err)
	}
	if p == nil {
		t.Fatal("expected a provider")
	}
}

func TestIsArchive(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"model.zip", true},
		{"model.tar", true},
		{"model.tar.gz", true},
		{"model.TGZ", true},
		{"ggml-base.en.bin", false},
		{"model-dir", false},
	}
	for _, tc := range cases {
		if got := isArchive(tc.path); got != tc.want {
			t.Errorf("isArchive(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestFindFirstByExt(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "model")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(sub, "ggml-tiny.bin")
	if err := os.WriteFile(want, []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := findFirstByExt(dir, ".bin")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := findFirstByExt(dir, ".onnx"); err == nil {
		t.Error("expected an error when no file matches")
	}
}

func TestApplyConfigChange(t *testing.T) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	oldCfg := config.Default()
	newCfg := config.Default()
	newCfg.Log.Level = config.LogDebug

	applyConfigChange(level, oldCfg, newCfg)

	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want %v", got, slog.LevelDebug)
	}
}

func TestSummaryHelpers(t *testing.T) {
	if got := engineSummary(nil); got != "(heartbeat mode)" {
		t.Errorf("engineSummary(nil) = %q", got)
	}
	engines := []config.EngineConfig{{Name: "vosk"}, {Name: "whisper"}}
	if got := engineSummary(engines); got != "vosk > whisper" {
		t.Errorf("engineSummary = %q, want %q", got, "vosk > whisper")
	}
	if got := healthSummary(config.HealthConfig{}); got != "(disabled)" {
		t.Errorf("healthSummary = %q, want (disabled)", got)
	}
}
