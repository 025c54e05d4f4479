package config_test

import (
	"slices"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Log.Level = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevel {
		t.Error("expected LogLevel=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is hot-applied, got restart sections %v", d.RestartRequired)
	}
}

func TestDiff_LogFormatNeedsRestart(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Log.Format = config.LogJSON

	d := config.Diff(old, new)
	if d.LogLevel {
		t.Error("expected LogLevel=false")
	}
	if !slices.Contains(d.RestartRequired, "log.format") {
		t.Errorf("expected log.format in restart sections, got %v", d.RestartRequired)
	}
}

func TestDiff_EnginesNeedRestart(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Engines = []config.EngineConfig{{Name: "vosk", Model: "models/small"}}

	d := config.Diff(old, new)
	if !d.Any() {
		t.Fatal("expected a change")
	}
	if !slices.Contains(d.RestartRequired, "engines") {
		t.Errorf("expected engines in restart sections, got %v", d.RestartRequired)
	}
}

func TestDiff_SinkToggleNeedsRestart(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Sinks.File = "captions.txt"

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "sinks") {
		t.Errorf("expected sinks in restart sections, got %v", d.RestartRequired)
	}
}

func TestDiff_MultipleSectionsInSchemaOrder(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Log.Level = config.LogWarn
	new.Audio.ChunkMs = 100
	new.Speaker.Threshold = 0.9
	new.Journal.Dir = "elsewhere"

	d := config.Diff(old, new)
	if !d.LogLevel || d.NewLogLevel != config.LogWarn {
		t.Errorf("log level change not reported: %+v", d)
	}
	want := []string{"audio", "speaker", "journal"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("restart sections: got %v, want %v", d.RestartRequired, want)
	}
}
