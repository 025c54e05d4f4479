package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
)

// ValidEngineNames lists the recognition engines that ship with the service.
// [Validate] rejects engine entries whose name is not in this list.
var ValidEngineNames = []string{"vosk", "whisper", "deepgram"}

// validRedactionModes are the modes the redactor accepts.
var validRedactionModes = []string{
	transcript.RedactFixed,
	transcript.RedactKeepFirst,
	transcript.RedactKeepLast,
	transcript.RedactKeepFirstLast,
	transcript.RedactRemove,
}

// validDenoiseModes are the denoiser capability modes.
var validDenoiseModes = []string{"off", "auto"}

// Load reads the YAML configuration file at path and returns a defaulted,
// validated [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown YAML keys are rejected. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Log
	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "" && !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 || (cfg.Audio.SampleRate > 0 && cfg.Audio.SampleRate < 8000) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; expected at least 8000 Hz", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; expected 1 or 2", cfg.Audio.Channels))
	}
	if cfg.Audio.ChunkMs < 0 || (cfg.Audio.ChunkMs > 0 && cfg.Audio.ChunkMs < 10) {
		errs = append(errs, fmt.Errorf("audio.chunk_ms %d is invalid; expected at least 10", cfg.Audio.ChunkMs))
	}

	// Source
	if cfg.Source.Kind != "" && !cfg.Source.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("source.kind %q is invalid; valid values: file, websocket", cfg.Source.Kind))
	}
	if cfg.Source.Kind == SourceFile && cfg.Source.File.Path == "" {
		errs = append(errs, errors.New("source.file.path is required when source.kind is file"))
	}
	if cfg.Source.Kind == SourceWebSocket && cfg.Source.WebSocket.Addr == "" {
		errs = append(errs, errors.New("source.websocket.addr is required when source.kind is websocket"))
	}

	// Pipeline
	if cfg.Pipeline.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size %d is invalid; expected a positive count", cfg.Pipeline.QueueSize))
	}
	if cfg.Pipeline.DequeueWaitMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.dequeue_wait_ms %d is invalid; expected a positive duration", cfg.Pipeline.DequeueWaitMs))
	}
	if cfg.Pipeline.BufferSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.buffer_seconds %d is invalid; expected a positive duration", cfg.Pipeline.BufferSeconds))
	}
	if cfg.Pipeline.StopTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.stop_timeout_ms %d is invalid; expected a positive duration", cfg.Pipeline.StopTimeoutMs))
	}

	// Engines
	seen := make(map[string]int, len(cfg.Engines))
	for i, eng := range cfg.Engines {
		prefix := fmt.Sprintf("engines[%d]", i)
		if eng.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if !slices.Contains(ValidEngineNames, eng.Name) {
			errs = append(errs, fmt.Errorf("%s.name %q is unknown; valid values: vosk, whisper, deepgram", prefix, eng.Name))
		} else {
			if prev, dup := seen[eng.Name]; dup {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of engines[%d]", prefix, eng.Name, prev))
			}
			seen[eng.Name] = i
		}
		if eng.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
	}

	// Speaker
	if cfg.Speaker.Store != "" && !cfg.Speaker.Store.IsValid() {
		errs = append(errs, fmt.Errorf("speaker.store %q is invalid; valid values: file, postgres", cfg.Speaker.Store))
	}
	if cfg.Speaker.Store == StorePostgres && cfg.Speaker.PostgresDSN == "" {
		errs = append(errs, errors.New("speaker.postgres_dsn is required when speaker.store is postgres"))
	}
	if cfg.Speaker.Threshold < -1 || cfg.Speaker.Threshold > 1 {
		errs = append(errs, fmt.Errorf("speaker.threshold %.2f is out of range [-1, 1]", cfg.Speaker.Threshold))
	}
	if cfg.Speaker.TopK < 0 {
		errs = append(errs, fmt.Errorf("speaker.top_k %d is invalid; expected a positive count", cfg.Speaker.TopK))
	}

	// Redaction
	if cfg.Redaction.Mode != "" && !slices.Contains(validRedactionModes, cfg.Redaction.Mode) {
		errs = append(errs, fmt.Errorf("redaction.mode %q is invalid; valid values: fixed, keep_first, keep_last, keep_first_last, remove", cfg.Redaction.Mode))
	}
	if cfg.Redaction.MaskChar != "" && utf8.RuneCountInString(cfg.Redaction.MaskChar) != 1 {
		errs = append(errs, fmt.Errorf("redaction.mask_char %q is invalid; expected a single character", cfg.Redaction.MaskChar))
	}

	// Punctuation
	if cfg.Punctuation.Mode != "" && !cfg.Punctuation.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("punctuation.mode %q is invalid; valid values: rule, llm", cfg.Punctuation.Mode))
	}
	if cfg.Punctuation.Mode == PunctuationLLM {
		if cfg.Punctuation.LLM.Provider == "" {
			errs = append(errs, errors.New("punctuation.llm.provider is required when punctuation.mode is llm"))
		}
		if cfg.Punctuation.LLM.Model == "" {
			errs = append(errs, errors.New("punctuation.llm.model is required when punctuation.mode is llm"))
		}
	}

	// Denoise
	if cfg.Denoise.Mode != "" && !slices.Contains(validDenoiseModes, cfg.Denoise.Mode) {
		errs = append(errs, fmt.Errorf("denoise.mode %q is invalid; valid values: off, auto", cfg.Denoise.Mode))
	}

	// Sinks
	if (cfg.Sinks.Discord.Token == "") != (cfg.Sinks.Discord.ChannelID == "") {
		errs = append(errs, errors.New("sinks.discord requires both token and channel_id"))
	}

	return errors.Join(errs...)
}
