// Package config provides the configuration schema, loader, validation, and
// component registry for the VAICCS captioning service.
package config

import "time"

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler encoding.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// SourceKind selects the capture source for a run.
type SourceKind string

const (
	// SourceFile replays a WAV recording, paced at real time unless the
	// file source is configured unpaced.
	SourceFile SourceKind = "file"

	// SourceWebSocket accepts live PCM (or Opus) over a websocket ingest
	// listener.
	SourceWebSocket SourceKind = "websocket"
)

// IsValid reports whether k is a recognised source kind.
func (k SourceKind) IsValid() bool {
	return k == SourceFile || k == SourceWebSocket
}

// StoreBackend selects the speaker profile store implementation.
type StoreBackend string

const (
	// StoreFile keeps profiles in a directory tree with a JSON index.
	StoreFile StoreBackend = "file"

	// StorePostgres keeps profiles in PostgreSQL with pgvector embeddings.
	StorePostgres StoreBackend = "postgres"
)

// IsValid reports whether b is a recognised store backend.
func (b StoreBackend) IsValid() bool {
	return b == StoreFile || b == StorePostgres
}

// PunctuationMode selects how finalized utterances are punctuated.
type PunctuationMode string

const (
	// PunctuationRule applies deterministic casing and termination rules.
	PunctuationRule PunctuationMode = "rule"

	// PunctuationLLM asks a language model, degrading to the rules on any
	// failure.
	PunctuationLLM PunctuationMode = "llm"
)

// IsValid reports whether m is a recognised punctuation mode.
func (m PunctuationMode) IsValid() bool {
	return m == PunctuationRule || m == PunctuationLLM
}

// Config is the root configuration for the captioning service. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader]; zero
// values are filled in by defaults before validation.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Audio       AudioConfig       `yaml:"audio"`
	Source      SourceConfig      `yaml:"source"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Engines     []EngineConfig    `yaml:"engines"`
	Speaker     SpeakerConfig     `yaml:"speaker"`
	Vocabulary  VocabularyConfig  `yaml:"vocabulary"`
	Redaction   RedactionConfig   `yaml:"redaction"`
	Punctuation PunctuationConfig `yaml:"punctuation"`
	Denoise     DenoiseConfig     `yaml:"denoise"`
	Sinks       SinksConfig       `yaml:"sinks"`
	Journal     JournalConfig     `yaml:"journal"`
	Health      HealthConfig      `yaml:"health"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity. Default: info.
	Level LogLevel `yaml:"level"`

	// Format selects text or JSON output. Default: text.
	Format LogFormat `yaml:"format"`
}

// AudioConfig describes the ingest audio contract: the format live sources
// assume for incoming PCM and the chunk size the pipeline consumes.
type AudioConfig struct {
	// SampleRate of incoming PCM in Hz. Default: 16000, the canonical
	// pipeline rate; other rates are converted on ingest.
	SampleRate int `yaml:"sample_rate"`

	// Channels of incoming PCM. Default: 1.
	Channels int `yaml:"channels"`

	// ChunkMs is the chunk duration sources emit, in milliseconds.
	// Default: 250.
	ChunkMs int `yaml:"chunk_ms"`
}

// ChunkDuration returns the configured chunk size as a [time.Duration].
func (a AudioConfig) ChunkDuration() time.Duration {
	return time.Duration(a.ChunkMs) * time.Millisecond
}

// SourceConfig selects and configures the capture source.
type SourceConfig struct {
	// Kind selects the source implementation. Default: websocket.
	Kind SourceKind `yaml:"kind"`

	File      FileSourceConfig      `yaml:"file"`
	WebSocket WebSocketSourceConfig `yaml:"websocket"`
}

// FileSourceConfig configures WAV replay capture.
type FileSourceConfig struct {
	// Path to the WAV recording. Required when the source kind is file.
	Path string `yaml:"path"`

	// Unpaced disables real-time pacing so the whole file is captioned as
	// fast as recognition allows.
	Unpaced bool `yaml:"unpaced"`
}

// WebSocketSourceConfig configures the live ingest listener.
type WebSocketSourceConfig struct {
	// Addr is the TCP address the ingest listener binds. Default: ":9090".
	Addr string `yaml:"addr"`
}

// PipelineConfig tunes the capture worker.
type PipelineConfig struct {
	// QueueSize bounds the ingest queue in chunks. Default: 64.
	QueueSize int `yaml:"queue_size"`

	// DequeueWaitMs bounds each idle dequeue wait in milliseconds, which
	// also bounds shutdown latency while idle. Default: 500.
	DequeueWaitMs int `yaml:"dequeue_wait_ms"`

	// BufferSeconds caps the rolling utterance buffer. Default: 30.
	BufferSeconds int `yaml:"buffer_seconds"`

	// StopTimeoutMs bounds how long Stop waits for the worker. Default:
	// 2000.
	StopTimeoutMs int `yaml:"stop_timeout_ms"`

	// Heartbeats controls whether synthetic liveness captions are emitted
	// when no recognition engine is available. Default: true.
	Heartbeats *bool `yaml:"heartbeats"`
}

// DequeueWait returns the dequeue bound as a [time.Duration].
func (p PipelineConfig) DequeueWait() time.Duration {
	return time.Duration(p.DequeueWaitMs) * time.Millisecond
}

// BufferLimit returns the utterance buffer cap as a [time.Duration].
func (p PipelineConfig) BufferLimit() time.Duration {
	return time.Duration(p.BufferSeconds) * time.Second
}

// StopTimeout returns the worker join bound as a [time.Duration].
func (p PipelineConfig) StopTimeout() time.Duration {
	return time.Duration(p.StopTimeoutMs) * time.Millisecond
}

// HeartbeatsEnabled reports whether degraded-mode liveness captions are on.
func (p PipelineConfig) HeartbeatsEnabled() bool {
	return p.Heartbeats == nil || *p.Heartbeats
}

// EngineConfig describes one recognition engine in the fallback chain.
// Engines are tried in list order; the first that yields a session wins.
type EngineConfig struct {
	// Name selects the engine implementation registered in the [Registry]
	// (built-ins: "vosk", "whisper", "deepgram").
	Name string `yaml:"name"`

	// Model is the model source: a directory, an archive (.zip, .tar,
	// .tar.gz, .tgz), for whisper a plain ggml file, or for hosted
	// engines the model name (e.g. "nova-3").
	Model string `yaml:"model"`

	// Language hints the recognition language (engine-specific format,
	// e.g. "en"). Empty uses the engine default.
	Language string `yaml:"language"`

	// APIKey authenticates hosted engines. When empty the engine's
	// conventional environment variable is consulted (deepgram:
	// DEEPGRAM_API_KEY). Local engines ignore it.
	APIKey string `yaml:"api_key"`
}

// SpeakerConfig configures speaker identification.
type SpeakerConfig struct {
	// Store selects the profile store backend. Default: file.
	Store StoreBackend `yaml:"store"`

	// Dir is the profile directory for the file backend. Default:
	// "profiles".
	Dir string `yaml:"dir"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Threshold is the minimum cosine score for attributing a caption to
	// a speaker, in [-1, 1]. Default: 0.7.
	Threshold float64 `yaml:"threshold"`

	// TopK is how many candidates match queries return. The pipeline only
	// uses the best one; CLI matching shows the full list. Default: 3.
	TopK int `yaml:"top_k"`
}

// VocabularyConfig configures the custom vocabulary store.
type VocabularyConfig struct {
	// Dir is the vocabulary directory. Default: "vocab".
	Dir string `yaml:"dir"`
}

// RedactionConfig configures caption redaction. An empty word list disables
// the stage.
type RedactionConfig struct {
	// Mode is one of "fixed", "keep_first", "keep_last",
	// "keep_first_last", "remove". Default: fixed.
	Mode string `yaml:"mode"`

	// Words lists terms to redact, matched case-insensitively.
	Words []string `yaml:"words"`

	// WordsFile points to a newline-separated word list merged with
	// Words.
	WordsFile string `yaml:"words_file"`

	// MaskChar is the single character used by the keep_* modes.
	// Default: "*".
	MaskChar string `yaml:"mask_char"`

	// Replacement is the substitution text for fixed mode. Default:
	// "****".
	Replacement string `yaml:"replacement"`
}

// PunctuationConfig configures the punctuation stage.
type PunctuationConfig struct {
	// Mode selects rule-based or LLM punctuation. Default: rule.
	Mode PunctuationMode `yaml:"mode"`

	// LLM configures the model used when Mode is llm.
	LLM LLMConfig `yaml:"llm"`
}

// LLMConfig names a language model backend for LLM punctuation.
type LLMConfig struct {
	// Provider is the backend name (e.g. "openai", "anthropic",
	// "ollama").
	Provider string `yaml:"provider"`

	// Model is the model identifier (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// APIKey authenticates with the provider. When empty the provider's
	// conventional environment variable is used.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint, for local or proxied
	// deployments.
	BaseURL string `yaml:"base_url"`
}

// DenoiseConfig configures pre-recognition denoising.
type DenoiseConfig struct {
	// Mode is "off" or "auto" (adaptive RMS gate). Default: off.
	Mode string `yaml:"mode"`
}

// SinksConfig enables caption outputs. Every enabled sink receives every
// caption; sink failures are logged and never stall the pipeline.
type SinksConfig struct {
	// Stdout prints one caption line per utterance. Default: true.
	Stdout *bool `yaml:"stdout"`

	// File appends caption lines to the given path when non-empty.
	File string `yaml:"file"`

	// SRT writes numbered SRT cues to the given path when non-empty.
	SRT string `yaml:"srt"`

	// WebSocket broadcasts caption lines to connected clients when an
	// address is configured.
	WebSocket WebSocketSinkConfig `yaml:"websocket"`

	// Discord posts caption lines to a channel when both token and
	// channel are configured.
	Discord DiscordSinkConfig `yaml:"discord"`
}

// WebSocketSinkConfig configures the caption broadcast listener.
type WebSocketSinkConfig struct {
	Addr string `yaml:"addr"`
}

// DiscordSinkConfig configures the Discord caption sink.
type DiscordSinkConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// StdoutEnabled reports whether the stdout sink is on.
func (s SinksConfig) StdoutEnabled() bool {
	return s.Stdout == nil || *s.Stdout
}

// Enabled returns the names of the configured sinks, in delivery order.
// The names resolve against the sink builders in the [Registry].
func (s SinksConfig) Enabled() []string {
	var names []string
	if s.StdoutEnabled() {
		names = append(names, "stdout")
	}
	if s.File != "" {
		names = append(names, "file")
	}
	if s.SRT != "" {
		names = append(names, "srt")
	}
	if s.WebSocket.Addr != "" {
		names = append(names, "websocket")
	}
	if s.Discord.Token != "" && s.Discord.ChannelID != "" {
		names = append(names, "discord")
	}
	return names
}

// JournalConfig configures the caption journal.
type JournalConfig struct {
	// Dir is the journal database directory. Default: "journal".
	Dir string `yaml:"dir"`

	// Enabled turns journaling on or off. Default: true.
	Enabled *bool `yaml:"enabled"`

	// Heartbeats journals liveness captions too. Default: false.
	Heartbeats bool `yaml:"heartbeats"`
}

// IsEnabled reports whether captions are journaled.
func (j JournalConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// HealthConfig configures the operational HTTP listener.
type HealthConfig struct {
	// Addr is the TCP address for /healthz, /readyz, /version and
	// /metrics. Empty disables the listener.
	Addr string `yaml:"addr"`

	// Metrics mounts the Prometheus scrape endpoint on the listener.
	// Default: true.
	Metrics *bool `yaml:"metrics"`
}

// MetricsEnabled reports whether the scrape endpoint is mounted.
func (h HealthConfig) MetricsEnabled() bool {
	return h.Metrics == nil || *h.Metrics
}

// Default returns a fully defaulted configuration: websocket ingest on
// :9090, stdout captions, file profile store, rule punctuation, journaling
// on, no recognition engines (heartbeat mode until some are configured).
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = LogText
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkMs == 0 {
		cfg.Audio.ChunkMs = 250
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceWebSocket
	}
	if cfg.Source.WebSocket.Addr == "" {
		cfg.Source.WebSocket.Addr = ":9090"
	}
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = 64
	}
	if cfg.Pipeline.DequeueWaitMs == 0 {
		cfg.Pipeline.DequeueWaitMs = 500
	}
	if cfg.Pipeline.BufferSeconds == 0 {
		cfg.Pipeline.BufferSeconds = 30
	}
	if cfg.Pipeline.StopTimeoutMs == 0 {
		cfg.Pipeline.StopTimeoutMs = 2000
	}
	if cfg.Pipeline.Heartbeats == nil {
		cfg.Pipeline.Heartbeats = boolPtr(true)
	}
	if cfg.Speaker.Store == "" {
		cfg.Speaker.Store = StoreFile
	}
	if cfg.Speaker.Dir == "" {
		cfg.Speaker.Dir = "profiles"
	}
	if cfg.Speaker.Threshold == 0 {
		cfg.Speaker.Threshold = 0.7
	}
	if cfg.Speaker.TopK == 0 {
		cfg.Speaker.TopK = 3
	}
	if cfg.Vocabulary.Dir == "" {
		cfg.Vocabulary.Dir = "vocab"
	}
	if cfg.Redaction.Mode == "" {
		cfg.Redaction.Mode = "fixed"
	}
	if cfg.Redaction.MaskChar == "" {
		cfg.Redaction.MaskChar = "*"
	}
	if cfg.Punctuation.Mode == "" {
		cfg.Punctuation.Mode = PunctuationRule
	}
	if cfg.Denoise.Mode == "" {
		cfg.Denoise.Mode = "off"
	}
	if cfg.Sinks.Stdout == nil {
		cfg.Sinks.Stdout = boolPtr(true)
	}
	if cfg.Journal.Dir == "" {
		cfg.Journal.Dir = "journal"
	}
	if cfg.Journal.Enabled == nil {
		cfg.Journal.Enabled = boolPtr(true)
	}
	if cfg.Health.Metrics == nil {
		cfg.Health.Metrics = boolPtr(true)
	}
}

func boolPtr(b bool) *bool { return &b }
