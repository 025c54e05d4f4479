package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/modelsource"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/sink"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript/llmpunct"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio/source"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile/filestore"
	profilepg "github.com/dominicskywalkr/VAICCS-sub000/pkg/profile/postgres"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/provider/llm"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/provider/llm/anyllm"
	oallm "github.com/dominicskywalkr/VAICCS-sub000/pkg/provider/llm/openai"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer/deepgram"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer/vosk"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer/whisper"
)

// builtinComponents maps component kinds to the implementations that ship in
// the binary. Used for startup logging.
var builtinComponents = map[string][]string{
	"engine":     {"vosk", "whisper", "deepgram"},
	"store":      {"file", "postgres"},
	"punctuator": {"rule", "llm"},
	"sink":       {"stdout", "file", "srt", "websocket", "discord"},
	"source":     {"file", "websocket"},
}

// registerBuiltinComponents wires all built-in component builders into reg.
// Each builder turns its config section into a live component; the daemon
// and the management commands share this wiring.
func registerBuiltinComponents(reg *config.Registry) {
	// ── Recognition engines ───────────────────────────────────────────────────

	reg.RegisterEngine("vosk", func(entry config.EngineConfig) (recognizer.Engine, func(), error) {
		root, cleanup, err := modelsource.Resolve(entry.Model)
		if err != nil {
			return nil, nil, err
		}
		eng, err := vosk.New(root)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return eng, cleanup, nil
	})

	reg.RegisterEngine("whisper", func(entry config.EngineConfig) (recognizer.Engine, func(), error) {
		var opts []whisper.Option
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}

		// ggml weights ship as one .bin file; a bare file path skips the
		// model resolver, which only handles directories and archives.
		if info, err := os.Stat(entry.Model); err == nil && !info.IsDir() && !isArchive(entry.Model) {
			eng, err := whisper.New(entry.Model, opts...)
			if err != nil {
				return nil, nil, err
			}
			return eng, nil, nil
		}

		root, cleanup, err := modelsource.Resolve(entry.Model)
		if err != nil {
			return nil, nil, err
		}
		modelPath, err := findFirstByExt(root, ".bin")
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		eng, err := whisper.New(modelPath, opts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return eng, cleanup, nil
	})

	reg.RegisterEngine("deepgram", func(entry config.EngineConfig) (recognizer.Engine, func(), error) {
		key := entry.APIKey
		if key == "" {
			key = os.Getenv("DEEPGRAM_API_KEY")
		}
		if key == "" {
			return nil, nil, errors.New("deepgram engine needs an api_key or DEEPGRAM_API_KEY")
		}
		eng, err := deepgram.New(key,
			deepgram.WithModel(entry.Model),
			deepgram.WithLanguage(entry.Language))
		if err != nil {
			return nil, nil, err
		}
		return eng, nil, nil
	})

	// ── Speaker profile stores ────────────────────────────────────────────────

	reg.RegisterStore(string(config.StoreFile), func(_ context.Context, cfg config.SpeakerConfig, log *slog.Logger) (profile.Store, error) {
		return filestore.New(cfg.Dir, filestore.WithLogger(log))
	})

	reg.RegisterStore(string(config.StorePostgres), func(ctx context.Context, cfg config.SpeakerConfig, log *slog.Logger) (profile.Store, error) {
		if cfg.PostgresDSN == "" {
			return nil, errors.New("speaker.postgres_dsn is required for the postgres store")
		}
		return profilepg.New(ctx, cfg.PostgresDSN, profilepg.WithLogger(log))
	})

	// ── Punctuators ───────────────────────────────────────────────────────────

	reg.RegisterPunctuator(string(config.PunctuationRule), func(_ config.PunctuationConfig, _ *slog.Logger) (transcript.Stage, error) {
		return transcript.RulePunctuator{}, nil
	})

	reg.RegisterPunctuator(string(config.PunctuationLLM), func(cfg config.PunctuationConfig, log *slog.Logger) (transcript.Stage, error) {
		provider, err := buildLLMProvider(cfg.LLM)
		if err != nil {
			return nil, err
		}
		p, err := llmpunct.New(provider, llmpunct.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── Caption sinks ─────────────────────────────────────────────────────────

	reg.RegisterSink("stdout", func(_ *config.Config, _ *slog.Logger) (sink.Sink, error) {
		return sink.NewWriter(os.Stdout), nil
	})

	reg.RegisterSink("file", func(cfg *config.Config, _ *slog.Logger) (sink.Sink, error) {
		return sink.NewFileWriter(cfg.Sinks.File)
	})

	reg.RegisterSink("srt", func(cfg *config.Config, _ *slog.Logger) (sink.Sink, error) {
		return sink.NewSRTFile(cfg.Sinks.SRT)
	})

	reg.RegisterSink("websocket", func(cfg *config.Config, log *slog.Logger) (sink.Sink, error) {
		hub := sink.NewHub(sink.WithHubLogger(log))
		if err := hub.Listen(cfg.Sinks.WebSocket.Addr); err != nil {
			return nil, err
		}
		return hub, nil
	})

	reg.RegisterSink("discord", func(cfg *config.Config, log *slog.Logger) (sink.Sink, error) {
		return sink.NewDiscord(cfg.Sinks.Discord.Token, cfg.Sinks.Discord.ChannelID,
			sink.WithDiscordLogger(log))
	})

	// ── Capture sources ───────────────────────────────────────────────────────

	reg.RegisterSource(string(config.SourceFile), func(cfg *config.Config, log *slog.Logger) (source.Source, error) {
		if cfg.Source.File.Path == "" {
			return nil, errors.New("source.file.path is required for the file source")
		}
		opts := []source.FileOption{
			source.WithFileLogger(log),
			source.WithFileChunkDuration(cfg.Audio.ChunkDuration()),
		}
		if cfg.Source.File.Unpaced {
			opts = append(opts, source.Unpaced())
		}
		return source.NewFile(cfg.Source.File.Path, opts...), nil
	})

	reg.RegisterSource(string(config.SourceWebSocket), func(cfg *config.Config, log *slog.Logger) (source.Source, error) {
		return source.NewWebSocket(cfg.Source.WebSocket.Addr,
			source.WithIngestLogger(log),
			source.WithIngestFormat(audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}),
			source.WithIngestChunkDuration(cfg.Audio.ChunkDuration()),
		), nil
	})

	// Debug log of everything registered.
	for kind, names := range builtinComponents {
		for _, name := range names {
			slog.Debug("registered component", "kind", kind, "name", name)
		}
	}
}

// buildLLMProvider constructs the language model backend for LLM
// punctuation. "openai" uses the official SDK; every other provider name
// goes through the any-llm multi-provider client. A missing API key falls
// back to the provider's conventional environment variable.
func buildLLMProvider(cfg config.LLMConfig) (llm.Provider, error) {
	if cfg.Provider == "" || cfg.Model == "" {
		return nil, errors.New("punctuation.llm requires provider and model")
	}

	if strings.EqualFold(cfg.Provider, "openai") {
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		var opts []oallm.Option
		if cfg.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(cfg.BaseURL))
		}
		return oallm.New(key, cfg.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return anyllm.New(cfg.Provider, cfg.Model, opts...)
}

// isArchive reports whether path has one of the archive suffixes the model
// resolver extracts.
func isArchive(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".zip") ||
		strings.HasSuffix(lower, ".tar") ||
		strings.HasSuffix(lower, ".tar.gz") ||
		strings.HasSuffix(lower, ".tgz")
}

// findFirstByExt returns the first file under root with the given extension,
// walking lexically.
func findFirstByExt(root, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no %s model file under %q", ext, root)
	}
	return found, nil
}
