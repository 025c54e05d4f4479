package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/pipeline"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/resilience"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/sink"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio/source"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
)

// ErrComponentNotRegistered is returned by Create* methods when no builder
// has been registered under the requested name.
var ErrComponentNotRegistered = errors.New("config: component not registered")

// EngineBuilder constructs a recognition engine from its config entry. The
// returned release function frees temporary resources (extracted model
// archives) and may be nil.
type EngineBuilder func(EngineConfig) (recognizer.Engine, func(), error)

// StoreBuilder constructs a speaker profile store.
type StoreBuilder func(context.Context, SpeakerConfig, *slog.Logger) (profile.Store, error)

// PunctuatorBuilder constructs the punctuation stage.
type PunctuatorBuilder func(PunctuationConfig, *slog.Logger) (transcript.Stage, error)

// SinkBuilder constructs one caption sink from the full config.
type SinkBuilder func(*Config, *slog.Logger) (sink.Sink, error)

// SourceBuilder constructs the capture source from the full config.
type SourceBuilder func(*Config, *slog.Logger) (source.Source, error)

// Registry maps component names to their builders. The service registers its
// built-in engines, stores, punctuators, sinks, and sources at startup;
// embedders can add their own. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	engines     map[string]EngineBuilder
	stores      map[string]StoreBuilder
	punctuators map[string]PunctuatorBuilder
	sinks       map[string]SinkBuilder
	sources     map[string]SourceBuilder
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines:     make(map[string]EngineBuilder),
		stores:      make(map[string]StoreBuilder),
		punctuators: make(map[string]PunctuatorBuilder),
		sinks:       make(map[string]SinkBuilder),
		sources:     make(map[string]SourceBuilder),
	}
}

// RegisterEngine registers a recognition engine builder under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, builder EngineBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = builder
}

// RegisterStore registers a profile store builder under name.
func (r *Registry) RegisterStore(name string, builder StoreBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[name] = builder
}

// RegisterPunctuator registers a punctuation stage builder under name.
func (r *Registry) RegisterPunctuator(name string, builder PunctuatorBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.punctuators[name] = builder
}

// RegisterSink registers a caption sink builder under name.
func (r *Registry) RegisterSink(name string, builder SinkBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = builder
}

// RegisterSource registers a capture source builder under name.
func (r *Registry) RegisterSource(name string, builder SourceBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = builder
}

// CreateEngine builds the engine named by entry.Name. Returns
// [ErrComponentNotRegistered] when no builder is registered for that name.
func (r *Registry) CreateEngine(entry EngineConfig) (recognizer.Engine, func(), error) {
	r.mu.RLock()
	builder, ok := r.engines[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: engine/%q", ErrComponentNotRegistered, entry.Name)
	}
	return builder(entry)
}

// CreateStore builds the profile store selected by cfg.Store.
func (r *Registry) CreateStore(ctx context.Context, cfg SpeakerConfig, log *slog.Logger) (profile.Store, error) {
	r.mu.RLock()
	builder, ok := r.stores[string(cfg.Store)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: store/%q", ErrComponentNotRegistered, cfg.Store)
	}
	return builder(ctx, cfg, log)
}

// CreatePunctuator builds the punctuation stage selected by cfg.Mode.
func (r *Registry) CreatePunctuator(cfg PunctuationConfig, log *slog.Logger) (transcript.Stage, error) {
	r.mu.RLock()
	builder, ok := r.punctuators[string(cfg.Mode)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: punctuator/%q", ErrComponentNotRegistered, cfg.Mode)
	}
	return builder(cfg, log)
}

// CreateSink builds the named caption sink. Callers iterate
// [SinksConfig.Enabled] to assemble the configured set.
func (r *Registry) CreateSink(name string, cfg *Config, log *slog.Logger) (sink.Sink, error) {
	r.mu.RLock()
	builder, ok := r.sinks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrComponentNotRegistered, name)
	}
	return builder(cfg, log)
}

// CreateSource builds the capture source selected by cfg.Source.Kind.
func (r *Registry) CreateSource(cfg *Config, log *slog.Logger) (source.Source, error) {
	r.mu.RLock()
	builder, ok := r.sources[string(cfg.Source.Kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrComponentNotRegistered, cfg.Source.Kind)
	}
	return builder(cfg, log)
}

// EngineFactory returns a factory the pipeline calls on Start to build the
// configured engine chain. Engine construction is deferred to Start because
// model loading is expensive and archive extraction leaves temporary state
// that the returned release function frees.
//
// Entries that fail to build are skipped with a warning so one broken model
// does not take down the chain; the factory errors only when every entry
// fails. A nil factory is returned when no engines are configured, which the
// pipeline reads as heartbeat mode.
func (r *Registry) EngineFactory(log *slog.Logger, entries []EngineConfig) pipeline.EngineFactory {
	if len(entries) == 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return func() (*resilience.EngineChain, func(), error) {
		var (
			engines  []recognizer.Engine
			cleanups []func()
			errs     []error
		)
		for _, entry := range entries {
			eng, cleanup, err := r.CreateEngine(entry)
			if err != nil {
				log.Warn("recognition engine unavailable",
					"engine", entry.Name,
					"model", entry.Model,
					"error", err,
				)
				errs = append(errs, fmt.Errorf("%s: %w", entry.Name, err))
				continue
			}
			engines = append(engines, eng)
			if cleanup != nil {
				cleanups = append(cleanups, cleanup)
			}
		}
		if len(engines) == 0 {
			return nil, nil, fmt.Errorf("no recognition engine could be initialised: %w", errors.Join(errs...))
		}
		release := func() {
			for _, c := range cleanups {
				c()
			}
		}
		return resilience.NewEngineChain(log, engines...), release, nil
	}
}
