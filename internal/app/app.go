// Package app wires all captioning subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem, Run starts the capture pipeline and the health endpoints and
// blocks until the context is cancelled, and Shutdown tears everything down
// in order.
//
// For testing, inject doubles via functional options (WithSource, WithStore,
// etc.). When an option is not provided, New builds the real component
// through the config registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/denoise"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/health"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/journal"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/observe"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/pipeline"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/sink"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript/phonetic"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/vocab"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio/source"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
)

const (
	// vocabPollInterval is how often the vocabulary index mtime is checked
	// while the service runs.
	vocabPollInterval = 5 * time.Second

	// drainTimeout bounds the health server drain and the metrics flush
	// during shutdown.
	drainTimeout = 3 * time.Second
)

// App owns all subsystem lifetimes behind the captioning service.
type App struct {
	cfg     *config.Config
	reg     *config.Registry
	log     *slog.Logger
	version string

	// Subsystems, initialised in New, torn down in Shutdown.
	met       *observe.Metrics
	scrape    http.Handler
	jrnl      *journal.Journal
	store     profile.Store
	corrector *phonetic.Corrector
	prechain  *transcript.Chain
	punct     transcript.Stage
	src       source.Source
	sinks     *sink.Multi
	pipe      *pipeline.Pipeline
	healthSrv *http.Server

	vocabWords   []string
	vocabModTime time.Time

	engines    pipeline.EngineFactory
	extraSinks []sink.Sink

	// closers run in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the logger. Nil values are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) {
		if log != nil {
			a.log = log
		}
	}
}

// WithMetrics injects pipeline metrics instead of bootstrapping the OTel
// provider. Nil values are ignored.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		if m != nil {
			a.met = m
		}
	}
}

// WithJournal injects a caption journal instead of opening one from config.
// The injected journal is not closed during Shutdown.
func WithJournal(j *journal.Journal) Option {
	return func(a *App) { a.jrnl = j }
}

// WithStore injects a profile store instead of building one from the
// registry. The injected store is not closed during Shutdown.
func WithStore(s profile.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSource injects a capture source instead of building one from the
// registry.
func WithSource(s source.Source) Option {
	return func(a *App) { a.src = s }
}

// WithSink appends a caption sink to the configured set. The App takes
// ownership and closes it with the others.
func WithSink(s sink.Sink) Option {
	return func(a *App) {
		if s != nil {
			a.extraSinks = append(a.extraSinks, s)
		}
	}
}

// WithEngineFactory injects the recognizer engine factory instead of
// deriving one from the configured engine entries.
func WithEngineFactory(f pipeline.EngineFactory) Option {
	return func(a *App) { a.engines = f }
}

// WithVersion sets the version reported on /version and in telemetry.
// Default "dev".
func WithVersion(v string) Option {
	return func(a *App) {
		if v != "" {
			a.version = v
		}
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Components the
// options did not inject are built through reg; reg may be nil when
// everything is injected.
//
// New performs all initialisation synchronously except recognizer model
// loading, which the pipeline defers to Run so a missing model degrades to
// heartbeat captions instead of failing startup.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if reg == nil {
		reg = config.NewRegistry()
	}
	a := &App{
		cfg:     cfg,
		reg:     reg,
		log:     slog.Default(),
		version: "dev",
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if err := a.initMetrics(ctx); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	// ── 2. Caption journal ───────────────────────────────────────────────
	if err := a.initJournal(); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 3. Speaker profiles ──────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init profile store: %w", err)
	}

	// ── 4. Vocabulary ────────────────────────────────────────────────────
	if err := a.initVocabulary(); err != nil {
		return nil, fmt.Errorf("app: init vocabulary: %w", err)
	}

	// ── 5. Transcript stages ─────────────────────────────────────────────
	if err := a.initTranscript(); err != nil {
		return nil, fmt.Errorf("app: init transcript stages: %w", err)
	}

	// ── 6. Audio source ──────────────────────────────────────────────────
	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init source: %w", err)
	}

	// ── 7. Caption sinks ─────────────────────────────────────────────────
	if err := a.initSinks(); err != nil {
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}

	// ── 8. Caption pipeline ──────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 9. Health endpoints ──────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMetrics bootstraps the OTel provider with its Prometheus exporter and
// binds the pipeline instruments, unless metrics were injected.
func (a *App) initMetrics(ctx context.Context) error {
	if a.met != nil {
		return nil // injected
	}

	scrape, shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: a.version,
	})
	if err != nil {
		return err
	}
	a.scrape = scrape
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return shutdown(sctx)
	})

	met, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.met = met
	return nil
}

// initJournal opens the caption journal unless one was injected or the
// journal is disabled. An empty journal.dir selects the in-memory store.
func (a *App) initJournal() error {
	if a.jrnl != nil {
		return nil // injected
	}
	if !a.cfg.Journal.IsEnabled() {
		a.log.Info("caption journal disabled")
		return nil
	}

	opts := []journal.Option{journal.WithLogger(a.log)}
	if a.cfg.Journal.Heartbeats {
		opts = append(opts, journal.WithHeartbeats())
	}
	if a.cfg.Journal.Dir == "" {
		opts = append(opts, journal.WithInMemory())
	}
	j, err := journal.Open(a.cfg.Journal.Dir, opts...)
	if err != nil {
		return err
	}
	a.jrnl = j
	a.closers = append(a.closers, j.Close)
	return nil
}

// initStore builds the speaker profile store from the registry unless one
// was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}
	st, err := a.reg.CreateStore(ctx, a.cfg.Speaker, a.log)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	return nil
}

// initVocabulary loads the custom vocabulary word list and remembers the
// index mtime as the reload poller's baseline.
func (a *App) initVocabulary() error {
	dir := a.cfg.Vocabulary.Dir
	if dir == "" {
		return nil
	}
	st, err := vocab.New(dir)
	if err != nil {
		return err
	}
	a.vocabWords = st.Words()
	if fi, err := os.Stat(filepath.Join(dir, vocab.IndexFile)); err == nil {
		a.vocabModTime = fi.ModTime()
	}
	return nil
}

// initTranscript assembles the pre-speaker text chain and the punctuator.
// Phonetic correction runs first so redaction also catches corrected forms,
// and redaction runs before the punctuator so a configured LLM stage never
// sees restricted words.
func (a *App) initTranscript() error {
	var stages []transcript.Stage

	if a.cfg.Vocabulary.Dir != "" {
		a.corrector = phonetic.New(a.vocabWords)
		stages = append(stages, a.corrector)
	}

	words, err := a.redactionWords()
	if err != nil {
		return err
	}
	if len(words) > 0 {
		ropts := []transcript.RedactorOption{
			transcript.WithRedactMode(a.cfg.Redaction.Mode),
		}
		if a.cfg.Redaction.MaskChar != "" {
			ropts = append(ropts, transcript.WithMaskChar([]rune(a.cfg.Redaction.MaskChar)[0]))
		}
		if a.cfg.Redaction.Replacement != "" {
			ropts = append(ropts, transcript.WithReplacement(a.cfg.Redaction.Replacement))
		}
		r, err := transcript.NewRedactor(words, ropts...)
		if err != nil {
			return err
		}
		stages = append(stages, r)
	}
	if len(stages) > 0 {
		a.prechain = transcript.NewChain(a.log, stages...)
	}

	p, err := a.reg.CreatePunctuator(a.cfg.Punctuation, a.log)
	if err != nil {
		return err
	}
	a.punct = p
	return nil
}

// redactionWords merges the inline redaction word list with the optional
// words file, one word per line.
func (a *App) redactionWords() ([]string, error) {
	words := slices.Clone(a.cfg.Redaction.Words)
	path := a.cfg.Redaction.WordsFile
	if path == "" {
		return words, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading redaction words file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if w := strings.TrimSpace(line); w != "" {
			words = append(words, w)
		}
	}
	return words, nil
}

// initSource builds the capture source from the registry unless one was
// injected. The pipeline owns the source from here: it opens it on Start
// and closes it on Stop.
func (a *App) initSource() error {
	if a.src != nil {
		return nil // injected
	}
	src, err := a.reg.CreateSource(a.cfg, a.log)
	if err != nil {
		return err
	}
	a.src = src
	return nil
}

// initSinks builds every enabled sink and fans captions out through a single
// Multi. Injected sinks are appended after the configured ones and share
// their lifecycle.
func (a *App) initSinks() error {
	var sinks []sink.Sink
	for _, name := range a.cfg.Sinks.Enabled() {
		s, err := a.reg.CreateSink(name, a.cfg, a.log)
		if err != nil {
			return fmt.Errorf("sink %q: %w", name, err)
		}
		sinks = append(sinks, s)
	}
	sinks = append(sinks, a.extraSinks...)

	a.sinks = sink.NewMulti(a.log, sinks...)
	a.closers = append(a.closers, a.sinks.Close)
	return nil
}

// initPipeline wires every preceding subsystem into the caption pipeline.
func (a *App) initPipeline() error {
	den, err := denoise.New(a.cfg.Denoise.Mode)
	if err != nil {
		return err
	}

	popts := []pipeline.Option{
		pipeline.WithLogger(a.log),
		pipeline.WithMetrics(a.met),
		pipeline.WithQueueSize(a.cfg.Pipeline.QueueSize),
		pipeline.WithDequeueWait(a.cfg.Pipeline.DequeueWait()),
		pipeline.WithBufferLimit(a.cfg.Pipeline.BufferLimit()),
		pipeline.WithStopTimeout(a.cfg.Pipeline.StopTimeout()),
		pipeline.WithHeartbeats(a.cfg.Pipeline.HeartbeatsEnabled()),
		pipeline.WithAcceptThreshold(a.cfg.Speaker.Threshold),
		pipeline.WithDenoiser(den),
		pipeline.WithStore(a.store),
	}
	if f := a.engineFactory(); f != nil {
		popts = append(popts, pipeline.WithEngines(f))
	}
	if lang := a.engineLanguage(); lang != "" {
		popts = append(popts, pipeline.WithLanguage(lang))
	}
	if a.prechain != nil {
		popts = append(popts, pipeline.WithTranscriptChain(a.prechain))
	}
	if a.punct != nil {
		popts = append(popts, pipeline.WithPunctuator(a.punct))
	}
	if a.jrnl != nil {
		popts = append(popts, pipeline.WithJournal(a.jrnl))
	}
	if len(a.vocabWords) > 0 {
		popts = append(popts, pipeline.WithVocabulary(a.vocabWords))
	}

	a.pipe = pipeline.New(a.src, popts...)
	a.closers = append(a.closers, a.pipe.Stop)
	return nil
}

// engineFactory returns the injected factory, or one derived from the
// configured engine entries. Nil means heartbeat mode.
func (a *App) engineFactory() pipeline.EngineFactory {
	if a.engines != nil {
		return a.engines
	}
	return a.reg.EngineFactory(a.log, a.cfg.Engines)
}

// engineLanguage returns the first configured language hint. The recognizer
// session config carries a single language shared by every engine in the
// chain.
func (a *App) engineLanguage() string {
	for _, e := range a.cfg.Engines {
		if e.Language != "" {
			return e.Language
		}
	}
	return ""
}

// initHealth assembles the health mux and server. No server is created when
// health.addr is empty.
func (a *App) initHealth() {
	if a.cfg.Health.Addr == "" {
		return
	}

	checkers := []health.Checker{
		{Name: "pipeline", Check: a.pipe.Ready},
	}
	store := a.store
	if store != nil {
		checkers = append(checkers, health.Checker{
			Name: "profiles",
			Check: func(ctx context.Context) error {
				_, err := store.List(ctx)
				return err
			},
		})
	}

	hopts := []health.Option{health.WithVersion("vaiccs", a.version)}
	if a.cfg.Health.MetricsEnabled() && a.scrape != nil {
		hopts = append(hopts, health.WithMetrics(a.scrape))
	}

	mux := http.NewServeMux()
	health.New(checkers, hopts...).Register(mux)

	a.healthSrv = &http.Server{
		Addr:              a.cfg.Health.Addr,
		Handler:           observe.Middleware(a.met)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the caption pipeline and the health endpoints and blocks until
// ctx is cancelled. The vocabulary index is polled while running so words
// added through the CLI reach recognition without a restart.
//
// Run returns ctx.Err() after a clean stop, or the first subsystem error.
// Call Shutdown afterwards to release everything.
func (a *App) Run(ctx context.Context) error {
	if err := a.pipe.Start(a.sinks); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.healthSrv != nil {
		srv := a.healthSrv
		g.Go(func() error {
			a.log.Info("health endpoints listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.log.Warn("health server drain", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.watchVocabulary(ctx)
		return nil
	})

	a.log.Info("captioning service running",
		"source", string(a.cfg.Source.Kind),
		"sinks", a.cfg.Sinks.Enabled(),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Vocabulary reload ───────────────────────────────────────────────────────

// watchVocabulary polls the vocabulary index until ctx is cancelled.
func (a *App) watchVocabulary(ctx context.Context) {
	if a.cfg.Vocabulary.Dir == "" {
		return
	}
	ticker := time.NewTicker(vocabPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.reloadVocabulary()
		}
	}
}

// reloadVocabulary re-reads the vocabulary store when the index mtime moved
// and pushes the new word list into the phonetic corrector and the
// recognizer bias.
func (a *App) reloadVocabulary() {
	dir := a.cfg.Vocabulary.Dir
	fi, err := os.Stat(filepath.Join(dir, vocab.IndexFile))
	if err != nil {
		return // no index until the first word is added
	}
	if !fi.ModTime().After(a.vocabModTime) {
		return
	}
	a.vocabModTime = fi.ModTime()

	st, err := vocab.New(dir)
	if err != nil {
		a.log.Warn("vocabulary reload failed", "error", err)
		return
	}
	words := st.Words()
	a.vocabWords = words
	if a.corrector != nil {
		a.corrector.SetWords(words)
	}
	if err := a.pipe.UpdateVocabulary(words); err != nil {
		a.log.Warn("vocabulary update failed", "error", err)
		return
	}
	a.log.Info("vocabulary reloaded", "words", len(words))
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears subsystems down in reverse-init order: the pipeline stops
// first so nothing produces captions while the sinks flush, and the journal
// closes after the sinks so late writes still land. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
