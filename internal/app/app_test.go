package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/app"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/config"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/observe"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/sink"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	mocksource "github.com/dominicskywalkr/VAICCS-sub000/pkg/audio/source/mock"
	profmock "github.com/dominicskywalkr/VAICCS-sub000/pkg/profile/mock"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a config with no listeners, no stdout sink, and an
// in-memory journal, suitable for parallel tests.
func testConfig() *config.Config {
	cfg := config.Default()
	off := false
	cfg.Sinks.Stdout = &off
	cfg.Journal.Dir = ""
	cfg.Vocabulary.Dir = ""
	return cfg
}

// testRegistry returns a registry with just the rule punctuator, the only
// component the injected doubles do not replace.
func testRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterPunctuator("rule", func(config.PunctuationConfig, *slog.Logger) (transcript.Stage, error) {
		return transcript.RulePunctuator{}, nil
	})
	return reg
}

// chunkOf builds a silent mono chunk of the given duration at the canonical
// rate.
func chunkOf(d time.Duration) audio.Chunk {
	n := int(d.Milliseconds()) * audio.CanonicalRate / 1000 * audio.BytesPerSample
	return audio.Chunk{
		Data:       make([]byte, n),
		SampleRate: audio.CanonicalRate,
		Channels:   1,
	}
}

// captureSink records every caption it receives and counts Close calls.
type captureSink struct {
	mu         sync.Mutex
	captions   []types.Caption
	closeCalls int
}

var _ sink.Sink = (*captureSink)(nil)

func (s *captureSink) Write(c types.Caption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captions = append(s.captions, c)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *captureSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captions)
}

func (s *captureSink) All() []types.Caption {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Caption, len(s.captions))
	copy(out, s.captions)
	return out
}

func (s *captureSink) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_WithDoubles(t *testing.T) {
	t.Parallel()

	application, err := app.New(
		context.Background(),
		testConfig(),
		testRegistry(),
		app.WithLogger(discardLogger()),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithStore(&profmock.Store{}),
		app.WithSource(&mocksource.Source{}),
		app.WithSink(&captureSink{}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
}

func TestNew_UnregisteredPunctuator(t *testing.T) {
	t.Parallel()

	_, err := app.New(
		context.Background(),
		testConfig(),
		config.NewRegistry(),
		app.WithLogger(discardLogger()),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithStore(&profmock.Store{}),
		app.WithSource(&mocksource.Source{}),
	)
	if !errors.Is(err, config.ErrComponentNotRegistered) {
		t.Fatalf("New() error = %v, want ErrComponentNotRegistered", err)
	}
}

func TestNew_UnregisteredSource(t *testing.T) {
	t.Parallel()

	_, err := app.New(
		context.Background(),
		testConfig(),
		testRegistry(),
		app.WithLogger(discardLogger()),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithStore(&profmock.Store{}),
	)
	if !errors.Is(err, config.ErrComponentNotRegistered) {
		t.Fatalf("New() error = %v, want ErrComponentNotRegistered", err)
	}
	if !strings.Contains(err.Error(), "source") {
		t.Errorf("New() error = %q, want the source step named", err)
	}
}

func TestNew_BuildsConfiguredSinks(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	var built bool
	reg.RegisterSink("stdout", func(*config.Config, *slog.Logger) (sink.Sink, error) {
		built = true
		return sink.NewWriter(io.Discard), nil
	})

	cfg := testConfig()
	on := true
	cfg.Sinks.Stdout = &on

	_, err := app.New(
		context.Background(),
		cfg,
		reg,
		app.WithLogger(discardLogger()),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithStore(&profmock.Store{}),
		app.WithSource(&mocksource.Source{}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if !built {
		t.Error("stdout sink builder was not invoked")
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	src := &mocksource.Source{
		Script:   []audio.Chunk{chunkOf(100 * time.Millisecond), chunkOf(100 * time.Millisecond)},
		KeepOpen: true,
	}
	store := &profmock.Store{}
	out := &captureSink{}

	application, err := app.New(
		context.Background(),
		testConfig(),
		testRegistry(),
		app.WithLogger(discardLogger()),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithStore(store),
		app.WithSource(src),
		app.WithSink(out),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	// No engines are configured, so the scripted chunks surface as
	// heartbeat captions in the injected sink.
	waitFor(t, "a heartbeat caption", func() bool { return out.Count() >= 1 })
	if got := out.All()[0].Kind; got != types.KindHeartbeat {
		t.Errorf("Kind = %q, want %q", got, types.KindHeartbeat)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if !src.Closed() {
		t.Error("source was not closed during shutdown")
	}
	if got := out.CloseCalls(); got != 1 {
		t.Errorf("sink Close calls = %d, want 1", got)
	}
	// Injected components stay with the caller.
	if got := store.CallCount("Close"); got != 0 {
		t.Errorf("injected store Close calls = %d, want 0", got)
	}
}

func TestApp_ShutdownTwice(t *testing.T) {
	t.Parallel()

	out := &captureSink{}
	application, err := app.New(
		context.Background(),
		testConfig(),
		testRegistry(),
		app.WithLogger(discardLogger()),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithStore(&profmock.Store{}),
		app.WithSource(&mocksource.Source{}),
		app.WithSink(out),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
	if got := out.CloseCalls(); got != 1 {
		t.Errorf("sink Close calls = %d, want 1", got)
	}
}
