// Package mock provides scripted test doubles for the recognizer interfaces.
//
// A [Session] finalizes on a configurable cadence and pops scripted results,
// which lets pipeline tests drive utterance flow deterministically without a
// speech model:
//
//	sess := &mock.Session{FinalEvery: 2, Results: []recognizer.Result{{Text: "hello"}}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
)

// Engine is a configurable test double for [recognizer.Engine].
type Engine struct {
	mu sync.Mutex

	// Session is handed out by NewSession when set. When nil, each call
	// returns a fresh zero-configured Session.
	Session *Session

	// NewSessionErr is returned by [Engine.NewSession] when non-nil.
	NewSessionErr error

	// CloseErr is returned by [Engine.Close] when non-nil.
	CloseErr error

	// EngineName overrides the reported name. Defaults to "mock".
	EngineName string

	sessions int
	configs  []recognizer.Config
	closed   bool
}

var _ recognizer.Engine = (*Engine)(nil)

// NewSession implements [recognizer.Engine].
func (e *Engine) NewSession(cfg recognizer.Config) (recognizer.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions++
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Name implements [recognizer.Engine].
func (e *Engine) Name() string {
	if e.EngineName != "" {
		return e.EngineName
	}
	return "mock"
}

// Close implements [recognizer.Engine].
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return e.CloseErr
}

// SessionCount returns how many sessions were requested.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions
}

// Configs returns a copy of every Config passed to NewSession.
func (e *Engine) Configs() []recognizer.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]recognizer.Config, len(e.configs))
	copy(out, e.configs)
	return out
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Session is a scripted test double for [recognizer.Session].
//
// Accept reports an utterance as final on every FinalEvery-th call (never
// when FinalEvery is zero); Result pops the next scripted result, returning
// an empty Result once the script is exhausted.
type Session struct {
	mu sync.Mutex

	// FinalEvery makes every Nth Accept call report finality. Zero means
	// Accept never finalizes.
	FinalEvery int

	// Results is the script popped by successive Result calls.
	Results []recognizer.Result

	// AcceptErr is returned by [Session.Accept] when non-nil.
	AcceptErr error

	// ResultErr is returned by [Session.Result] when non-nil.
	ResultErr error

	// CloseErr is returned by [Session.Close] when non-nil.
	CloseErr error

	accepts int
	bytes   int
	next    int
	closed  bool
}

var _ recognizer.Session = (*Session)(nil)

// Accept implements [recognizer.Session].
func (s *Session) Accept(pcm []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepts++
	s.bytes += len(pcm)
	if s.AcceptErr != nil {
		return false, s.AcceptErr
	}
	if s.FinalEvery > 0 && s.accepts%s.FinalEvery == 0 {
		return true, nil
	}
	return false, nil
}

// Result implements [recognizer.Session].
func (s *Session) Result() (recognizer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ResultErr != nil {
		return recognizer.Result{}, s.ResultErr
	}
	if s.next >= len(s.Results) {
		return recognizer.Result{}, nil
	}
	res := s.Results[s.next]
	s.next++
	return res, nil
}

// Close implements [recognizer.Session].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.CloseErr
}

// Accepts returns how many chunks were fed to Accept.
func (s *Session) Accepts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

// Bytes returns the total PCM byte count fed to Accept.
func (s *Session) Bytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
