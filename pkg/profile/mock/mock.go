// Package mock provides an in-memory test double for [profile.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent
// use via an internal [sync.Mutex].
package mock

import (
	"context"
	"sync"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [profile.Store]. All exported
// *Err fields default to nil (success); nil *Result slices come back as
// empty non-nil slices.
type Store struct {
	mu sync.Mutex

	calls []Call

	// CreateResult is returned by [Store.Create] on success.
	CreateResult *profile.Profile

	// CreateErr is returned by [Store.Create] when non-nil.
	CreateErr error

	// EditResult is returned by [Store.Edit] on success.
	EditResult *profile.Profile

	// EditErr is returned by [Store.Edit] when non-nil.
	EditErr error

	// DeleteErr is returned by [Store.Delete] when non-nil.
	DeleteErr error

	// GetResult is returned by [Store.Get] on success.
	GetResult *profile.Profile

	// GetErr is returned by [Store.Get] when non-nil.
	GetErr error

	// ListResult is returned by [Store.List].
	ListResult []profile.Profile

	// ListErr is returned by [Store.List] when non-nil.
	ListErr error

	// MatchResult is returned by [Store.Match].
	MatchResult []profile.Match

	// MatchErr is returned by [Store.Match] when non-nil.
	MatchErr error

	// CloseErr is returned by [Store.Close] when non-nil.
	CloseErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Create implements [profile.Store].
func (m *Store) Create(_ context.Context, name string, recordings []string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Create", Args: []any{name, recordings}})
	return m.CreateResult, m.CreateErr
}

// Edit implements [profile.Store].
func (m *Store) Edit(_ context.Context, name string, opts profile.EditOptions) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Edit", Args: []any{name, opts}})
	return m.EditResult, m.EditErr
}

// Delete implements [profile.Store].
func (m *Store) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Delete", Args: []any{name}})
	return m.DeleteErr
}

// Get implements [profile.Store].
func (m *Store) Get(_ context.Context, name string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Get", Args: []any{name}})
	return m.GetResult, m.GetErr
}

// List implements [profile.Store].
func (m *Store) List(_ context.Context) ([]profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "List", Args: nil})
	if m.ListResult == nil {
		return []profile.Profile{}, m.ListErr
	}
	out := make([]profile.Profile, len(m.ListResult))
	copy(out, m.ListResult)
	return out, m.ListErr
}

// Match implements [profile.Store].
func (m *Store) Match(_ context.Context, samples []float64, sampleRate, topK int) ([]profile.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Match", Args: []any{samples, sampleRate, topK}})
	if m.MatchResult == nil {
		return []profile.Match{}, m.MatchErr
	}
	out := make([]profile.Match, len(m.MatchResult))
	copy(out, m.MatchResult)
	return out, m.MatchErr
}

// Close implements [profile.Store].
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Close", Args: nil})
	return m.CloseErr
}

// Ensure Store satisfies the interface at compile time.
var _ profile.Store = (*Store)(nil)
