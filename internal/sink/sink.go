// Package sink delivers finalized captions to their destinations.
//
// A [Sink] consumes one [types.Caption] at a time. The pipeline writes every
// caption to a single [Multi], which fans out to the configured sinks and
// treats per-sink failures as log lines rather than errors, so captioning
// never stalls because one destination is down. Individual sinks decide which
// caption kinds they render: the console writer prints everything, the SRT
// sink skips heartbeats, the Discord sink skips heartbeats and drops lines
// while a previous send is still in flight.
package sink

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

// Sink consumes finalized captions. Write must be safe for sequential use by
// the pipeline worker; Close flushes and releases resources.
type Sink interface {
	Write(c types.Caption) error
	Close() error
}

// Func adapts a plain function to the [Sink] interface. Close is a no-op.
type Func func(types.Caption) error

// Write implements [Sink].
func (f Func) Write(c types.Caption) error { return f(c) }

// Close implements [Sink].
func (f Func) Close() error { return nil }

var _ Sink = (Func)(nil)

// Multi fans each caption out to several sinks. Write errors are logged and
// swallowed; Close closes every sink and joins their errors.
type Multi struct {
	sinks []Sink
	log   *slog.Logger
}

var _ Sink = (*Multi)(nil)

// NewMulti creates a fan-out over the given sinks. A nil logger falls back
// to [slog.Default].
func NewMulti(log *slog.Logger, sinks ...Sink) *Multi {
	if log == nil {
		log = slog.Default()
	}
	return &Multi{sinks: sinks, log: log}
}

// Write implements [Sink]. It always returns nil.
func (m *Multi) Write(c types.Caption) error {
	for _, s := range m.sinks {
		if err := s.Write(c); err != nil {
			m.log.Warn("caption sink write failed",
				"sink", fmt.Sprintf("%T", s),
				"error", err)
		}
	}
	return nil
}

// Close implements [Sink].
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
