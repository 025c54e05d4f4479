package resilience

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
)

var (
	// ErrNoEngines is returned by [EngineChain.NewSession] when the chain
	// holds no engines.
	ErrNoEngines = errors.New("engine chain is empty")

	// ErrAllEnginesFailed is returned by [EngineChain.NewSession] when every
	// engine in the chain failed to open a session.
	ErrAllEnginesFailed = errors.New("all recognizer engines failed")
)

// EngineChain holds recognizer engines in preference order and opens a
// session on the first one that succeeds. A chain is built once at startup
// from the configured engine list; callers that lose a session mid-run ask
// the chain for a new one, which re-walks the order from the top so a
// recovered primary takes over again.
type EngineChain struct {
	engines []recognizer.Engine
	log     *slog.Logger
}

// NewEngineChain creates a chain over the given engines in preference order.
// A nil logger falls back to [slog.Default].
func NewEngineChain(log *slog.Logger, engines ...recognizer.Engine) *EngineChain {
	if log == nil {
		log = slog.Default()
	}
	return &EngineChain{engines: engines, log: log}
}

// NewSession tries each engine in order and returns the first session opened
// along with the name of the engine that produced it. Failures short of the
// last engine are logged and skipped; if every engine fails the returned
// error wraps [ErrAllEnginesFailed] and carries each engine's failure.
func (c *EngineChain) NewSession(cfg recognizer.Config) (recognizer.Session, string, error) {
	if len(c.engines) == 0 {
		return nil, "", ErrNoEngines
	}

	var errs []error
	for i, eng := range c.engines {
		sess, err := eng.NewSession(cfg)
		if err == nil {
			if i > 0 {
				c.log.Info("recognizer fell back",
					"engine", eng.Name(),
					"position", i+1)
			}
			return sess, eng.Name(), nil
		}
		c.log.Warn("recognizer engine failed to open session",
			"engine", eng.Name(),
			"error", err)
		errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
	}
	return nil, "", fmt.Errorf("%w: %v", ErrAllEnginesFailed, errors.Join(errs...))
}

// Names returns the engine names in chain order.
func (c *EngineChain) Names() []string {
	names := make([]string, len(c.engines))
	for i, eng := range c.engines {
		names[i] = eng.Name()
	}
	return names
}

// Len returns the number of engines in the chain.
func (c *EngineChain) Len() int {
	return len(c.engines)
}

// Close closes every engine in the chain, joining any errors.
func (c *EngineChain) Close() error {
	var errs []error
	for _, eng := range c.engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine %q: %w", eng.Name(), err))
		}
	}
	return errors.Join(errs...)
}
