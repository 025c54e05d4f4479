// Package llmpunct implements a language-model-backed punctuation stage.
//
// The [Punctuator] sends each finalized utterance to an [llm.Provider] with
// a conservative system prompt that allows punctuation and casing changes
// only. The reply is accepted only when its letters and digits, lowercased,
// are identical to the input's; a model that reworded the utterance is
// treated as a failed call. Calls run through a circuit breaker so a dead or
// misbehaving endpoint stops costing a round-trip per utterance; every
// failure path degrades to the rule punctuator, so the stage never errors
// and captions keep flowing.
package llmpunct

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/resilience"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	llm "github.com/dominicskywalkr/VAICCS-sub000/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 256
	defaultTimeout     = 10 * time.Second
)

// systemPrompt instructs the model to touch nothing but punctuation and
// casing. The validation in Process enforces the word-preservation rules, so
// a model that ignores them degrades to the rule punctuator rather than
// corrupting captions.
const systemPrompt = `You are a punctuation restoration assistant for live speech captions.

Your task: restore punctuation and capitalisation in the transcribed utterance provided by the user.

Rules:
- Add sentence punctuation and fix letter casing. Inserting apostrophes into contractions is allowed.
- Do NOT add, remove, reorder, or replace any words.
- Do NOT translate, paraphrase, spell out numbers, or expand abbreviations.
- Respond with ONLY the corrected text. No quotes, no markdown, no explanations.`

var (
	errEmptyCompletion = errors.New("model returned an empty completion")
	errWordsChanged    = errors.New("model altered the words of the utterance")
)

// Option configures a [Punctuator].
type Option func(*Punctuator)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(p *Punctuator) {
		if log != nil {
			p.log = log
		}
	}
}

// WithTimeout bounds each model call. Zero or negative disables the bound.
// Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(p *Punctuator) { p.timeout = d }
}

// WithMaxTokens caps the completion length requested from the model.
// Default: 256, ample for a capped utterance buffer.
func WithMaxTokens(n int) Option {
	return func(p *Punctuator) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithBreaker substitutes the circuit breaker guarding model calls. The
// default breaker trips after 5 consecutive failures and probes after 30s.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(p *Punctuator) {
		if cb != nil {
			p.breaker = cb
		}
	}
}

// Punctuator is a [transcript.Stage] that restores punctuation via an LLM,
// falling back to [transcript.Punctuate] whenever the model is unavailable
// or produces an unusable reply. Safe for concurrent use.
type Punctuator struct {
	provider  llm.Provider
	breaker   *resilience.CircuitBreaker
	log       *slog.Logger
	timeout   time.Duration
	maxTokens int
}

var _ transcript.Stage = (*Punctuator)(nil)

// New creates a Punctuator backed by the given provider.
func New(provider llm.Provider, opts ...Option) (*Punctuator, error) {
	if provider == nil {
		return nil, errors.New("llm provider is required")
	}
	p := &Punctuator{
		provider:  provider,
		breaker:   resilience.NewBreaker("llm-punctuator"),
		log:       slog.Default(),
		timeout:   defaultTimeout,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements [transcript.Stage].
func (p *Punctuator) Name() string { return "punctuate" }

// Process implements [transcript.Stage]. It never returns an error: any
// failure (open breaker, transport error, reworded reply) yields the rule
// punctuator's output instead.
func (p *Punctuator) Process(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	var out string
	err := p.breaker.Execute(func() error {
		candidate, err := p.complete(ctx, text)
		if err != nil {
			return err
		}
		if !sameWords(text, candidate) {
			return errWordsChanged
		}
		out = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			p.log.Debug("llm punctuation skipped, breaker open")
		} else {
			p.log.Warn("llm punctuation failed, using rules", "error", err)
		}
		return transcript.Punctuate(text), nil
	}
	return out, nil
}

// complete performs one model round-trip and returns the trimmed reply.
func (p *Punctuator) complete(ctx context.Context, text string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: text}},
		Temperature:  defaultTemperature,
		MaxTokens:    p.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errEmptyCompletion
	}
	candidate := strings.TrimSpace(resp.Content)
	if candidate == "" {
		return "", errEmptyCompletion
	}
	return candidate, nil
}

// sameWords reports whether a and b carry the same letters and digits in the
// same order, ignoring case. Punctuation, spacing, and casing changes pass;
// any change to the words themselves does not.
func sameWords(a, b string) bool {
	return lettersAndDigits(a) == lettersAndDigits(b)
}

func lettersAndDigits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}
