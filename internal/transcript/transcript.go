// Package transcript defines the post-processing applied to finalized
// utterances before they are emitted as captions.
//
// Raw recognizer output is lowercase, unpunctuated, and may contain words the
// operator wants masked. A [Chain] of [Stage] values repairs that in order:
//
//  1. Redaction ([Redactor]): restricted words are masked or removed before
//     the text reaches any sink or journal.
//  2. Phonetic correction (transcript/phonetic): tokens that sound like a
//     custom-vocabulary word are replaced with the canonical spelling.
//  3. Punctuation ([RulePunctuator] or transcript/llmpunct): best-effort
//     casing and sentence termination.
//
// A stage failure never loses an utterance: the [Chain] logs the error and
// passes the previous text through unchanged.
//
// Stages must be safe for concurrent use unless their doc says otherwise.
package transcript

import (
	"context"
	"log/slog"
	"regexp"
	"time"
)

// WordPattern matches one caption token: a word run, optionally extended by
// hyphenated or apostrophized parts, so compounds like "mother-in-law" and
// "o'connor" are a single token.
const WordPattern = `\b\w+(?:[-']\w+)*\b`

var wordRE = regexp.MustCompile(WordPattern)

// Stage is one transcript post-processing step.
type Stage interface {
	// Name identifies the stage in logs.
	Name() string

	// Process transforms text. On error the chain keeps the input text, so
	// implementations should return the error rather than partial output.
	Process(ctx context.Context, text string) (string, error)
}

// StageFunc adapts a function to the [Stage] interface.
type StageFunc struct {
	// Label is returned by Name.
	Label string

	// Fn is invoked by Process.
	Fn func(ctx context.Context, text string) (string, error)
}

// Name implements [Stage].
func (f StageFunc) Name() string { return f.Label }

// Process implements [Stage].
func (f StageFunc) Process(ctx context.Context, text string) (string, error) {
	return f.Fn(ctx, text)
}

// Chain applies stages in order, timing each. Chain is safe for concurrent
// use when all its stages are.
type Chain struct {
	stages []Stage
	log    *slog.Logger
}

// NewChain builds a [Chain] over the given stages. A nil logger falls back to
// [slog.Default].
func NewChain(log *slog.Logger, stages ...Stage) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{stages: stages, log: log}
}

// Process runs text through every stage in order. A stage error is logged and
// the text from before that stage carries forward; post-processing must never
// lose an utterance.
func (c *Chain) Process(ctx context.Context, text string) string {
	for _, st := range c.stages {
		start := time.Now()
		out, err := st.Process(ctx, text)
		if err != nil {
			c.log.Warn("transcript stage failed, passing text through",
				"stage", st.Name(),
				"error", err)
			continue
		}
		c.log.Debug("transcript stage applied",
			"stage", st.Name(),
			"duration", time.Since(start))
		text = out
	}
	return text
}
