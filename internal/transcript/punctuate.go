package transcript

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	standaloneIRE = regexp.MustCompile(`\bi\b`)
	capAfterRE    = regexp.MustCompile(`([.?!]["']?\s+)([a-z])`)
	terminalRE    = regexp.MustCompile(`[.?!]\s*$`)
)

// RulePunctuator restores casing and sentence termination with a handful of
// deterministic rules: whitespace is collapsed, standalone "i" becomes "I",
// the first letter and the letter after sentence-ending punctuation are
// capitalized, and a terminal "." is appended when the text ends without one.
//
// It is stateless and safe for concurrent use.
type RulePunctuator struct{}

// Ensure RulePunctuator satisfies the Stage interface at compile time.
var _ Stage = RulePunctuator{}

// Name implements [Stage].
func (RulePunctuator) Name() string { return "punctuate" }

// Process implements [Stage]. It never returns an error. Whitespace-only
// input is returned unchanged.
func (RulePunctuator) Process(_ context.Context, text string) (string, error) {
	return Punctuate(text), nil
}

// Punctuate applies the rule punctuator to text. It is exported so the LLM
// punctuator can fall back to it without constructing a stage.
func Punctuate(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return text
	}

	s = standaloneIRE.ReplaceAllString(s, "I")

	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]

	// The trailing [a-z] of each match is a single ASCII byte.
	s = capAfterRE.ReplaceAllStringFunc(s, func(m string) string {
		return m[:len(m)-1] + strings.ToUpper(m[len(m)-1:])
	})

	if !terminalRE.MatchString(s) {
		s += "."
	}
	return s
}
