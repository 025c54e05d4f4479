// Package phonetic implements vocabulary-guided correction of recognizer
// output using Double Metaphone phonetic encoding combined with Jaro-Winkler
// string similarity.
//
// Recognizers reliably mangle proper nouns and jargon, exactly the words an
// operator adds to the custom vocabulary. For each caption token that is not
// already a vocabulary word, the [Corrector] computes Double Metaphone codes;
// when a vocabulary word shares a code and the Jaro-Winkler similarity of the
// two strings (case-insensitive) meets the threshold, the token is replaced
// with the canonical vocabulary spelling. A capitalized token keeps its
// leading capital after substitution.
//
// Requiring the phonetic-code overlap before ranking keeps coincidental
// spelling similarity (e.g. "grain" vs "brain") from triggering a
// substitution.
package phonetic

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
)

// defaultThreshold is the minimum Jaro-Winkler score required for a
// phonetically-matched vocabulary word to be substituted.
const defaultThreshold = 0.84

var wordRE = regexp.MustCompile(transcript.WordPattern)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithThreshold sets the minimum Jaro-Winkler score required to accept a
// phonetic match. Default: 0.84.
func WithThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.threshold = threshold
	}
}

// vocabEntry is one prepared vocabulary word.
type vocabEntry struct {
	spelling string // canonical spelling as stored in the vocabulary
	lower    string
	codes    map[string]struct{}
}

// Corrector substitutes misheard tokens with custom-vocabulary spellings.
// The vocabulary can be swapped at runtime via [Corrector.SetWords]; all
// methods are safe for concurrent use.
type Corrector struct {
	threshold float64

	mu      sync.RWMutex
	entries []vocabEntry
	known   map[string]struct{}
}

// Ensure Corrector satisfies the Stage interface at compile time.
var _ transcript.Stage = (*Corrector)(nil)

// New returns a [Corrector] over the given vocabulary words.
func New(words []string, opts ...Option) *Corrector {
	c := &Corrector{threshold: defaultThreshold}
	for _, o := range opts {
		o(c)
	}
	c.entries, c.known = prepare(words)
	return c
}

// SetWords replaces the active vocabulary. Callers pass the full word list;
// there is no incremental update.
func (c *Corrector) SetWords(words []string) {
	entries, known := prepare(words)
	c.mu.Lock()
	c.entries = entries
	c.known = known
	c.mu.Unlock()
}

// prepare builds the phonetic index for a word list. Empty entries are
// skipped.
func prepare(words []string) ([]vocabEntry, map[string]struct{}) {
	entries := make([]vocabEntry, 0, len(words))
	known := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		if _, dup := known[lower]; dup {
			continue
		}
		known[lower] = struct{}{}
		entries = append(entries, vocabEntry{
			spelling: w,
			lower:    lower,
			codes:    codesFor(lower),
		})
	}
	return entries, known
}

// codesFor returns the Double Metaphone codes of a word. Empty codes
// (produced when the word has no consonants) are excluded.
func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// Name implements [transcript.Stage].
func (c *Corrector) Name() string { return "phonetic" }

// Process implements [transcript.Stage]. It never returns an error.
func (c *Corrector) Process(_ context.Context, text string) (string, error) {
	return c.Correct(text), nil
}

// Correct replaces every token of text that phonetically matches a
// vocabulary word. Tokens that already are vocabulary words (ignoring case)
// pass through untouched.
func (c *Corrector) Correct(text string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.entries) == 0 || text == "" {
		return text
	}

	return wordRE.ReplaceAllStringFunc(text, func(tok string) string {
		lower := strings.ToLower(tok)
		if _, exact := c.known[lower]; exact {
			return tok
		}
		spelling, _, ok := c.matchLocked(lower)
		if !ok {
			return tok
		}
		if startsUpper(tok) {
			return upperFirst(spelling)
		}
		return spelling
	})
}

// Match attempts to find the vocabulary word most phonetically similar to
// word. When ok is false, corrected equals word unchanged and score is 0.
func (c *Corrector) Match(word string) (corrected string, score float64, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(word))
	if lower == "" {
		return word, 0, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	spelling, best, ok := c.matchLocked(lower)
	if !ok {
		return word, 0, false
	}
	return spelling, best, true
}

// matchLocked ranks the phonetic candidates for a lowercased token.
// Must be called with c.mu held (read or write).
func (c *Corrector) matchLocked(lower string) (string, float64, bool) {
	tokenCodes := codesFor(lower)
	if len(tokenCodes) == 0 {
		return lower, 0, false
	}

	var (
		best      string
		bestScore float64
	)
	for _, e := range c.entries {
		if !codesOverlap(tokenCodes, e.codes) {
			continue
		}
		score := matchr.JaroWinkler(lower, e.lower, false)
		if score >= c.threshold && score > bestScore {
			best = e.spelling
			bestScore = score
		}
	}
	if best == "" {
		return lower, 0, false
	}
	return best, bestScore, true
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// startsUpper reports whether the first rune of s is an uppercase letter.
func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// upperFirst capitalizes the first rune of s.
func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
