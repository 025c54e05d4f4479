package transcript

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Redaction modes accepted by [NewRedactor].
const (
	// RedactFixed substitutes the configured replacement text.
	RedactFixed = "fixed"

	// RedactKeepFirst masks every alphanumeric character except the first.
	RedactKeepFirst = "keep_first"

	// RedactKeepLast masks every alphanumeric character except the last.
	RedactKeepLast = "keep_last"

	// RedactKeepFirstLast masks the interior of the token, keeping the first
	// and last alphanumeric characters.
	RedactKeepFirstLast = "keep_first_last"

	// RedactRemove drops the token entirely and collapses the surrounding
	// whitespace.
	RedactRemove = "remove"
)

const (
	defaultMaskChar    = '*'
	defaultReplacement = "****"
)

// RedactorOption is a functional option for configuring a [Redactor].
type RedactorOption func(*Redactor)

// WithRedactMode sets the redaction mode. Default: [RedactFixed].
func WithRedactMode(mode string) RedactorOption {
	return func(r *Redactor) {
		r.mode = mode
	}
}

// WithMaskChar sets the character used to mask letters in the keep_* modes.
// Default: '*'.
func WithMaskChar(c rune) RedactorOption {
	return func(r *Redactor) {
		r.maskChar = c
	}
}

// WithReplacement sets the replacement text used by [RedactFixed].
// Default: "****".
func WithReplacement(text string) RedactorOption {
	return func(r *Redactor) {
		r.replacement = text
	}
}

// Redactor masks restricted words in caption text. Matching is whole-token
// and case-insensitive; hyphenated and apostrophized compounds are matched as
// one token, so "mother-in-law" in the word list blocks the whole phrase.
// Punctuation adjacent to a redacted token is preserved.
//
// Redactor is read-only after construction and safe for concurrent use.
type Redactor struct {
	mode        string
	maskChar    rune
	replacement string
	words       map[string]struct{}
}

// Ensure Redactor satisfies the Stage interface at compile time.
var _ Stage = (*Redactor)(nil)

// NewRedactor builds a [Redactor] over the given restricted words. Words are
// matched case-insensitively; empty entries are skipped. An unknown mode is
// an error.
func NewRedactor(words []string, opts ...RedactorOption) (*Redactor, error) {
	r := &Redactor{
		mode:        RedactFixed,
		maskChar:    defaultMaskChar,
		replacement: defaultReplacement,
		words:       make(map[string]struct{}, len(words)),
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			r.words[w] = struct{}{}
		}
	}
	for _, o := range opts {
		o(r)
	}

	switch r.mode {
	case RedactFixed, RedactKeepFirst, RedactKeepLast, RedactKeepFirstLast, RedactRemove:
	default:
		return nil, fmt.Errorf("unknown redaction mode %q (valid: fixed, keep_first, keep_last, keep_first_last, remove)", r.mode)
	}
	if r.maskChar == 0 {
		r.maskChar = defaultMaskChar
	}
	return r, nil
}

// Name implements [Stage].
func (r *Redactor) Name() string { return "redact" }

// Process implements [Stage]. It never returns an error.
func (r *Redactor) Process(_ context.Context, text string) (string, error) {
	return r.Redact(text), nil
}

// Redact replaces every restricted token in text according to the configured
// mode.
func (r *Redactor) Redact(text string) string {
	if len(r.words) == 0 || text == "" {
		return text
	}

	removed := false
	out := wordRE.ReplaceAllStringFunc(text, func(tok string) string {
		if _, bad := r.words[strings.ToLower(tok)]; !bad {
			return tok
		}
		switch r.mode {
		case RedactRemove:
			removed = true
			return ""
		case RedactFixed:
			return r.replacement
		default:
			return r.maskToken(tok)
		}
	})
	if removed {
		out = strings.Join(strings.Fields(out), " ")
	}
	return out
}

// maskToken masks the alphanumeric characters of tok per the keep_* mode,
// preserving hyphens, apostrophes, and any other non-alphanumeric characters
// in place.
func (r *Redactor) maskToken(tok string) string {
	runes := []rune(tok)
	var maskable []int
	for i, c := range runes {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			maskable = append(maskable, i)
		}
	}
	if len(maskable) == 0 {
		return tok
	}

	show := make(map[int]struct{}, 2)
	switch r.mode {
	case RedactKeepFirst:
		show[maskable[0]] = struct{}{}
	case RedactKeepLast:
		show[maskable[len(maskable)-1]] = struct{}{}
	case RedactKeepFirstLast:
		show[maskable[0]] = struct{}{}
		show[maskable[len(maskable)-1]] = struct{}{}
	}

	out := make([]rune, len(runes))
	for i, c := range runes {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			out[i] = c
			continue
		}
		if _, keep := show[i]; keep {
			out[i] = c
		} else {
			out[i] = r.maskChar
		}
	}
	return string(out)
}

// ReadWordList loads a restricted-word file: one word per line, blank lines
// and lines starting with # ignored, entries lowercased.
func ReadWordList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read word list %q: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, strings.ToLower(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word list %q: %w", path, err)
	}
	return words, nil
}
