// Package profile defines the speaker profile store used to attribute
// finalized utterances to enrolled speakers.
//
// A profile pairs a unique name with one voice embedding computed from the
// speaker's enrollment recordings. The [Store] contract covers enrollment
// (create/edit/delete), enumeration, and [Store.Match], a pure ranking
// operation that scores a query waveform against every stored embedding by
// cosine similarity. Whether the best match is good enough to accept is
// caller policy, not store policy.
//
// Two backends exist: the authoritative on-disk filestore and a
// pgvector-backed PostgreSQL store. Both must be safe for concurrent use.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Standard store errors. Backends wrap these so callers can branch with
// errors.Is regardless of the backend in use.
var (
	// ErrNotFound is returned when the named profile does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrExists is returned on a create or rename that would collide with
	// an existing profile name or folder.
	ErrExists = errors.New("profile already exists")

	// ErrNoRecordings is returned when an operation ends up with zero
	// readable recordings (and therefore zero embeddings) to work with.
	ErrNoRecordings = errors.New("no readable recordings")
)

// Profile is one enrolled speaker.
type Profile struct {
	// Name is the unique, case-sensitive profile key.
	Name string `json:"name"`

	// Slug is the filesystem-safe identifier derived from Name.
	Slug string `json:"slug"`

	// Folder is the backend folder holding this profile's files. Backends
	// without folders (PostgreSQL) leave it equal to Slug.
	Folder string `json:"folder"`

	// SourceFiles are the base names of the enrollment recordings the
	// current embedding was computed from.
	SourceFiles []string `json:"source_files"`

	// Embedding is the stored voice descriptor. May be nil in listings
	// that do not load embeddings.
	Embedding []float32 `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Match is one ranked match result.
type Match struct {
	// Name is the matched profile name.
	Name string

	// Score is the cosine similarity of the query embedding against the
	// stored embedding, in [-1, 1].
	Score float64
}

// EditOptions describes a profile edit. Zero-value fields are no-ops.
type EditOptions struct {
	// Add lists recordings whose embeddings are averaged into the
	// existing one (after Replace, if both are given).
	Add []string

	// Remove lists source file base names to delete from the profile
	// folder and metadata. Removing a file does not recompute the
	// embedding by itself.
	Remove []string

	// Replace, when non-empty, discards all prior source files and the
	// prior embedding, rebuilding entirely from these recordings.
	Replace []string

	// Rename moves the profile to a new name. Fails with ErrExists when
	// the target name is taken.
	Rename string
}

// Store is the speaker profile repository.
//
// Mutating operations are atomic: they either complete fully or leave no
// partial state behind. Implementations must be safe for concurrent use.
type Store interface {
	// Create enrolls a new profile from the given recording paths.
	// At least one recording must be readable; the embedding is the mean
	// of the per-recording embeddings. Returns ErrExists on a name or
	// folder collision and ErrNoRecordings when nothing was readable.
	Create(ctx context.Context, name string, recordings []string) (*Profile, error)

	// Edit applies opts to an existing profile. Returns ErrNotFound for
	// an unknown name, ErrExists on a rename collision, and
	// ErrNoRecordings when the edit leaves nothing to average.
	Edit(ctx context.Context, name string, opts EditOptions) (*Profile, error)

	// Delete removes the profile and repairs any index/folder drift left
	// by earlier failures (folders whose metadata still carry the deleted
	// name are swept too). Deleting an unknown name returns ErrNotFound.
	Delete(ctx context.Context, name string) error

	// Get returns one profile including its embedding.
	Get(ctx context.Context, name string) (*Profile, error)

	// List returns all profiles sorted by name, without embeddings.
	// Returns an empty (non-nil) slice when the store is empty.
	List(ctx context.Context) ([]Profile, error)

	// Match ranks every stored profile against the query waveform and
	// returns the topK highest-scoring matches in non-increasing score
	// order. Profiles whose embeddings cannot be loaded are skipped.
	// An empty store yields an empty result, not an error.
	Match(ctx context.Context, samples []float64, sampleRate, topK int) ([]Match, error)

	// Close releases backend resources.
	Close() error
}

// Slugify derives a filesystem-safe identifier from a profile name:
// ASCII letters and digits are kept (lowercased), '-' and '_' are kept,
// and every other rune becomes '_'.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
