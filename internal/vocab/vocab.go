// Package vocab implements the persistent custom vocabulary store.
//
// Layout under the store directory:
//
//	vocab.json     authoritative word → {slug, folder, samples, added_at} table
//	<folder>/      per-word folder of optional sample recordings
//
// Words feed the recognizer bias list and the phonetic corrector; sample
// recordings are kept for future acoustic adaptation and are never read by
// the pipeline itself. One mutex serializes every operation, the same
// discipline as the profile filestore.
package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
)

// IndexFile is the name of the JSON index inside a store directory. The
// service polls its mtime to pick up words added through the CLI.
const IndexFile = "vocab.json"

// ErrNotFound is returned when the named word is not in the vocabulary.
var ErrNotFound = errors.New("vocabulary word not found")

// Entry is one vocabulary word with its stored sample recordings.
type Entry struct {
	Word    string    `json:"-"`
	Slug    string    `json:"slug"`
	Folder  string    `json:"folder"`
	Samples []string  `json:"samples"`
	AddedAt time.Time `json:"added_at"`
}

// Store is the file-backed vocabulary store.
type Store struct {
	dir string

	mu    sync.Mutex
	index map[string]Entry
}

// New opens (or initializes) the store rooted at dir. The directory is
// created when missing; an existing vocab.json is loaded into memory and
// kept authoritative for the lifetime of the Store.
func New(dir string) (*Store, error) {
	s := &Store{
		dir:   dir,
		index: make(map[string]Entry),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating vocabulary directory %q: %w", dir, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh store.
	case err != nil:
		return nil, fmt.Errorf("reading vocabulary index: %w", err)
	default:
		if err := json.Unmarshal(data, &s.index); err != nil {
			return nil, fmt.Errorf("parsing vocabulary index: %w", err)
		}
	}
	return s, nil
}

// Add puts word into the vocabulary and copies the given sample recordings
// into its folder. Adding an existing word merges: new samples are copied
// alongside the old ones (base-name collisions get a numeric suffix) and the
// original added_at is kept.
func (s *Store) Add(word string, samples ...string) (*Entry, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, errors.New("vocabulary word must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, existed := s.index[word]
	if !existed {
		entry = Entry{
			Slug:    profile.Slugify(word),
			AddedAt: time.Now().UTC(),
		}
		entry.Folder = s.freeFolderLocked(entry.Slug)
	}

	dir := filepath.Join(s.dir, entry.Folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("add %q: %w", word, err)
	}

	copied, err := copySamples(dir, entry.Samples, samples)
	if err != nil {
		if !existed {
			os.RemoveAll(dir)
		}
		return nil, fmt.Errorf("add %q: %w", word, err)
	}
	entry.Samples = append(entry.Samples, copied...)

	s.index[word] = entry
	if err := s.persistIndexLocked(); err != nil {
		if !existed {
			delete(s.index, word)
			os.RemoveAll(dir)
		}
		return nil, fmt.Errorf("add %q: %w", word, err)
	}

	out := entry
	out.Word = word
	return &out, nil
}

// Remove deletes word and its sample folder. Removing an unknown word
// returns [ErrNotFound].
func (s *Store) Remove(word string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[word]
	if !ok {
		return fmt.Errorf("remove %q: %w", word, ErrNotFound)
	}
	if err := os.RemoveAll(filepath.Join(s.dir, entry.Folder)); err != nil {
		return fmt.Errorf("remove %q: %w", word, err)
	}
	delete(s.index, word)
	if err := s.persistIndexLocked(); err != nil {
		return fmt.Errorf("remove %q: %w", word, err)
	}
	return nil
}

// Words returns every vocabulary word, sorted.
func (s *Store) Words() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.index))
	for word := range s.index {
		out = append(out, word)
	}
	sort.Strings(out)
	return out
}

// List returns every entry with its Word populated, sorted by word.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.index))
	for word, entry := range s.index {
		entry.Word = word
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out
}

// freeFolderLocked returns slug, or slug-2, slug-3, … when another entry
// already claims the folder (distinct words can share a slug).
func (s *Store) freeFolderLocked(slug string) string {
	taken := make(map[string]bool, len(s.index))
	for _, entry := range s.index {
		taken[entry.Folder] = true
	}
	if !taken[slug] {
		return slug
	}
	for n := 2; ; n++ {
		folder := fmt.Sprintf("%s-%d", slug, n)
		if !taken[folder] {
			return folder
		}
	}
}

// copySamples copies each source file into dir under its base name,
// suffixing the stem (clip.wav → clip-2.wav) when the name is already
// recorded or present on disk. Returns the stored base names.
func copySamples(dir string, existing, sources []string) ([]string, error) {
	used := make(map[string]bool, len(existing))
	for _, base := range existing {
		used[base] = true
	}

	var copied []string
	for _, src := range sources {
		base := freeSampleName(dir, used, filepath.Base(src))
		if err := copyFile(src, filepath.Join(dir, base)); err != nil {
			return nil, fmt.Errorf("copying sample %q: %w", src, err)
		}
		used[base] = true
		copied = append(copied, base)
	}
	return copied, nil
}

func freeSampleName(dir string, used map[string]bool, base string) string {
	free := func(name string) bool {
		if used[name] {
			return false
		}
		_, err := os.Stat(filepath.Join(dir, name))
		return errors.Is(err, os.ErrNotExist)
	}
	if free(base) {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if free(name) {
			return name
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// persistIndexLocked writes vocab.json via a temp file so readers never see
// a torn index.
func (s *Store) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding vocabulary index: %w", err)
	}
	path := filepath.Join(s.dir, IndexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing vocabulary index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing vocabulary index: %w", err)
	}
	return nil
}
