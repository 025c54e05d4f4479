// Package filestore implements the on-disk [profile.Store].
//
// Layout under the store directory:
//
//	index.json            authoritative name → {slug, folder, profile_file} table
//	<folder>/profile.json per-profile metadata (derived copy of the index entry)
//	<folder>/embedding.f32 voice embedding, flat little-endian float32
//	<folder>/<recording>  copied enrollment recordings (WAV)
//
// The index is the single source of truth; folder metadata exists so that
// drift left behind by interrupted operations can be swept away on delete.
package filestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/voiceprint"
)

const (
	indexFile     = "index.json"
	metadataFile  = "profile.json"
	embeddingFile = "embedding.f32"
)

// indexEntry is one row of index.json.
type indexEntry struct {
	Slug        string `json:"slug"`
	Folder      string `json:"folder"`
	ProfileFile string `json:"profile_file"`
}

// Store is the file-backed profile store. One mutex serializes every
// operation; enrollment-time audio decoding and embedding extraction happen
// before the lock is taken so matching is only blocked by actual file work.
type Store struct {
	dir string
	ext *voiceprint.Extractor
	log *slog.Logger

	mu    sync.Mutex
	index map[string]indexEntry
}

var _ profile.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithExtractor replaces the default embedding extractor.
func WithExtractor(ext *voiceprint.Extractor) Option {
	return func(s *Store) { s.ext = ext }
}

// WithLogger sets the logger used for skip/repair warnings.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New opens (or initializes) the store rooted at dir. The directory is
// created when missing; an existing index.json is loaded into memory and
// kept authoritative for the lifetime of the Store.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:   dir,
		ext:   voiceprint.NewExtractor(voiceprint.DefaultConfig()),
		log:   slog.Default(),
		index: make(map[string]indexEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating profile directory %q: %w", dir, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh store.
	case err != nil:
		return nil, fmt.Errorf("reading profile index: %w", err)
	default:
		if err := json.Unmarshal(data, &s.index); err != nil {
			return nil, fmt.Errorf("parsing profile index: %w", err)
		}
	}
	return s, nil
}

// Create implements [profile.Store].
func (s *Store) Create(ctx context.Context, name string, recordings []string) (*profile.Profile, error) {
	if name == "" {
		return nil, errors.New("profile name must not be empty")
	}

	recs, err := profile.EmbedFiles(ctx, s.ext, recordings, s.log)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[name]; ok {
		return nil, fmt.Errorf("create %q: %w", name, profile.ErrExists)
	}
	slug := profile.Slugify(name)
	folder := slug
	if _, err := os.Stat(filepath.Join(s.dir, folder)); err == nil {
		return nil, fmt.Errorf("create %q: folder %q is taken: %w", name, folder, profile.ErrExists)
	}

	p := &profile.Profile{
		Name:      name,
		Slug:      slug,
		Folder:    folder,
		Embedding: profile.MeanEmbedding(profile.Embeddings(recs)),
		CreatedAt: time.Now().UTC(),
	}
	for _, r := range recs {
		p.SourceFiles = append(p.SourceFiles, r.Base)
	}

	if err := os.MkdirAll(filepath.Join(s.dir, folder), 0o755); err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	if err := s.writeProfileFiles(p, recs); err != nil {
		// Undo so a failed create leaves no folder behind.
		os.RemoveAll(filepath.Join(s.dir, folder))
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	s.index[name] = indexEntry{Slug: slug, Folder: folder, ProfileFile: metadataFile}
	if err := s.persistIndexLocked(); err != nil {
		delete(s.index, name)
		os.RemoveAll(filepath.Join(s.dir, folder))
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	return p, nil
}

// Edit implements [profile.Store].
func (s *Store) Edit(ctx context.Context, name string, opts profile.EditOptions) (*profile.Profile, error) {
	var replace, add []profile.FileEmbedding
	var err error
	if len(opts.Replace) > 0 {
		if replace, err = profile.EmbedFiles(ctx, s.ext, opts.Replace, s.log); err != nil {
			return nil, fmt.Errorf("edit %q: replace: %w", name, err)
		}
	}
	if len(opts.Add) > 0 {
		if add, err = profile.EmbedFiles(ctx, s.ext, opts.Add, s.log); err != nil {
			return nil, fmt.Errorf("edit %q: add: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("edit %q: %w", name, profile.ErrNotFound)
	}
	p, err := s.readMetadataLocked(entry)
	if err != nil {
		return nil, fmt.Errorf("edit %q: %w", name, err)
	}

	// Rename collision is checked before any disk mutation.
	renaming := opts.Rename != "" && opts.Rename != name
	var newSlug, newFolder string
	if renaming {
		if _, ok := s.index[opts.Rename]; ok {
			return nil, fmt.Errorf("edit %q: rename to %q: %w", name, opts.Rename, profile.ErrExists)
		}
		newSlug = profile.Slugify(opts.Rename)
		newFolder = newSlug
		if newFolder != entry.Folder {
			if _, err := os.Stat(filepath.Join(s.dir, newFolder)); err == nil {
				return nil, fmt.Errorf("edit %q: rename to %q: folder taken: %w", name, opts.Rename, profile.ErrExists)
			}
		}
	}

	dir := filepath.Join(s.dir, entry.Folder)

	if len(replace) > 0 {
		for _, base := range p.SourceFiles {
			if err := os.Remove(filepath.Join(dir, base)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("edit %q: removing %q: %w", name, base, err)
			}
		}
		p.SourceFiles = nil
		p.Embedding = profile.MeanEmbedding(profile.Embeddings(replace))
		if err := copyRecordings(dir, replace); err != nil {
			return nil, fmt.Errorf("edit %q: %w", name, err)
		}
		for _, r := range replace {
			p.SourceFiles = append(p.SourceFiles, r.Base)
		}
	}

	if len(add) > 0 {
		if p.Embedding == nil {
			if p.Embedding, err = s.readEmbeddingLocked(entry); err != nil {
				return nil, fmt.Errorf("edit %q: %w", name, err)
			}
		}
		if err := copyRecordings(dir, add); err != nil {
			return nil, fmt.Errorf("edit %q: %w", name, err)
		}
		all := append([][]float32{p.Embedding}, profile.Embeddings(add)...)
		p.Embedding = profile.MeanEmbedding(all)
		for _, r := range add {
			if !contains(p.SourceFiles, r.Base) {
				p.SourceFiles = append(p.SourceFiles, r.Base)
			}
		}
	}

	for _, base := range opts.Remove {
		i := indexOf(p.SourceFiles, base)
		if i < 0 {
			s.log.Debug("remove: profile does not list recording", "profile", name, "file", base)
			continue
		}
		if err := os.Remove(filepath.Join(dir, base)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("edit %q: removing %q: %w", name, base, err)
		}
		p.SourceFiles = append(p.SourceFiles[:i], p.SourceFiles[i+1:]...)
	}

	if renaming {
		if newFolder != entry.Folder {
			if err := os.Rename(dir, filepath.Join(s.dir, newFolder)); err != nil {
				return nil, fmt.Errorf("edit %q: moving folder: %w", name, err)
			}
		}
		delete(s.index, name)
		entry = indexEntry{Slug: newSlug, Folder: newFolder, ProfileFile: metadataFile}
		s.index[opts.Rename] = entry
		p.Name, p.Slug, p.Folder = opts.Rename, newSlug, newFolder
	}

	now := time.Now().UTC()
	p.UpdatedAt = &now

	if p.Embedding != nil {
		if err := writeEmbedding(filepath.Join(s.dir, entry.Folder, embeddingFile), p.Embedding); err != nil {
			return nil, fmt.Errorf("edit %q: %w", name, err)
		}
	}
	if err := writeMetadata(filepath.Join(s.dir, entry.Folder, entry.ProfileFile), p); err != nil {
		return nil, fmt.Errorf("edit %q: %w", name, err)
	}
	if err := s.persistIndexLocked(); err != nil {
		return nil, fmt.Errorf("edit %q: %w", name, err)
	}
	return p, nil
}

// Delete implements [profile.Store]. Beyond the indexed folder it also sweeps
// every profile folder whose metadata still carries the deleted name, so a
// delete that previously failed halfway is repaired by retrying it.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	if entry, ok := s.index[name]; ok {
		if err := os.RemoveAll(filepath.Join(s.dir, entry.Folder)); err != nil {
			return fmt.Errorf("delete %q: %w", name, err)
		}
		delete(s.index, name)
		deleted = true
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		meta, err := s.readMetadataLocked(indexEntry{Folder: de.Name(), ProfileFile: metadataFile})
		if err != nil || meta.Name != name {
			continue
		}
		s.log.Warn("sweeping stray profile folder", "profile", name, "folder", de.Name())
		if err := os.RemoveAll(filepath.Join(s.dir, de.Name())); err != nil {
			return fmt.Errorf("delete %q: sweeping %q: %w", name, de.Name(), err)
		}
		for key, entry := range s.index {
			if entry.Folder == de.Name() {
				delete(s.index, key)
			}
		}
		deleted = true
	}

	if !deleted {
		return fmt.Errorf("delete %q: %w", name, profile.ErrNotFound)
	}
	return s.persistIndexLocked()
}

// Get implements [profile.Store].
func (s *Store) Get(ctx context.Context, name string) (*profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", name, profile.ErrNotFound)
	}
	p, err := s.readMetadataLocked(entry)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	if p.Embedding, err = s.readEmbeddingLocked(entry); err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	return p, nil
}

// List implements [profile.Store].
func (s *Store) List(ctx context.Context) ([]profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]profile.Profile, 0, len(s.index))
	for name, entry := range s.index {
		p, err := s.readMetadataLocked(entry)
		if err != nil {
			// The index stays authoritative even when folder metadata is
			// damaged; report what it knows.
			s.log.Warn("profile metadata unreadable", "profile", name, "error", err)
			p = &profile.Profile{Name: name, Slug: entry.Slug, Folder: entry.Folder}
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Match implements [profile.Store].
func (s *Store) Match(ctx context.Context, samples []float64, sampleRate, topK int) ([]profile.Match, error) {
	query := s.ext.Extract(samples, sampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]profile.Match, 0, len(s.index))
	for name, entry := range s.index {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := s.readEmbeddingLocked(entry)
		if err != nil {
			s.log.Warn("skipping profile with unreadable embedding", "profile", name, "error", err)
			continue
		}
		out = append(out, profile.Match{Name: name, Score: voiceprint.Cosine(query, emb)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Close implements [profile.Store]. The filestore holds no open handles
// between operations, so Close only exists to satisfy the contract.
func (s *Store) Close() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) writeProfileFiles(p *profile.Profile, recs []profile.FileEmbedding) error {
	dir := filepath.Join(s.dir, p.Folder)
	if err := copyRecordings(dir, recs); err != nil {
		return err
	}
	if err := writeEmbedding(filepath.Join(dir, embeddingFile), p.Embedding); err != nil {
		return err
	}
	return writeMetadata(filepath.Join(dir, metadataFile), p)
}

func copyRecordings(dir string, recs []profile.FileEmbedding) error {
	for _, r := range recs {
		if err := copyFile(r.Path, filepath.Join(dir, r.Base)); err != nil {
			return fmt.Errorf("copying recording %q: %w", r.Base, err)
		}
	}
	return nil
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

func writeMetadata(path string, p *profile.Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile metadata: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (s *Store) readMetadataLocked(entry indexEntry) (*profile.Profile, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, entry.Folder, entry.ProfileFile))
	if err != nil {
		return nil, err
	}
	var p profile.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile metadata: %w", err)
	}
	return &p, nil
}

func writeEmbedding(path string, emb []float32) error {
	buf := make([]byte, 4*len(emb))
	for i, x := range emb {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return os.WriteFile(path, buf, 0o644)
}

func (s *Store) readEmbeddingLocked(entry indexEntry) ([]float32, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, entry.Folder, embeddingFile))
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding file has odd length %d", len(data))
	}
	emb := make([]float32, len(data)/4)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return emb, nil
}

// persistIndexLocked writes index.json via a temp file so readers never see
// a torn index.
func (s *Store) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile index: %w", err)
	}
	path := filepath.Join(s.dir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing profile index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing profile index: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool { return indexOf(list, v) >= 0 }

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
