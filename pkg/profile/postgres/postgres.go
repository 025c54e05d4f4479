// Package postgres provides a PostgreSQL-backed [profile.Store] using
// pgvector for cosine ranking in SQL.
//
// Unlike the filestore, this backend keeps no copies of the enrollment
// recordings; only metadata and the embedding are stored. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/voiceprint"
)

var _ profile.Store = (*Store)(nil)

// Store is the pgvector-backed profile store. All operations are safe for
// concurrent use; the pool handles connection management.
type Store struct {
	pool *pgxpool.Pool
	ext  *voiceprint.Extractor
	log  *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithExtractor replaces the default embedding extractor.
func WithExtractor(ext *voiceprint.Extractor) Option {
	return func(s *Store) { s.ext = ext }
}

// WithLogger sets the logger used for skip warnings during enrollment.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New connects to the PostgreSQL database at dsn, registers pgvector types
// on every connection, and runs [Migrate]. The vector column dimension is
// taken from the extractor configuration, so the same extractor must be used
// for the lifetime of the table.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{
		ext: voiceprint.NewExtractor(voiceprint.DefaultConfig()),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("profile store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("profile store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, s.ext.Config().Dim()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile store: migrate: %w", err)
	}

	s.pool = pool
	return s, nil
}

const ddlProfiles = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS speaker_profiles (
    name         TEXT         PRIMARY KEY,
    slug         TEXT         NOT NULL,
    source_files TEXT[]       NOT NULL DEFAULT '{}',
    embedding    vector(%d)   NOT NULL,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_speaker_profiles_embedding
    ON speaker_profiles USING hnsw (embedding vector_cosine_ops);
`

// Migrate creates or ensures the profiles table and pgvector extension exist.
// It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the extractor configured for the deployment;
// changing it after the first migration requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlProfiles, embeddingDimensions)); err != nil {
		return fmt.Errorf("profile store migrate: %w", err)
	}
	return nil
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

	p := &profile.Profile{
		Name:      name,
		Slug:      profile.Slugify(name),
		Embedding: profile.MeanEmbedding(profile.Embeddings(recs)),
		CreatedAt: time.Now().UTC(),
	}
	p.Folder = p.Slug
	for _, r := range recs {
		p.SourceFiles = append(p.SourceFiles, r.Base)
	}

	const q = `
		INSERT INTO speaker_profiles (name, slug, source_files, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING`
	tag, err := s.pool.Exec(ctx, q, p.Name, p.Slug, p.SourceFiles, pgvector.NewVector(p.Embedding), p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("create %q: %w", name, profile.ErrExists)
	}
	return p, nil
}

// Edit implements [profile.Store]. Remove only drops entries from the
// source file list; the recordings themselves were never stored here.
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

	p, err := s.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("edit %q: %w", name, err)
	}

	if len(replace) > 0 {
		p.SourceFiles = nil
		p.Embedding = profile.MeanEmbedding(profile.Embeddings(replace))
		for _, r := range replace {
			p.SourceFiles = append(p.SourceFiles, r.Base)
		}
	}
	if len(add) > 0 {
		all := append([][]float32{p.Embedding}, profile.Embeddings(add)...)
		p.Embedding = profile.MeanEmbedding(all)
		for _, r := range add {
			if !contains(p.SourceFiles, r.Base) {
				p.SourceFiles = append(p.SourceFiles, r.Base)
			}
		}
	}
	for _, base := range opts.Remove {
		if i := indexOf(p.SourceFiles, base); i >= 0 {
			p.SourceFiles = append(p.SourceFiles[:i], p.SourceFiles[i+1:]...)
		}
	}

	if opts.Rename != "" && opts.Rename != name {
		var taken bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM speaker_profiles WHERE name = $1)`, opts.Rename,
		).Scan(&taken); err != nil {
			return nil, fmt.Errorf("edit %q: %w", name, err)
		}
		if taken {
			return nil, fmt.Errorf("edit %q: rename to %q: %w", name, opts.Rename, profile.ErrExists)
		}
		p.Name = opts.Rename
		p.Slug = profile.Slugify(opts.Rename)
		p.Folder = p.Slug
	}

	now := time.Now().UTC()
	p.UpdatedAt = &now

	const q = `
		UPDATE speaker_profiles
		SET    name = $2, slug = $3, source_files = $4, embedding = $5, updated_at = $6
		WHERE  name = $1`
	tag, err := s.pool.Exec(ctx, q, name, p.Name, p.Slug, p.SourceFiles, pgvector.NewVector(p.Embedding), now)
	if err != nil {
		return nil, fmt.Errorf("edit %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("edit %q: %w", name, profile.ErrNotFound)
	}
	return p, nil
}

// Delete implements [profile.Store].
func (s *Store) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM speaker_profiles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %q: %w", name, profile.ErrNotFound)
	}
	return nil
}

// Get implements [profile.Store].
func (s *Store) Get(ctx context.Context, name string) (*profile.Profile, error) {
	const q = `
		SELECT name, slug, source_files, embedding, created_at, updated_at
		FROM   speaker_profiles
		WHERE  name = $1`

	var (
		p   profile.Profile
		vec pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q, name).Scan(&p.Name, &p.Slug, &p.SourceFiles, &vec, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get %q: %w", name, profile.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	p.Folder = p.Slug
	p.Embedding = vec.Slice()
	return &p, nil
}

// List implements [profile.Store].
func (s *Store) List(ctx context.Context) ([]profile.Profile, error) {
	const q = `
		SELECT name, slug, source_files, created_at, updated_at
		FROM   speaker_profiles
		ORDER  BY name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.Profile, error) {
		var p profile.Profile
		if err := row.Scan(&p.Name, &p.Slug, &p.SourceFiles, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return profile.Profile{}, err
		}
		p.Folder = p.Slug
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: scan rows: %w", err)
	}
	if out == nil {
		out = []profile.Profile{}
	}
	return out, nil
}

// Match implements [profile.Store]. Ranking happens in SQL: pgvector's
// cosine distance operator orders the rows and the similarity reported to
// callers is 1 - distance.
func (s *Store) Match(ctx context.Context, samples []float64, sampleRate, topK int) ([]profile.Match, error) {
	query := pgvector.NewVector(s.ext.Extract(samples, sampleRate))

	q := `
		SELECT name, 1 - (embedding <=> $1) AS score
		FROM   speaker_profiles
		ORDER  BY embedding <=> $1, name`
	args := []any{query}
	if topK > 0 {
		q += `
		LIMIT  $2`
		args = append(args, topK)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("match profiles: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.Match, error) {
		var m profile.Match
		err := row.Scan(&m.Name, &m.Score)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("match profiles: scan rows: %w", err)
	}
	if out == nil {
		out = []profile.Match{}
	}
	return out, nil
}

// Close implements [profile.Store].
func (s *Store) Close() error {
	s.pool.Close()
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
