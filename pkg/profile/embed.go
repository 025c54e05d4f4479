package profile

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/voiceprint"
)

// FileEmbedding pairs one enrollment recording with its extracted embedding.
type FileEmbedding struct {
	// Path is the caller-supplied location of the recording.
	Path string

	// Base is the file's base name, used as its identity inside a profile.
	Base string

	// Embedding is the voice embedding extracted from the recording.
	Embedding []float32
}

// EmbedFiles decodes each WAV path and extracts one embedding per file.
// Unreadable files are skipped with a warning; duplicate base names keep the
// first occurrence. Zero readable files yields ErrNoRecordings.
func EmbedFiles(ctx context.Context, ext *voiceprint.Extractor, paths []string, log *slog.Logger) ([]FileEmbedding, error) {
	var out []FileEmbedding
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base := filepath.Base(path)
		if seen[base] {
			continue
		}
		pcm, rate, channels, err := audio.ReadWAVFile(path)
		if err != nil {
			log.Warn("skipping unreadable recording", "path", path, "error", err)
			continue
		}
		samples := audio.Float64Samples(audio.DownmixMono(pcm, channels))
		out = append(out, FileEmbedding{Path: path, Base: base, Embedding: ext.Extract(samples, rate)})
		seen[base] = true
	}
	if len(out) == 0 {
		return nil, ErrNoRecordings
	}
	return out, nil
}

// Embeddings extracts just the embedding vectors.
func Embeddings(files []FileEmbedding) [][]float32 {
	out := make([][]float32, len(files))
	for i, f := range files {
		out[i] = f.Embedding
	}
	return out
}

// MeanEmbedding averages unit embeddings and re-normalizes the result.
// Returns nil for an empty input.
func MeanEmbedding(embs [][]float32) []float32 {
	if len(embs) == 0 {
		return nil
	}
	out := make([]float32, len(embs[0]))
	for _, e := range embs {
		for i, x := range e {
			out[i] += x
		}
	}
	inv := 1 / float32(len(embs))
	for i := range out {
		out[i] *= inv
	}
	voiceprint.Normalize(out)
	return out
}
