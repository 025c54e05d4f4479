// Package source provides the capture side of the caption pipeline: streams
// of [audio.Chunk] values produced from live or recorded input.
//
// Three implementations are provided:
//
//   - [File] replays a PCM WAV recording at real-time pace, which makes a
//     recorded meeting behave exactly like a live microphone.
//   - [WebSocket] runs an ingest server that a remote client streams raw PCM
//     or Opus frames to.
//   - The mock subpackage scripts a source for unit tests.
//
// All sources convert their input to a single target format before emitting,
// so the pipeline only ever sees one sample rate and channel count.
package source

import (
	"context"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
)

// DefaultChunkDuration is the play time of emitted chunks unless a source is
// configured otherwise. Half a second matches the pipeline worker's dequeue
// cadence.
const DefaultChunkDuration = 500 * time.Millisecond

// Source is a stream of captured audio.
//
// Open starts capture; the context bounds the open attempt. Errors that make
// the stream impossible (missing file, unreadable device, occupied port)
// surface from Open so the caller can fall back to heartbeat mode. Chunks
// returns the capture channel, closed when the stream ends or the source is
// closed. Close stops capture and releases resources; it is safe to call
// more than once.
//
// Implementations must be safe for concurrent use.
type Source interface {
	Open(ctx context.Context) error
	Chunks() <-chan audio.Chunk
	Close() error
}

// chunkBytes returns the byte size of one chunk of duration d in format f,
// aligned to whole frames and never zero.
func chunkBytes(f audio.Format, d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}
	return frames * f.Channels * audio.BytesPerSample
}
