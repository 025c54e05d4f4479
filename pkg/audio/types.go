package audio

import "time"

const (
	// CanonicalRate is the pipeline's canonical sample rate in Hz. Capture
	// sources convert to it; the recognizer and the embedding extractor both
	// consume it.
	CanonicalRate = 16000

	// BytesPerSample for 16-bit signed little-endian PCM.
	BytesPerSample = 2
)

// Chunk represents one block of PCM audio flowing through the pipeline.
// Chunks are the atomic unit of audio transport: produced by capture sources,
// queued for the worker, buffered per utterance, and fed to the recognizer.
// A chunk is immutable once produced; ownership transfers into the queue and
// then into the worker.
type Chunk struct {
	// Data is interleaved 16-bit signed little-endian PCM.
	Data []byte

	// SampleRate in Hz (e.g. 16000 for the canonical pipeline format).
	SampleRate int

	// Channels per frame. The worker downmixes to mono before buffering.
	Channels int

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of per-channel sample frames in the chunk.
func (c Chunk) Samples() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Data) / (BytesPerSample * c.Channels)
}

// Duration returns the play time of the chunk, zero when the rate is unknown.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Samples()) * time.Second / time.Duration(c.SampleRate)
}
