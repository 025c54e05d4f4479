// Package types defines the shared types used across all VAICCS packages.
//
// These types form the lingua franca between capture sources, the recognition
// pipeline, caption sinks, and the journal. They are intentionally minimal:
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// CaptionKind classifies a caption emitted by the pipeline.
type CaptionKind string

const (
	// KindUtterance is a finalized, fully post-processed utterance.
	KindUtterance CaptionKind = "utterance"

	// KindHeartbeat is a synthetic liveness line emitted when the pipeline
	// runs without an acoustic model.
	KindHeartbeat CaptionKind = "heartbeat"

	// KindFatal is the single sentinel caption delivered when the capture
	// source cannot be opened. The worker exits after emitting it.
	KindFatal CaptionKind = "fatal"
)

// Caption is one finalized line of output from the recognition pipeline.
// Text carries the complete processed line, including the "[Name] " speaker
// prefix when a profile match was accepted, so plain-text sinks can write it
// verbatim. Structured consumers use the remaining fields.
type Caption struct {
	// Seq is a monotonically increasing sequence number assigned by the
	// journal. Zero until the caption has been journaled.
	Seq int64 `json:"seq" msgpack:"seq"`

	// Kind classifies the caption. Sinks may filter on it; the SRT sink,
	// for example, skips heartbeats.
	Kind CaptionKind `json:"kind" msgpack:"kind"`

	// Text is the fully processed caption line.
	Text string `json:"text" msgpack:"text"`

	// Speaker is the matched profile name, empty when no match was accepted.
	Speaker string `json:"speaker,omitempty" msgpack:"speaker,omitempty"`

	// SpeakerScore is the cosine similarity of the accepted match.
	// Meaningless when Speaker is empty.
	SpeakerScore float64 `json:"speaker_score,omitempty" msgpack:"speaker_score,omitempty"`

	// Start is the wall-clock time the utterance began (the time its first
	// buffered chunk entered the pipeline).
	Start time.Time `json:"start" msgpack:"start"`

	// AudioLen is the duration of buffered audio behind this caption.
	AudioLen time.Duration `json:"audio_len" msgpack:"audio_len"`
}

// WordScore is one recognized word with the engine's confidence for it.
type WordScore struct {
	Word string

	// Confidence in [0, 1]. Engines that do not report per-word confidence
	// use 1.
	Confidence float64
}
