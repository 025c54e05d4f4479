// Package recognizer defines the speech-to-text engine contract used by the
// captioning pipeline.
//
// An [Engine] wraps one loaded model and mints [Session] values. A session
// consumes mono 16-bit little-endian PCM one chunk at a time via
// [Session.Accept]; when Accept reports that an utterance was finalized the
// caller collects it with [Session.Result]. Engines differ in where the
// utterance boundary comes from: Vosk endpoints internally, whisper.cpp is a
// batch engine so its session runs an energy-based silence detector over the
// incoming chunks and infers on each detected endpoint, and Deepgram
// endpoints server-side with finalized results arriving over the stream.
//
// Sessions are owned by a single goroutine and are not safe for concurrent
// use. Engines are safe to share: one engine can mint sessions for multiple
// pipelines.
package recognizer

import (
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

// Config describes one transcription session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz delivered to Accept.
	// Zero selects the engine default (16000).
	SampleRate int

	// Language is the BCP-47 language code (e.g., "en"). Zero selects the
	// engine default.
	Language string

	// BiasWords biases recognition toward the given custom vocabulary.
	// Engines without a native bias mechanism approximate it (whisper uses
	// the initial prompt) or ignore it.
	BiasWords []string
}

// Result is one finalized utterance.
type Result struct {
	// Text is the raw transcription, untrimmed of engine quirks beyond
	// leading/trailing whitespace.
	Text string

	// Words carries per-word confidences when the engine provides them.
	// May be empty.
	Words []types.WordScore
}

// Session is one live transcription stream.
type Session interface {
	// Accept feeds one chunk of mono PCM16LE audio. It returns true when
	// the chunk completed an utterance, making a call to Result valid.
	Accept(pcm []byte) (final bool, err error)

	// Result returns the most recently finalized utterance. Calling it
	// when Accept has not reported a finalized utterance is an error.
	Result() (Result, error)

	// Close releases the session. Buffered, un-finalized audio is
	// discarded.
	Close() error
}

// Engine mints transcription sessions from one loaded model.
type Engine interface {
	// NewSession opens a session for the given configuration.
	NewSession(cfg Config) (Session, error)

	// Name identifies the engine ("vosk", "whisper", "deepgram") for logs
	// and config.
	Name() string

	// Close unloads the model. Sessions must be closed first.
	Close() error
}
