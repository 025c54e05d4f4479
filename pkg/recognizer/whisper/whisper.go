// This file wraps the whisper.cpp CGO bindings. The whisper.cpp static
// library (libwhisper.a) and headers (whisper.h) must be available at link
// time via LIBRARY_PATH and C_INCLUDE_PATH environment variables.

// Package whisper provides the whisper.cpp-backed [recognizer.Engine].
//
// whisper.cpp is a batch transcription engine, so sessions simulate
// streaming: incoming PCM is buffered, an energy-based silence detector
// marks utterance endpoints, and each endpointed utterance is run through
// the model in one Process call. Bias words have no native mechanism here
// and are folded into the initial prompt instead.
package whisper

import (
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit
	// PCM units) below which audio is considered silent. The maximum for
	// 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000

	// modelSampleRate is the only rate whisper.cpp accepts; other session
	// rates are resampled at endpoint time.
	modelSampleRate = 16000
)

// Compile-time assertion that Engine satisfies recognizer.Engine.
var _ recognizer.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// marks an utterance endpoint. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(e *Engine) { e.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before an endpoint is forced regardless of silence. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(e *Engine) { e.maxBufferDurationMs = ms }
}

// WithRMSThreshold sets the silence energy threshold in 16-bit PCM units.
// Defaults to 300.
func WithRMSThreshold(threshold float64) Option {
	return func(e *Engine) { e.rmsThreshold = threshold }
}

// Engine holds one loaded whisper.cpp model shared across sessions.
type Engine struct {
	model whisperlib.Model

	language            string
	silenceThresholdMs  int
	maxBufferDurationMs int
	rmsThreshold        float64
}

// New loads the whisper.cpp model from the given file path.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{
		model:               model,
		language:            defaultLanguage,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		rmsThreshold:        defaultRMSThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements [recognizer.Engine].
func (e *Engine) Name() string { return "whisper" }

// Close implements [recognizer.Engine].
func (e *Engine) Close() error {
	if e.model != nil {
		err := e.model.Close()
		e.model = nil
		return err
	}
	return nil
}

// NewSession implements [recognizer.Engine].
func (e *Engine) NewSession(cfg recognizer.Config) (recognizer.Session, error) {
	if e.model == nil {
		return nil, errors.New("whisper: engine is closed")
	}
	lang := cfg.Language
	if lang == "" {
		lang = e.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = modelSampleRate
	}

	s := &session{
		model:              e.model,
		language:           lang,
		prompt:             strings.Join(cfg.BiasWords, ", "),
		sampleRate:         rate,
		silenceThresholdMs: e.silenceThresholdMs,
		rmsThreshold:       e.rmsThreshold,
		maxBufferBytes:     e.maxBufferDurationMs * rate * 2 / 1000,
	}
	return s, nil
}

// session buffers PCM and endpoints utterances. Not safe for concurrent use;
// all state is confined to the single Accept/Result caller.
type session struct {
	model    whisperlib.Model
	language string
	prompt   string

	sampleRate         int
	silenceThresholdMs int
	rmsThreshold       float64
	maxBufferBytes     int

	buffer     []byte
	hadSpeech  bool
	silenceMs  int
	result     recognizer.Result
	haveResult bool
	closed     bool
}

var _ recognizer.Session = (*session)(nil)

// Accept implements [recognizer.Session]. Leading silence is not buffered;
// once speech is seen, audio (including trailing silence) accumulates until
// the silence run reaches the threshold or the buffer cap forces an endpoint.
func (s *session) Accept(pcm []byte) (bool, error) {
	if s.closed {
		return false, errors.New("whisper: session is closed")
	}
	if len(pcm) == 0 {
		return false, nil
	}

	chunkMs := len(pcm) / 2 * 1000 / s.sampleRate

	if audio.RMS16(pcm) < s.rmsThreshold {
		if !s.hadSpeech {
			return false, nil
		}
		s.silenceMs += chunkMs
		s.buffer = append(s.buffer, pcm...)
		if s.silenceMs >= s.silenceThresholdMs {
			return s.endpoint()
		}
		return false, nil
	}

	s.hadSpeech = true
	s.silenceMs = 0
	s.buffer = append(s.buffer, pcm...)
	if s.maxBufferBytes > 0 && len(s.buffer) >= s.maxBufferBytes {
		return s.endpoint()
	}
	return false, nil
}

// Result implements [recognizer.Session].
func (s *session) Result() (recognizer.Result, error) {
	if !s.haveResult {
		return recognizer.Result{}, errors.New("whisper: no finalized utterance")
	}
	s.haveResult = false
	return s.result, nil
}

// Close implements [recognizer.Session]. The session holds no native handle
// between inferences (a fresh whisper context is created per utterance), so
// Close only drops buffered audio.
func (s *session) Close() error {
	s.closed = true
	s.buffer = nil
	s.haveResult = false
	return nil
}

// endpoint runs inference over the buffered utterance and resets the
// detector. An utterance that transcribes to nothing is not a finalization.
func (s *session) endpoint() (bool, error) {
	pcm := s.buffer
	s.buffer = nil
	s.hadSpeech = false
	s.silenceMs = 0

	res, err := s.infer(pcm)
	if err != nil {
		return false, err
	}
	if res.Text == "" {
		return false, nil
	}
	s.result = res
	s.haveResult = true
	return true, nil
}

// infer converts the utterance to 16 kHz float32 mono, runs whisper.cpp with
// a fresh context, and folds segments into a Result.
func (s *session) infer(pcm []byte) (recognizer.Result, error) {
	if s.sampleRate != modelSampleRate {
		pcm = audio.ResampleMono16(pcm, s.sampleRate, modelSampleRate)
	}
	samples := audio.Float32Samples(pcm)

	// Contexts are not thread-safe but the model can be shared; one fresh
	// context per inference keeps sessions independent.
	wctx, err := s.model.NewContext()
	if err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: set language %q: %w", s.language, err)
	}
	if s.prompt != "" {
		wctx.SetInitialPrompt(s.prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		words []types.WordScore
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return recognizer.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		words = append(words, segmentWords(segment)...)
	}

	return recognizer.Result{Text: strings.Join(parts, " "), Words: words}, nil
}

// segmentWords folds subword tokens into whole words. A token starting with
// a space begins a new word; special marker tokens ("[_BEG_]" and friends)
// are skipped. Word confidence is the mean probability of its tokens.
func segmentWords(segment whisperlib.Segment) []types.WordScore {
	var (
		out     []types.WordScore
		current strings.Builder
		probSum float64
		probN   int
	)
	flush := func() {
		word := strings.TrimSpace(current.String())
		if word != "" && probN > 0 {
			out = append(out, types.WordScore{Word: word, Confidence: probSum / float64(probN)})
		}
		current.Reset()
		probSum = 0
		probN = 0
	}
	for _, tok := range segment.Tokens {
		if strings.HasPrefix(tok.Text, "[_") {
			continue
		}
		if strings.HasPrefix(tok.Text, " ") {
			flush()
		}
		current.WriteString(tok.Text)
		probSum += float64(tok.P)
		probN++
	}
	flush()
	return out
}
