// This file wraps the Vosk CGO bindings. The libvosk shared library and
// headers must be available at build and run time (VOSK_PATH or the system
// library path).

// Package vosk provides the Vosk-backed [recognizer.Engine].
//
// Vosk is a streaming engine with internal endpointing: AcceptWaveform
// reports utterance finality on its own, so sessions add no silence
// detection of their own. Word-level confidences are enabled on every
// session. When bias words are configured the session is created with a
// grammar restricted to those words plus the unknown token, mirroring how
// Kaldi grammar decoding is meant to be used for small custom vocabularies.
package vosk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	vosklib "github.com/alphacep/vosk-api/go"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

const defaultSampleRate = 16000

// Compile-time assertion that Engine satisfies recognizer.Engine.
var _ recognizer.Engine = (*Engine)(nil)

// Engine holds one loaded Vosk model. The model is shared across sessions;
// each session owns its own recognizer handle.
type Engine struct {
	model *vosklib.VoskModel
}

// New loads the Vosk model from the given directory.
func New(modelDir string) (*Engine, error) {
	if modelDir == "" {
		return nil, errors.New("vosk: model directory must not be empty")
	}
	model, err := vosklib.NewModel(modelDir)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelDir, err)
	}
	return &Engine{model: model}, nil
}

// Name implements [recognizer.Engine].
func (e *Engine) Name() string { return "vosk" }

// Close implements [recognizer.Engine].
func (e *Engine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

// NewSession implements [recognizer.Engine].
func (e *Engine) NewSession(cfg recognizer.Config) (recognizer.Session, error) {
	if e.model == nil {
		return nil, errors.New("vosk: engine is closed")
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	var (
		rec *vosklib.VoskRecognizer
		err error
	)
	if len(cfg.BiasWords) > 0 {
		grammar, jerr := grammarJSON(cfg.BiasWords)
		if jerr != nil {
			return nil, fmt.Errorf("vosk: encode grammar: %w", jerr)
		}
		rec, err = vosklib.NewRecognizerGrm(e.model, float64(rate), grammar)
	} else {
		rec, err = vosklib.NewRecognizer(e.model, float64(rate))
	}
	if err != nil {
		return nil, fmt.Errorf("vosk: create recognizer: %w", err)
	}
	rec.SetWords(1)

	return &session{rec: rec}, nil
}

// grammarJSON builds the grammar array Vosk expects: the bias words plus the
// unknown token so out-of-vocabulary speech is not force-matched.
func grammarJSON(words []string) (string, error) {
	grammar := make([]string, 0, len(words)+1)
	for _, w := range words {
		if w = strings.TrimSpace(strings.ToLower(w)); w != "" {
			grammar = append(grammar, w)
		}
	}
	grammar = append(grammar, "[unk]")
	data, err := json.Marshal(grammar)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// session is one live Vosk recognizer. Not safe for concurrent use.
type session struct {
	rec    *vosklib.VoskRecognizer
	closed bool
}

var _ recognizer.Session = (*session)(nil)

// Accept implements [recognizer.Session].
func (s *session) Accept(pcm []byte) (bool, error) {
	if s.closed {
		return false, errors.New("vosk: session is closed")
	}
	if len(pcm) == 0 {
		return false, nil
	}
	return s.rec.AcceptWaveform(pcm) != 0, nil
}

// Result implements [recognizer.Session].
func (s *session) Result() (recognizer.Result, error) {
	if s.closed {
		return recognizer.Result{}, errors.New("vosk: session is closed")
	}
	return decodeResult(s.rec.Result())
}

// Close implements [recognizer.Session].
func (s *session) Close() error {
	if !s.closed {
		s.rec.Free()
		s.closed = true
	}
	return nil
}

// voskResult is the JSON shape emitted by Result/FinalResult with word
// output enabled.
type voskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Word string  `json:"word"`
		Conf float64 `json:"conf"`
	} `json:"result"`
}

func decodeResult(raw string) (recognizer.Result, error) {
	var vr voskResult
	if err := json.Unmarshal([]byte(raw), &vr); err != nil {
		return recognizer.Result{}, fmt.Errorf("vosk: decode result: %w", err)
	}
	out := recognizer.Result{Text: strings.TrimSpace(vr.Text)}
	for _, w := range vr.Result {
		out.Words = append(out.Words, types.WordScore{Word: w.Word, Confidence: w.Conf})
	}
	return out, nil
}
