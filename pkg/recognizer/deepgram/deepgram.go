// Package deepgram provides the Deepgram-backed [recognizer.Engine] over the
// streaming WebSocket API.
//
// Unlike the local engines there is no model to load: the engine holds the
// API key and per-account defaults, and every session dials
// wss://api.deepgram.com/v1/listen. Sessions request finalized results only,
// so Accept reports finality as soon as the server has endpointed an
// utterance and its transcript has arrived. Bias words are forwarded as
// Deepgram keyword boosts.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

const (
	listenEndpoint    = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// keywordBoost is the boost applied to every bias word. The keywords
	// parameter takes word:boost pairs; the contract carries bare words.
	keywordBoost = 3

	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Compile-time assertion that Engine satisfies recognizer.Engine.
var _ recognizer.Engine = (*Engine)(nil)

// Option configures an [Engine].
type Option func(*Engine)

// WithModel sets the hosted model ("nova-3", "nova-2", "base", ...).
func WithModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.model = model
		}
	}
}

// WithLanguage sets the default BCP-47 recognition language. A session
// config language overrides it.
func WithLanguage(language string) Option {
	return func(e *Engine) {
		if language != "" {
			e.language = language
		}
	}
}

// Engine mints Deepgram streaming sessions. Safe to share across pipelines;
// each session owns its own connection.
type Engine struct {
	apiKey   string
	model    string
	language string
}

// New creates the engine. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	e := &Engine{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements [recognizer.Engine].
func (e *Engine) Name() string { return "deepgram" }

// Close implements [recognizer.Engine]. The engine holds no local resources;
// open sessions keep their connections until closed individually.
func (e *Engine) Close() error { return nil }

// NewSession implements [recognizer.Engine]. It dials the streaming endpoint
// and starts the receive loop.
func (e *Engine) NewSession(cfg recognizer.Config) (recognizer.Session, error) {
	wsURL := e.listenURL(cfg)

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)

	dialCtx, cancelDial := context.WithTimeout(context.Background(), dialTimeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		finals: make(chan recognizer.Result, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// listenURL builds the streaming endpoint URL for one session.
func (e *Engine) listenURL(cfg recognizer.Config) string {
	lang := cfg.Language
	if lang == "" {
		lang = e.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	q := url.Values{}
	q.Set("model", e.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	// Finals only. The session surface has no partial lane, and skipping
	// interim results keeps the receive loop to one message per utterance.
	q.Set("interim_results", "false")
	for _, w := range cfg.BiasWords {
		if w = strings.TrimSpace(w); w != "" {
			q.Add("keywords", fmt.Sprintf("%s:%d", w, keywordBoost))
		}
	}

	return listenEndpoint + "?" + q.Encode()
}

// session is one live Deepgram stream. Not safe for concurrent use; the
// receive loop is the only other goroutine and hands results over a channel.
type session struct {
	conn   *websocket.Conn
	finals chan recognizer.Result

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup

	// readErr is set by readLoop before it closes finals.
	readErr error

	pending    recognizer.Result
	hasPending bool
	closed     bool
}

var _ recognizer.Session = (*session)(nil)

// Accept implements [recognizer.Session]. The chunk is written to the
// stream, then any finalized utterance the server has delivered since the
// last call is picked up.
func (s *session) Accept(pcm []byte) (bool, error) {
	if s.closed {
		return false, errors.New("deepgram: session is closed")
	}
	if len(pcm) > 0 {
		writeCtx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := s.conn.Write(writeCtx, websocket.MessageBinary, pcm)
		cancel()
		if err != nil {
			return false, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}

	select {
	case res, ok := <-s.finals:
		if !ok {
			if s.readErr != nil {
				return false, fmt.Errorf("deepgram: stream ended: %w", s.readErr)
			}
			return false, errors.New("deepgram: stream ended")
		}
		s.pending, s.hasPending = res, true
		return true, nil
	default:
		return false, nil
	}
}

// Result implements [recognizer.Session].
func (s *session) Result() (recognizer.Result, error) {
	if s.closed {
		return recognizer.Result{}, errors.New("deepgram: session is closed")
	}
	if !s.hasPending {
		return recognizer.Result{}, errors.New("deepgram: no finalized utterance")
	}
	res := s.pending
	s.pending, s.hasPending = recognizer.Result{}, false
	return res, nil
}

// Close implements [recognizer.Session]. Unflushed audio on the server side
// is abandoned along with the connection.
func (s *session) Close() error {
	s.once.Do(func() {
		s.closed = true
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.conn.Write(closeCtx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		cancel()
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// readLoop receives server messages and queues finalized transcripts.
func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.readErr = err
			}
			return
		}
		res, ok := parseListenMessage(msg)
		if !ok {
			continue
		}
		select {
		case s.finals <- res:
		case <-s.ctx.Done():
			return
		}
	}
}

// listenMessage is the JSON shape of a Results event on the listen stream.
type listenMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseListenMessage extracts a finalized utterance from a raw server
// message. Metadata events, interim results, and empty transcripts report
// ok=false.
func parseListenMessage(data []byte) (recognizer.Result, bool) {
	var msg listenMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return recognizer.Result{}, false
	}
	if msg.Type != "Results" || !msg.IsFinal {
		return recognizer.Result{}, false
	}
	if len(msg.Channel.Alternatives) == 0 {
		return recognizer.Result{}, false
	}

	alt := msg.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return recognizer.Result{}, false
	}

	out := recognizer.Result{Text: text}
	for _, w := range alt.Words {
		out.Words = append(out.Words, types.WordScore{Word: w.Word, Confidence: w.Confidence})
	}
	return out, true
}
