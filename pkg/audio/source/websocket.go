package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
)

// Subprotocol names clients negotiate on the ingest endpoint. PCM16 is
// assumed when a client does not request one.
const (
	SubprotocolPCM16 = "vaiccs.pcm16"
	SubprotocolOpus  = "vaiccs.opus"
)

const (
	// maxOpusFrameMs is the longest frame duration an Opus packet can carry.
	maxOpusFrameMs = 120

	opusDefaultRate     = 48000
	opusDefaultChannels = 2

	ingestShutdownTimeout = 2 * time.Second
)

// WebSocket accepts one remote client at a time streaming binary audio
// frames and re-blocks them into fixed-size chunks in the target format.
//
// Clients pick the wire encoding by subprotocol: [SubprotocolPCM16] for raw
// interleaved 16-bit little-endian PCM (the default), [SubprotocolOpus] for
// one Opus packet per binary message. The stream format is declared with the
// rate and channels query parameters; unset values default to the target
// format for PCM and to 48 kHz stereo for Opus.
type WebSocket struct {
	addr   string
	format audio.Format
	chunk  time.Duration
	log    *slog.Logger

	mu     sync.Mutex
	opened bool
	closed bool
	active *websocket.Conn
	srv    *http.Server
	ln     net.Listener

	out  chan audio.Chunk
	done chan struct{}
	wg   sync.WaitGroup
}

var _ Source = (*WebSocket)(nil)

// IngestOption configures a [WebSocket] source.
type IngestOption func(*WebSocket)

// WithIngestFormat sets the emitted chunk format. Defaults to
// [audio.Canonical].
func WithIngestFormat(f audio.Format) IngestOption {
	return func(s *WebSocket) {
		if f.SampleRate > 0 && f.Channels > 0 {
			s.format = f
		}
	}
}

// WithIngestChunkDuration sets the play time of emitted chunks. Defaults to
// [DefaultChunkDuration].
func WithIngestChunkDuration(d time.Duration) IngestOption {
	return func(s *WebSocket) {
		if d > 0 {
			s.chunk = d
		}
	}
}

// WithIngestLogger sets the logger. Defaults to [slog.Default].
func WithIngestLogger(log *slog.Logger) IngestOption {
	return func(s *WebSocket) {
		if log != nil {
			s.log = log
		}
	}
}

// NewWebSocket creates an ingest source that will listen on addr.
func NewWebSocket(addr string, opts ...IngestOption) *WebSocket {
	s := &WebSocket{
		addr:   addr,
		format: audio.Canonical,
		chunk:  DefaultChunkDuration,
		log:    slog.Default(),
		out:    make(chan audio.Chunk, 4),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open binds the listen address and serves the ingest endpoint in the
// background. Bind errors surface immediately; ctx bounds the bind attempt
// only, the server runs until [WebSocket.Close].
func (s *WebSocket) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("websocket source: already closed")
	}
	if s.opened {
		return errors.New("websocket source: already open")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("websocket source: listen %q: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s}
	s.opened = true

	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket source server failed", "error", err)
		}
	}()
	s.log.Info("websocket audio source listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address after [WebSocket.Open], or "".
func (s *WebSocket) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Chunks returns the ingest stream. The channel is closed by
// [WebSocket.Close].
func (s *WebSocket) Chunks() <-chan audio.Chunk { return s.out }

// Streaming reports whether a client is currently streaming audio.
func (s *WebSocket) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// ServeHTTP upgrades the request and consumes audio frames until the client
// disconnects or the source closes.
func (s *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rate, rateErr := intParam(q, "rate")
	channels, chErr := intParam(q, "channels")
	if err := errors.Join(rateErr, chErr); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{SubprotocolPCM16, SubprotocolOpus},
		// Ingest is guarded by network placement, not origin; browser demo
		// pages connect from anywhere.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	proto := conn.Subprotocol()
	if proto == "" {
		proto = SubprotocolPCM16
	}

	var decoder *gopus.Decoder
	switch proto {
	case SubprotocolOpus:
		if rate == 0 {
			rate = opusDefaultRate
		}
		if channels == 0 {
			channels = opusDefaultChannels
		}
		if !validOpusRate(rate) || channels > 2 {
			conn.Close(websocket.StatusPolicyViolation, fmt.Sprintf("unsupported opus format %dHz/%dch", rate, channels))
			return
		}
		decoder, err = gopus.NewDecoder(rate, channels)
		if err != nil {
			s.log.Error("creating opus decoder", "error", err)
			conn.Close(websocket.StatusInternalError, "opus decoder unavailable")
			return
		}
	default:
		if rate == 0 {
			rate = s.format.SampleRate
		}
		if channels == 0 {
			channels = s.format.Channels
		}
	}

	if !s.claim(conn) {
		conn.Close(websocket.StatusPolicyViolation, "another stream is already active")
		return
	}
	defer s.release()

	s.log.Info("audio stream connected",
		"remote", r.RemoteAddr,
		"subprotocol", proto,
		"sample_rate", rate,
		"channels", channels,
	)
	s.stream(r.Context(), conn, decoder, audio.Format{SampleRate: rate, Channels: channels})
	s.log.Info("audio stream disconnected", "remote", r.RemoteAddr)
}

// stream reads frames from conn, converts them to the target format and
// emits full chunks. A tail shorter than one chunk is flushed when the
// stream ends so the end of an utterance is not lost.
func (s *WebSocket) stream(ctx context.Context, conn *websocket.Conn, decoder *gopus.Decoder, from audio.Format) {
	conv := &audio.FormatConverter{Target: s.format}
	step := chunkBytes(s.format, s.chunk)
	maxFrame := from.SampleRate * maxOpusFrameMs / 1000
	start := time.Now()

	var buf []byte
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageBinary {
			s.log.Debug("ignoring non-binary frame on audio stream")
			continue
		}

		if decoder != nil {
			pcm16, err := decoder.Decode(data, maxFrame, false)
			if err != nil {
				s.log.Warn("opus decode failed, dropping frame", "error", err)
				continue
			}
			data = audio.PCMBytes(pcm16)
		}

		converted := conv.Convert(audio.Chunk{
			Data:       data,
			SampleRate: from.SampleRate,
			Channels:   from.Channels,
		})
		buf = append(buf, converted.Data...)

		for len(buf) >= step {
			chunk := audio.Chunk{
				Data:       slices.Clone(buf[:step]),
				SampleRate: s.format.SampleRate,
				Channels:   s.format.Channels,
				Timestamp:  time.Since(start),
			}
			if !s.emit(chunk) {
				return
			}
			buf = buf[:copy(buf, buf[step:])]
		}
	}

	if len(buf) > 0 {
		s.emit(audio.Chunk{
			Data:       buf,
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			Timestamp:  time.Since(start),
		})
	}
}

// Close disconnects the active streamer, shuts the server down and closes
// the chunk channel. Safe to call more than once and before Open.
func (s *WebSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.active
	srv := s.srv
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		conn.CloseNow()
	}

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ingestShutdownTimeout)
		defer cancel()
		err = srv.Shutdown(ctx)
	}
	s.wg.Wait()
	close(s.out)
	return err
}

func (s *WebSocket) emit(c audio.Chunk) bool {
	select {
	case s.out <- c:
		return true
	case <-s.done:
		return false
	}
}

// claim registers conn as the active streamer. Only one stream is consumed
// at a time; interleaving two PCM streams would caption neither.
func (s *WebSocket) claim(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.active != nil {
		return false
	}
	s.active = conn
	s.wg.Add(1)
	return true
}

func (s *WebSocket) release() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	s.wg.Done()
}

// intParam reads a positive integer query parameter, zero when absent.
func intParam(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s parameter %q", key, raw)
	}
	return n, nil
}

// validOpusRate reports whether rate is one of the sample rates the Opus
// codec operates at.
func validOpusRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}
