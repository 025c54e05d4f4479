package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/denoise"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/journal"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/observe"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/resilience"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/sink"
	"github.com/dominicskywalkr/VAICCS-sub000/internal/transcript"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio/source"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/recognizer"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

const (
	// DefaultDequeueWait bounds how long the worker waits for the next chunk,
	// which also bounds how quickly it notices cancellation when idle.
	DefaultDequeueWait = 500 * time.Millisecond

	// DefaultBufferLimit caps the utterance buffer. At the canonical rate
	// this is 960 000 bytes of mono PCM16.
	DefaultBufferLimit = 30 * time.Second

	// DefaultStopTimeout bounds how long Stop waits for the worker to drain.
	DefaultStopTimeout = 2 * time.Second

	// DefaultAcceptThreshold is the minimum cosine similarity for a speaker
	// match to earn the caption its "[Name] " prefix.
	DefaultAcceptThreshold = 0.7
)

// EngineFactory builds the recognizer engine chain when the pipeline starts.
// It returns the chain, a release function for temporary model resources
// (extracted archives), and an error when no engine could be constructed.
// The release function may be nil.
type EngineFactory func() (*resilience.EngineChain, func(), error)

// Pipeline owns the recognition loop: one producer goroutine forwarding
// captured chunks into the ingest queue and one worker goroutine consuming
// them. All exported methods are safe for concurrent use.
//
// Without a recognizer (no engines configured, or every engine failed to
// come up) the pipeline degrades to heartbeat mode: it keeps consuming audio
// and emits one synthetic liveness caption per chunk instead of failing.
type Pipeline struct {
	src      source.Source
	engines  EngineFactory
	store    profile.Store
	prechain *transcript.Chain
	punct    transcript.Stage
	denoiser denoise.Processor
	jrnl     *journal.Journal
	met      *observe.Metrics
	log      *slog.Logger

	queueSize   int
	dequeueWait time.Duration
	bufferLimit time.Duration
	stopTimeout time.Duration
	threshold   float64
	language    string
	heartbeats  bool

	mu      sync.Mutex // guards the run state below
	running bool
	cancel  context.CancelFunc
	queue   *IngestQueue
	wg      sync.WaitGroup

	// sessMu guards the recognizer state. The session is replaced wholesale
	// under the lock, never mutated in place; the worker snapshots the
	// current reference under the lock and calls into it outside.
	sessMu     sync.Mutex
	chain      *resilience.EngineChain
	cleanup    func()
	sess       recognizer.Session
	sessEngine string
	retired    []recognizer.Session
	bias       []string
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLogger sets the logger. Nil values are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetrics sets the metrics instance. Nil values are ignored.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.met = m
		}
	}
}

// WithEngines sets the factory that builds the recognizer engine chain on
// Start. Without one the pipeline runs in heartbeat mode.
func WithEngines(f EngineFactory) Option {
	return func(p *Pipeline) { p.engines = f }
}

// WithStore sets the voice profile store used for speaker identification.
// Without one captions carry no speaker prefix.
func WithStore(s profile.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithTranscriptChain sets the pre-speaker transcript stages (redaction,
// phonetic correction) applied before speaker identification.
func WithTranscriptChain(c *transcript.Chain) Option {
	return func(p *Pipeline) { p.prechain = c }
}

// WithPunctuator sets the punctuation stage applied after the speaker prefix
// so sentence casing sees the final line.
func WithPunctuator(s transcript.Stage) Option {
	return func(p *Pipeline) { p.punct = s }
}

// WithDenoiser sets the denoiser applied to each chunk before recognition.
func WithDenoiser(d denoise.Processor) Option {
	return func(p *Pipeline) { p.denoiser = d }
}

// WithJournal sets the caption journal. Captions are journaled before they
// are delivered so the assigned sequence number reaches the sinks.
func WithJournal(j *journal.Journal) Option {
	return func(p *Pipeline) { p.jrnl = j }
}

// WithQueueSize sets the ingest queue capacity in chunks. Non-positive
// values are ignored.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithDequeueWait sets the worker's bounded dequeue wait. Non-positive
// values are ignored.
func WithDequeueWait(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.dequeueWait = d
		}
	}
}

// WithBufferLimit caps the utterance buffer at the given duration of mono
// audio. Non-positive values are ignored.
func WithBufferLimit(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.bufferLimit = d
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the worker. Non-positive
// values are ignored.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.stopTimeout = d
		}
	}
}

// WithAcceptThreshold sets the minimum speaker match score. Values outside
// (0, 1] are ignored.
func WithAcceptThreshold(v float64) Option {
	return func(p *Pipeline) {
		if v > 0 && v <= 1 {
			p.threshold = v
		}
	}
}

// WithLanguage sets the recognition language code passed to the engines.
func WithLanguage(lang string) Option {
	return func(p *Pipeline) { p.language = lang }
}

// WithHeartbeats controls whether the pipeline emits demo heartbeat captions
// while no recognizer session is available. Enabled by default.
func WithHeartbeats(enabled bool) Option {
	return func(p *Pipeline) { p.heartbeats = enabled }
}

// WithVocabulary seeds the custom vocabulary biasing the first session.
func WithVocabulary(words []string) Option {
	return func(p *Pipeline) { p.bias = normalizeVocabulary(words) }
}

// New creates a pipeline reading from src. Collaborators left unset degrade
// to skipping their stage; only the source is required.
func New(src source.Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		src:         src,
		log:         slog.Default(),
		met:         observe.DefaultMetrics(),
		queueSize:   DefaultQueueSize,
		dequeueWait: DefaultDequeueWait,
		bufferLimit: DefaultBufferLimit,
		stopTimeout: DefaultStopTimeout,
		threshold:   DefaultAcceptThreshold,
		heartbeats:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start spawns the worker bound to out. It is idempotent: starting a running
// pipeline is a no-op. Recognition failures at startup do not fail Start;
// the pipeline falls back to heartbeat captions instead.
func (p *Pipeline) Start(out sink.Sink) error {
	if out == nil {
		return errors.New("pipeline: nil sink")
	}
	if p.src == nil {
		return errors.New("pipeline: nil source")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	p.openSession()
	p.queue = NewIngestQueue(p.queueSize)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.run(ctx, out)

	if engine := p.Engine(); engine != "" {
		p.log.Info("caption pipeline started", "engine", engine)
	} else {
		p.log.Info("caption pipeline started in heartbeat mode")
	}
	return nil
}

// Stop cancels the worker, joins it within the stop timeout and releases the
// recognizer, the engine chain and any temporary model resources. It is
// idempotent and returns regardless of whether the worker drained in time.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	srcErr := p.src.Close()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.stopTimeout):
		p.log.Warn("pipeline worker did not stop within the shutdown bound",
			"timeout", p.stopTimeout)
	}

	p.log.Info("caption pipeline stopped")
	return errors.Join(srcErr, p.closeSession())
}

// UpdateVocabulary replaces the custom vocabulary biasing recognition. With
// a live recognizer a replacement session is built with the new words first
// and only then swapped in, so a build failure leaves the old session
// serving. Without one the words are stored for the next Start. An empty or
// nil list clears the bias.
//
// The swap affects sessions created from now on; an utterance already
// buffered in the old session is finalized with the old vocabulary.
func (p *Pipeline) UpdateVocabulary(words []string) error {
	clean := normalizeVocabulary(words)

	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	p.bias = clean
	if p.chain == nil {
		return nil
	}

	sess, engine, err := p.chain.NewSession(p.sessionConfigLocked())
	if err != nil {
		return fmt.Errorf("rebuild recognizer session: %w", err)
	}
	if p.sess != nil {
		p.retired = append(p.retired, p.sess)
	}
	p.sess, p.sessEngine = sess, engine
	p.log.Info("recognition vocabulary updated", "words", len(clean), "engine", engine)
	return nil
}

// Running reports whether the worker is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Ready implements a readiness probe: it fails while the pipeline is not
// running.
func (p *Pipeline) Ready(context.Context) error {
	if !p.Running() {
		return errors.New("caption pipeline is not running")
	}
	return nil
}

// Engine returns the name of the engine behind the current session, or ""
// in heartbeat mode.
func (p *Pipeline) Engine() string {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	return p.sessEngine
}

// Vocabulary returns a copy of the current bias words.
func (p *Pipeline) Vocabulary() []string {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	out := make([]string, len(p.bias))
	copy(out, p.bias)
	return out
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Running    bool
	Engine     string // "" while running without a model
	QueueDepth int
	Dropped    int64
}

// Stats returns a snapshot of the pipeline's current state.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	running, q := p.running, p.queue
	p.mu.Unlock()

	st := Stats{Running: running, Engine: p.Engine()}
	if q != nil {
		st.QueueDepth = q.Depth()
		st.Dropped = q.Dropped()
	}
	return st
}

// openSession resolves the engine chain and opens the first session. Any
// failure leaves the pipeline in heartbeat mode.
func (p *Pipeline) openSession() {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	if p.sess != nil {
		return
	}
	if p.engines == nil {
		p.log.Warn("no recognition engines configured; emitting heartbeat captions")
		return
	}

	chain, cleanup, err := p.engines()
	if err != nil {
		p.log.Warn("recognition unavailable; emitting heartbeat captions", "error", err)
		return
	}
	sess, engine, err := chain.NewSession(p.sessionConfigLocked())
	if err != nil {
		p.log.Warn("recognition unavailable; emitting heartbeat captions", "error", err)
		if cerr := chain.Close(); cerr != nil {
			p.log.Warn("closing engine chain", "error", cerr)
		}
		if cleanup != nil {
			cleanup()
		}
		return
	}
	p.chain, p.cleanup = chain, cleanup
	p.sess, p.sessEngine = sess, engine
}

// closeSession releases the session, the chain and the model cleanup.
func (p *Pipeline) closeSession() error {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()

	var errs []error
	for _, s := range p.retired {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close retired session: %w", err))
		}
	}
	p.retired = nil
	if p.sess != nil {
		if err := p.sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		p.sess, p.sessEngine = nil, ""
	}
	if p.chain != nil {
		if err := p.chain.Close(); err != nil {
			errs = append(errs, err)
		}
		p.chain = nil
	}
	if p.cleanup != nil {
		p.cleanup()
		p.cleanup = nil
	}
	return errors.Join(errs...)
}

// sessionConfigLocked builds the session config from the current bias words.
// Caller holds sessMu.
func (p *Pipeline) sessionConfigLocked() recognizer.Config {
	words := make([]string, len(p.bias))
	copy(words, p.bias)
	return recognizer.Config{
		SampleRate: audio.CanonicalRate,
		Language:   p.language,
		BiasWords:  words,
	}
}

// snapshotSession returns the current session under the lock. Retired
// sessions are closed here: the worker is the only goroutine that calls
// into sessions, and between chunks nothing is mid-call.
func (p *Pipeline) snapshotSession() (recognizer.Session, string) {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	for _, s := range p.retired {
		if err := s.Close(); err != nil {
			p.log.Warn("closing retired recognizer session", "error", err)
		}
	}
	p.retired = p.retired[:0]
	return p.sess, p.sessEngine
}

// rebuildSession replaces a session that errored mid-run. The chain re-walks
// its engines from the top, so a recovered primary takes over again.
func (p *Pipeline) rebuildSession() {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	if p.chain == nil {
		return
	}
	sess, engine, err := p.chain.NewSession(p.sessionConfigLocked())
	if err != nil {
		p.log.Error("recognizer session rebuild failed; continuing in heartbeat mode", "error", err)
		if p.sess != nil {
			p.retired = append(p.retired, p.sess)
			p.sess, p.sessEngine = nil, ""
		}
		return
	}
	if p.sess != nil {
		p.retired = append(p.retired, p.sess)
	}
	p.sess, p.sessEngine = sess, engine
	p.log.Info("recognizer session rebuilt", "engine", engine)
}

// workerState is the worker-owned mutable state: the utterance buffer and
// the wall-clock start of its first chunk.
type workerState struct {
	out      sink.Sink
	buf      []byte
	bufStart time.Time
}

// run is the worker goroutine. It opens the source, forwards chunks through
// the queue and processes them until the context is cancelled.
func (p *Pipeline) run(ctx context.Context, out sink.Sink) {
	defer p.wg.Done()

	if err := p.src.Open(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Error("audio capture unavailable", "error", err)
		p.deliver(ctx, out, types.Caption{
			Kind:  types.KindFatal,
			Text:  fmt.Sprintf("[ERROR] Could not open audio device: %v", err),
			Start: time.Now(),
		})
		return
	}

	prodDone := make(chan struct{})
	go p.forward(ctx, prodDone)
	defer func() { <-prodDone }()

	if n := p.queue.Drain(); n > 0 {
		p.log.Debug("discarded stale pre-roll audio", "chunks", n)
	}

	ws := &workerState{out: out}
	for {
		if ctx.Err() != nil {
			return
		}
		chunk, ok := p.queue.Pop(p.dequeueWait)
		p.met.RecordQueueDepth(ctx, p.queue.Depth())
		if !ok {
			continue
		}
		p.handleChunk(ctx, ws, chunk)
	}
}

// forward is the producer goroutine: it moves chunks from the source into
// the queue and never blocks on the worker.
func (p *Pipeline) forward(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	var seenDrops int64
	for chunk := range p.src.Chunks() {
		p.queue.Push(chunk)
		p.met.ChunksIngested.Add(ctx, 1)
		if d := p.queue.Dropped(); d > seenDrops {
			p.met.ChunksDropped.Add(ctx, d-seenDrops)
			seenDrops = d
		}
	}
}

// handleChunk processes one dequeued chunk. Every failure is contained: it
// is logged and counted, and the loop moves on to the next chunk.
func (p *Pipeline) handleChunk(ctx context.Context, ws *workerState, chunk audio.Chunk) {
	sess, engine := p.snapshotSession()
	if sess == nil {
		if p.heartbeats {
			p.heartbeat(ctx, ws, chunk)
		}
		return
	}

	pcm := chunk.Data
	if chunk.Channels > 1 {
		pcm = audio.DownmixMono(pcm, chunk.Channels)
	}
	if p.denoiser != nil {
		pcm = audio.PCMBytes(p.denoiser.Process(audio.Int16Samples(pcm)))
	}

	if len(ws.buf) == 0 {
		ws.bufStart = time.Now()
	}
	ws.buf = append(ws.buf, pcm...)
	if over := len(ws.buf) - p.bufferBytes(); over > 0 {
		n := copy(ws.buf, ws.buf[over:])
		ws.buf = ws.buf[:n]
	}

	start := time.Now()
	final, err := sess.Accept(pcm)
	p.met.RecognizeDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("engine", engine)))
	if err != nil {
		p.log.Error("recognizer rejected chunk", "engine", engine, "error", err)
		p.met.RecordEngineError(ctx, engine)
		p.rebuildSession()
		return
	}
	if !final {
		return
	}

	res, err := sess.Result()
	if err != nil {
		p.log.Error("recognizer result failed", "engine", engine, "error", err)
		p.met.RecordEngineError(ctx, engine)
		p.rebuildSession()
		return
	}
	p.finalize(ctx, ws, res)
}

// finalize turns a finalized recognizer result into a caption: pre-speaker
// transcript stages, speaker identification over the buffered utterance,
// punctuation, then delivery. The utterance buffer is reset on every exit
// path.
func (p *Pipeline) finalize(ctx context.Context, ws *workerState, res recognizer.Result) {
	audioLen := pcmDuration(len(ws.buf))
	start := ws.bufStart
	if start.IsZero() {
		start = time.Now()
	}
	defer func() {
		ws.buf = ws.buf[:0]
		ws.bufStart = time.Time{}
	}()

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return
	}

	ppStart := time.Now()
	if p.prechain != nil {
		text = p.prechain.Process(ctx, text)
	}
	postprocess := time.Since(ppStart)
	if strings.TrimSpace(text) == "" {
		return
	}

	speaker, score := p.matchSpeaker(ctx, ws.buf)
	if speaker != "" {
		text = "[" + speaker + "] " + text
	}

	if p.punct != nil {
		punctStart := time.Now()
		out, err := p.punct.Process(ctx, text)
		postprocess += time.Since(punctStart)
		if err != nil {
			p.log.Warn("punctuation failed", "stage", p.punct.Name(), "error", err)
		} else {
			text = out
		}
	}
	p.met.PostprocessDuration.Record(ctx, postprocess.Seconds())

	label := speaker
	if label == "" {
		label = "unknown"
	}
	p.met.RecordUtterance(ctx, label)

	p.deliver(ctx, ws.out, types.Caption{
		Kind:         types.KindUtterance,
		Text:         text,
		Speaker:      speaker,
		SpeakerScore: score,
		Start:        start,
		AudioLen:     audioLen,
	})
}

// matchSpeaker identifies the speaker behind the buffered utterance. Match
// failures produce an unattributed caption, never a lost one.
func (p *Pipeline) matchSpeaker(ctx context.Context, buf []byte) (string, float64) {
	if p.store == nil || len(buf) == 0 {
		return "", 0
	}
	start := time.Now()
	matches, err := p.store.Match(ctx, audio.Float64Samples(buf), audio.CanonicalRate, 1)
	p.met.MatchDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.log.Warn("speaker match failed", "error", err)
		return "", 0
	}
	if len(matches) == 0 || matches[0].Score < p.threshold {
		return "", 0
	}
	return matches[0].Name, matches[0].Score
}

// heartbeat emits the synthetic liveness caption for one consumed chunk.
func (p *Pipeline) heartbeat(ctx context.Context, ws *workerState, chunk audio.Chunk) {
	now := time.Now()
	p.deliver(ctx, ws.out, types.Caption{
		Kind:     types.KindHeartbeat,
		Text:     "[DEMO] audio captured @ " + clockStamp(now),
		Start:    now,
		AudioLen: chunk.Duration(),
	})
}

// deliver journals the caption first, so the assigned sequence number
// travels with it, then writes it to the sink. Either failing is logged and
// counted but never stops the loop.
func (p *Pipeline) deliver(ctx context.Context, out sink.Sink, c types.Caption) {
	if p.jrnl != nil {
		jc, err := p.jrnl.Append(c)
		if err != nil {
			p.log.Error("caption journal append failed", "error", err)
			p.met.JournalErrors.Add(ctx, 1)
		} else {
			c = jc
		}
	}
	if err := out.Write(c); err != nil {
		p.log.Error("caption delivery failed", "error", err)
		p.met.RecordSinkError(ctx, fmt.Sprintf("%T", out))
	}
	p.met.RecordCaption(ctx, string(c.Kind))
}

// bufferBytes converts the buffer limit to bytes of mono PCM16 at the
// canonical rate.
func (p *Pipeline) bufferBytes() int {
	return int(p.bufferLimit.Milliseconds()) * audio.CanonicalRate / 1000 * audio.BytesPerSample
}

// pcmDuration converts a mono PCM16 byte count at the canonical rate to a
// duration.
func pcmDuration(n int) time.Duration {
	return time.Duration(n/audio.BytesPerSample) * time.Second / audio.CanonicalRate
}

/// clockStamp formats a wall-clock time in the SRT style, HH:MM:SS,mmm.
func clockStamp(t time.Time) string {
	return fmt.Sprintf("%s,%03d", t.Format("15:04:05"), t.Nanosecond()/int(time.Millisecond))
}

// normalizeVocabulary trims, drops empties and deduplicates case-insensitively
// while preserving first-seen order and casing.
func normalizeVocabulary(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}
	return out
}
