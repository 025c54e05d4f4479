package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
)

// File replays a 16-bit PCM WAV recording as if it were a live capture
// device. The recording is decoded and converted to the target format when
// Open is called; chunks are then emitted at real-time pace, one per chunk
// duration, so downstream timing behaves the same as with a microphone.
// Batch consumers can disable pacing with [Unpaced].
type File struct {
	path    string
	format  audio.Format
	chunk   time.Duration
	unpaced bool
	log     *slog.Logger

	mu     sync.Mutex
	opened bool
	closed bool

	out  chan audio.Chunk
	stop chan struct{}
	done chan struct{}
}

var _ Source = (*File)(nil)

// FileOption configures a [File] source.
type FileOption func(*File)

// WithFileFormat sets the emitted chunk format. Defaults to [audio.Canonical].
func WithFileFormat(f audio.Format) FileOption {
	return func(s *File) {
		if f.SampleRate > 0 && f.Channels > 0 {
			s.format = f
		}
	}
}

// WithFileChunkDuration sets the play time of emitted chunks. Defaults to
// [DefaultChunkDuration].
func WithFileChunkDuration(d time.Duration) FileOption {
	return func(s *File) {
		if d > 0 {
			s.chunk = d
		}
	}
}

// WithFileLogger sets the logger. Defaults to [slog.Default].
func WithFileLogger(log *slog.Logger) FileOption {
	return func(s *File) {
		if log != nil {
			s.log = log
		}
	}
}

// Unpaced disables real-time pacing: chunks are emitted as fast as the
// consumer takes them. Meant for tests and batch captioning of recordings.
func Unpaced() FileOption {
	return func(s *File) { s.unpaced = true }
}

// NewFile creates a replay source for the WAV file at path. The file is not
// touched until [File.Open].
func NewFile(path string, opts ...FileOption) *File {
	s := &File{
		path:   path,
		format: audio.Canonical,
		chunk:  DefaultChunkDuration,
		log:    slog.Default(),
		out:    make(chan audio.Chunk, 4),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open decodes the file, converts it to the target format and starts the
// replay goroutine. Decode and conversion errors surface here, so a broken
// recording fails loudly instead of producing an empty stream. Replay stops
// when ctx is cancelled, [File.Close] is called, or the recording runs out;
// the chunk channel is closed in all three cases.
func (s *File) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("file source %q: already closed", s.path)
	}
	if s.opened {
		return fmt.Errorf("file source %q: already open", s.path)
	}

	pcm, rate, channels, err := audio.ReadWAVFile(s.path)
	if err != nil {
		return fmt.Errorf("file source: %w", err)
	}
	pcm, err = convertPCM(pcm, audio.Format{SampleRate: rate, Channels: channels}, s.format)
	if err != nil {
		return err
	}

	total := audio.Chunk{Data: pcm, SampleRate: s.format.SampleRate, Channels: s.format.Channels}
	s.log.Info("replaying audio file",
		"path", s.path,
		"sample_rate", rate,
		"channels", channels,
		"duration", total.Duration(),
		"paced", !s.unpaced,
	)

	s.opened = true
	go s.replay(ctx, pcm)
	return nil
}

// Chunks returns the replay stream. The channel is closed when the recording
// has been fully replayed or the source is stopped.
func (s *File) Chunks() <-chan audio.Chunk { return s.out }

// Close stops the replay and waits for the emitting goroutine to finish.
// Safe to call more than once and before Open.
func (s *File) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	opened := s.opened
	s.mu.Unlock()

	close(s.stop)
	if opened {
		<-s.done
	} else {
		close(s.out)
	}
	return nil
}

func (s *File) replay(ctx context.Context, pcm []byte) {
	defer close(s.done)
	defer close(s.out)

	var tick <-chan time.Time
	if !s.unpaced {
		t := time.NewTicker(s.chunk)
		defer t.Stop()
		tick = t.C
	}

	step := chunkBytes(s.format, s.chunk)
	frameBytes := audio.BytesPerSample * s.format.Channels

	for offset := 0; offset < len(pcm); offset += step {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-tick:
			}
		}

		end := min(offset+step, len(pcm))
		chunk := audio.Chunk{
			Data:       pcm[offset:end],
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			Timestamp:  time.Duration(offset/frameBytes) * time.Second / time.Duration(s.format.SampleRate),
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case s.out <- chunk:
		}
	}
	s.log.Debug("audio file replay finished", "path", s.path)
}

// convertPCM converts decoded WAV data from src to dst format. Channel
// reduction happens before resampling so multi-channel input is resampled
// once, as mono. Rate conversion uses the windowed-sinc resampler rather
// than the linear one in pkg/audio: replay converts the whole recording up
// front, where quality is worth the extra arithmetic.
func convertPCM(pcm []byte, src, dst audio.Format) ([]byte, error) {
	if src.Channels != dst.Channels {
		if dst.Channels != 1 {
			return nil, fmt.Errorf("file source: cannot convert %d-channel audio to %d channels", src.Channels, dst.Channels)
		}
		pcm = audio.DownmixMono(pcm, src.Channels)
	}
	if src.SampleRate == dst.SampleRate {
		return pcm, nil
	}

	cfg := &resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(dst.SampleRate),
		Channels:   dst.Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}
	rs, err := resampling.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("file source: create resampler: %w", err)
	}
	resampled, err := rs.Process(audio.Float64Samples(pcm))
	if err != nil {
		return nil, fmt.Errorf("file source: resample %dHz to %dHz: %w", src.SampleRate, dst.SampleRate, err)
	}
	return pcmFromFloat64(resampled), nil
}

// pcmFromFloat64 converts normalised float64 samples back to 16-bit
// little-endian PCM, clamping values outside [-1, 1].
func pcmFromFloat64(samples []float64) []byte {
	out := make([]byte, len(samples)*audio.BytesPerSample)
	for i, s := range samples {
		v := int16(s * 32767.0)
		if s >= 1.0 {
			v = 32767
		} else if s <= -1.0 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}
