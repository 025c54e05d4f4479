package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

// defaultCueDuration is how long a cue with no measured audio length (the
// fatal sentinel, mainly) stays on screen.
const defaultCueDuration = 2 * time.Second

// SRT writes numbered SubRip cues. Cue times are relative to the first
// written caption's start, so a live session produces a file that plays from
// 00:00:00,000. Heartbeats are skipped.
type SRT struct {
	mu    sync.Mutex
	w     io.Writer
	file  *os.File
	epoch time.Time
	n     int
}

var _ Sink = (*SRT)(nil)

// NewSRT wraps w. The caller keeps ownership of w; Close is a no-op.
func NewSRT(w io.Writer) *SRT {
	return &SRT{w: w}
}

// NewSRTFile creates (or truncates) path and writes cues to it. Close closes
// the file.
func NewSRTFile(path string) (*SRT, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening srt file %q: %w", path, err)
	}
	return &SRT{w: f, file: f}, nil
}

// Write implements [Sink].
func (s *SRT) Write(c types.Caption) error {
	if c.Kind == types.KindHeartbeat {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n == 0 {
		s.epoch = c.Start
	}
	start := c.Start.Sub(s.epoch)
	if start < 0 {
		start = 0
	}
	dur := c.AudioLen
	if dur <= 0 {
		dur = defaultCueDuration
	}

	s.n++
	_, err := fmt.Fprintf(s.w, "%d\n%s --> %s\n%s\n\n",
		s.n, Timestamp(start), Timestamp(start+dur), c.Text)
	return err
}

// Close implements [Sink].
func (s *SRT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Timestamp renders d in the SubRip "HH:MM:SS,mmm" form. Negative durations
// clamp to zero; hours grow past two digits rather than wrapping.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}
