package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

// Writer emits one caption text per line to an io.Writer. It renders every
// caption kind; on a console the heartbeat and fatal lines are exactly what
// the operator wants to see.
type Writer struct {
	mu   sync.Mutex
	w    io.Writer
	file *os.File
}

var _ Sink = (*Writer)(nil)

// NewWriter wraps w. The caller keeps ownership of w; Close is a no-op.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewFileWriter creates (or truncates) path and writes caption lines to it.
// Close closes the file.
func NewFileWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening caption file %q: %w", path, err)
	}
	return &Writer{w: f, file: f}, nil
}

// Write implements [Sink].
func (s *Writer) Write(c types.Caption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, c.Text)
	return err
}

// Close implements [Sink].
func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
