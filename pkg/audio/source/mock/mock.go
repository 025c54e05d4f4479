// Package mock provides a scripted in-memory implementation of the
// [source.Source] contract for unit tests.
//
// Set [Source.Script] before calling Open; the chunks are queued in order
// and the channel closes once the script has run, unless KeepOpen is set.
package mock

import (
	"context"
	"sync"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio/source"
)

// Source is a scripted [source.Source]. The zero value is usable.
type Source struct {
	// Script holds the chunks queued, in order, when Open is called.
	Script []audio.Chunk

	// OpenErr, when set, is returned by Open; nothing is emitted.
	OpenErr error

	// CloseErr is returned by Close.
	CloseErr error

	// KeepOpen leaves the chunk channel open after the script has run so
	// the test can push more chunks with Emit.
	KeepOpen bool

	mu        sync.Mutex
	out       chan audio.Chunk
	opened    bool
	closed    bool
	outClosed bool
}

var _ source.Source = (*Source)(nil)

// Open implements [source.Source]. The script is queued synchronously; the
// channel buffer is always large enough to hold it.
func (s *Source) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	if s.OpenErr != nil {
		return s.OpenErr
	}
	ch := s.channel()
	for _, c := range s.Script {
		ch <- c
	}
	if !s.KeepOpen {
		s.closeOut()
	}
	return nil
}

// Chunks implements [source.Source].
func (s *Source) Chunks() <-chan audio.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel()
}

// Close implements [source.Source]. The chunk channel is closed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeOut()
	return s.CloseErr
}

// Emit queues one more chunk. Dropped after Close or once the script has
// closed the channel.
func (s *Source) Emit(c audio.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outClosed {
		return
	}
	s.channel() <- c
}

// Opened reports whether Open was called.
func (s *Source) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// channel lazily creates the chunk channel with room for the whole script
// plus slack for Emit, so queuing never blocks. Call with mu held.
func (s *Source) channel() chan audio.Chunk {
	if s.out == nil {
		s.out = make(chan audio.Chunk, len(s.Script)+64)
	}
	return s.out
}

// closeOut closes the chunk channel once. Call with mu held.
func (s *Source) closeOut() {
	ch := s.channel()
	if !s.outClosed {
		close(ch)
		s.outClosed = true
	}
}
