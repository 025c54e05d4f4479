// Package pipeline runs the recognition loop that turns captured audio into
// captions.
//
// An [IngestQueue] decouples the capture producer from the single worker
// goroutine owned by [Pipeline]. The producer side never blocks: when the
// queue is full the oldest chunk is dropped, because stale audio is worth
// less than keeping capture responsive. The worker dequeues with a bounded
// wait so cancellation is noticed quickly even when no audio arrives.
package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
)

// DefaultQueueSize is the ingest queue capacity in chunks. At the default
// chunk duration this buffers half a minute of audio.
const DefaultQueueSize = 64

// IngestQueue is a bounded FIFO of audio chunks with a drop-oldest overflow
// policy. Push never blocks; Pop waits up to a caller-supplied bound. Safe
// for concurrent use.
type IngestQueue struct {
	ch      chan audio.Chunk
	dropped atomic.Int64
}

// NewIngestQueue creates a queue holding up to size chunks. Non-positive
// sizes fall back to [DefaultQueueSize].
func NewIngestQueue(size int) *IngestQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &IngestQueue{ch: make(chan audio.Chunk, size)}
}

// Push enqueues a chunk without ever blocking the caller. When the queue is
// full the oldest buffered chunk is discarded to make room and the drop
// counter is incremented.
func (q *IngestQueue) Push(c audio.Chunk) {
	for {
		select {
		case q.ch <- c:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// Pop dequeues the next chunk, waiting up to timeout for one to arrive. The
// second return value is false when the wait expired empty.
func (q *IngestQueue) Pop(timeout time.Duration) (audio.Chunk, bool) {
	select {
	case c := <-q.ch:
		return c, true
	case <-time.After(timeout):
		return audio.Chunk{}, false
	}
}

// Drain discards everything currently buffered and returns how many chunks
// were thrown away. Drained chunks do not count as drops.
func (q *IngestQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Depth returns the number of chunks currently buffered.
func (q *IngestQueue) Depth() int {
	return len(q.ch)
}

// Dropped returns the total number of chunks discarded by the overflow
// policy since the queue was created.
func (q *IngestQueue) Dropped() int64 {
	return q.dropped.Load()
}
