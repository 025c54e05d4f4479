package pipeline_test

import (
	"testing"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/pipeline"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
)

// stamped builds a chunk identifiable by its timestamp.
func stamped(ts time.Duration) audio.Chunk {
	return audio.Chunk{
		Data:       make([]byte, 4),
		SampleRate: audio.CanonicalRate,
		Channels:   1,
		Timestamp:  ts,
	}
}

func TestQueuePushPopOrder(t *testing.T) {
	t.Parallel()
	q := pipeline.NewIngestQueue(8)

	for i := range 3 {
		q.Push(stamped(time.Duration(i) * time.Second))
	}
	if got := q.Depth(); got != 3 {
		t.Fatalf("Depth() = %d, want 3", got)
	}

	for i := range 3 {
		c, ok := q.Pop(time.Second)
		if !ok {
			t.Fatalf("Pop %d: queue empty", i)
		}
		if want := time.Duration(i) * time.Second; c.Timestamp != want {
			t.Errorf("Pop %d: Timestamp = %v, want %v", i, c.Timestamp, want)
		}
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	q := pipeline.NewIngestQueue(2)

	q.Push(stamped(0))
	q.Push(stamped(1 * time.Second))
	q.Push(stamped(2 * time.Second))

	if got := q.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	c, ok := q.Pop(time.Second)
	if !ok {
		t.Fatal("Pop: queue empty")
	}
	if c.Timestamp != 1*time.Second {
		t.Errorf("first surviving chunk Timestamp = %v, want 1s", c.Timestamp)
	}
	c, ok = q.Pop(time.Second)
	if !ok {
		t.Fatal("Pop: queue empty")
	}
	if c.Timestamp != 2*time.Second {
		t.Errorf("second surviving chunk Timestamp = %v, want 2s", c.Timestamp)
	}
}

func TestQueuePopTimesOut(t *testing.T) {
	t.Parallel()
	q := pipeline.NewIngestQueue(2)

	start := time.Now()
	_, ok := q.Pop(20 * time.Millisecond)
	if ok {
		t.Fatal("Pop on an empty queue returned a chunk")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop returned after %v, want at least 20ms", elapsed)
	}
}

func TestQueueDrain(t *testing.T) {
	t.Parallel()
	q := pipeline.NewIngestQueue(8)

	for i := range 3 {
		q.Push(stamped(time.Duration(i)))
	}
	if got := q.Drain(); got != 3 {
		t.Errorf("Drain() = %d, want 3", got)
	}
	if got := q.Depth(); got != 0 {
		t.Errorf("Depth() after drain = %d, want 0", got)
	}
	if got := q.Dropped(); got != 0 {
		t.Errorf("Dropped() after drain = %d, want 0 (drained chunks are not drops)", got)
	}
}

func TestQueueDefaultSize(t *testing.T) {
	t.Parallel()
	q := pipeline.NewIngestQueue(0)

	for i := range pipeline.DefaultQueueSize {
		q.Push(stamped(time.Duration(i)))
	}
	if got := q.Dropped(); got != 0 {
		t.Fatalf("Dropped() = %d after filling to default capacity, want 0", got)
	}
	if got := q.Depth(); got != pipeline.DefaultQueueSize {
		t.Errorf("Depth() = %d, want %d", got, pipeline.DefaultQueueSize)
	}

	q.Push(stamped(time.Hour))
	if got := q.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d after overflow, want 1", got)
	}
}
