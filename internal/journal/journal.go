// Package journal persists finalized captions in an embedded Badger store.
//
// Every utterance and fatal caption is msgpack-encoded and appended under a
// monotonic sequence key, giving each caption its permanent Seq. Heartbeats
// are excluded by default, since they would dominate the store during
// model-less runs, but [WithHeartbeats] journals them too. The journal serves the
// captions CLI (Tail, Range, SRT export) and the MCP captions_tail tool;
// write failures are the pipeline's to log, never to die on.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/sink"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

var (
	keyPrefix = []byte("caption/")
	seqKey    = []byte("caption-seq")
)

// seqBandwidth is the sequence lease size. A crash can skip at most this
// many sequence numbers; Seq is monotonic, not dense.
const seqBandwidth = 64

// Journal is the persistent caption store. Safe for concurrent use.
type Journal struct {
	db  *badger.DB
	seq *badger.Sequence

	log        *slog.Logger
	inMemory   bool
	heartbeats bool
}

// Option configures a [Journal].
type Option func(*Journal)

// WithLogger sets the logger (Badger's own chatter is funneled through it at
// debug level). Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(j *Journal) {
		if log != nil {
			j.log = log
		}
	}
}

// WithInMemory keeps the store purely in memory. Nothing touches disk and
// nothing survives Close; made for tests.
func WithInMemory() Option {
	return func(j *Journal) { j.inMemory = true }
}

// WithHeartbeats journals heartbeat captions as well.
func WithHeartbeats() Option {
	return func(j *Journal) { j.heartbeats = true }
}

// Open opens (or creates) the journal in dir. With [WithInMemory] dir is
// ignored.
func Open(dir string, opts ...Option) (*Journal, error) {
	j := &Journal{log: slog.Default()}
	for _, o := range opts {
		o(j)
	}

	var bopts badger.Options
	if j.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(dir)
	}
	bopts = bopts.WithLogger(badgerLogger{j.log})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening caption journal: %w", err)
	}
	seq, err := db.GetSequence(seqKey, seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening caption sequence: %w", err)
	}
	j.db, j.seq = db, seq
	return j, nil
}

// Append stores c under the next sequence number and returns it with Seq
// assigned. Heartbeats are skipped (returned unchanged, Seq zero) unless the
// journal was opened with [WithHeartbeats].
func (j *Journal) Append(c types.Caption) (types.Caption, error) {
	if c.Kind == types.KindHeartbeat && !j.heartbeats {
		return c, nil
	}

	n, err := j.seq.Next()
	if err != nil {
		return c, fmt.Errorf("journal: next sequence: %w", err)
	}
	c.Seq = int64(n) + 1

	data, err := msgpack.Marshal(c)
	if err != nil {
		return c, fmt.Errorf("journal: encode caption: %w", err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(captionKey(uint64(c.Seq)), data)
	})
	if err != nil {
		return c, fmt.Errorf("journal: append caption %d: %w", c.Seq, err)
	}
	return c, nil
}

// Tail returns the most recent n captions in chronological order.
func (j *Journal) Tail(n int) ([]types.Caption, error) {
	if n <= 0 {
		return nil, nil
	}

	var out []types.Caption
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past every possible caption key, then walk backwards.
		seek := append(append([]byte{}, keyPrefix...), bytes.Repeat([]byte{0xFF}, 9)...)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix) && len(out) < n; it.Next() {
			c, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: tail: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Range returns every caption whose Start falls in [from, to), in sequence
// order. A zero from or to leaves that side unbounded.
func (j *Journal) Range(from, to time.Time) ([]types.Caption, error) {
	var out []types.Caption
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			c, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			if !from.IsZero() && c.Start.Before(from) {
				continue
			}
			if !to.IsZero() && !c.Start.Before(to) {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: range: %w", err)
	}
	return out, nil
}

// ExportSRT writes the captions in [from, to) to w as SubRip cues and
// returns the cue count. Cue times are relative to the first exported
// caption's start.
func (j *Journal) ExportSRT(w io.Writer, from, to time.Time) (int, error) {
	captions, err := j.Range(from, to)
	if err != nil {
		return 0, err
	}

	srt := sink.NewSRT(w)
	count := 0
	for _, c := range captions {
		if c.Kind == types.KindHeartbeat {
			continue
		}
		if err := srt.Write(c); err != nil {
			return count, fmt.Errorf("journal: writing cue: %w", err)
		}
		count++
	}
	return count, nil
}

// Close releases the sequence lease and closes the store.
func (j *Journal) Close() error {
	var errs []error
	if err := j.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("releasing caption sequence: %w", err))
	}
	if err := j.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing caption journal: %w", err))
	}
	return errors.Join(errs...)
}

func captionKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

func decodeItem(item *badger.Item) (types.Caption, error) {
	var c types.Caption
	err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &c)
	})
	if err != nil {
		return c, fmt.Errorf("decoding caption %q: %w", item.Key(), err)
	}
	return c, nil
}

// badgerLogger funnels Badger's log output through slog. Badger is chatty at
// info level, so info and debug both land on debug.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, args ...any) {
	l.log.Error("badger: " + strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (l badgerLogger) Warningf(f string, args ...any) {
	l.log.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (l badgerLogger) Infof(f string, args ...any) {
	l.log.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (l badgerLogger) Debugf(f string, args ...any) {
	l.log.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(f, args...)))
}
