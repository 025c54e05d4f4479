package journal_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/journal"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memJournal(t *testing.T, opts ...journal.Option) *journal.Journal {
	t.Helper()
	opts = append([]journal.Option{journal.WithInMemory(), journal.WithLogger(discardLogger())}, opts...)
	j, err := journal.Open("", opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func utter(text string, start time.Time) types.Caption {
	return types.Caption{
		Kind:     types.KindUtterance,
		Text:     text,
		Start:    start,
		AudioLen: time.Second,
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	j := memJournal(t)
	t0 := time.Now().UTC()

	first, err := j.Append(utter("one", t0))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := j.Append(utter("two", t0.Add(time.Second)))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if first.Seq != 1 {
		t.Errorf("first Seq = %d, want 1", first.Seq)
	}
	if second.Seq != 2 {
		t.Errorf("second Seq = %d, want 2", second.Seq)
	}
}

func TestAppendSkipsHeartbeats(t *testing.T) {
	j := memJournal(t)

	c, err := j.Append(types.Caption{Kind: types.KindHeartbeat, Text: "[DEMO] audio captured @ 10:00:00,000"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c.Seq != 0 {
		t.Errorf("heartbeat Seq = %d, want 0", c.Seq)
	}

	got, err := j.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Tail = %v, want empty", got)
	}
}

func TestWithHeartbeats(t *testing.T) {
	j := memJournal(t, journal.WithHeartbeats())

	c, err := j.Append(types.Caption{Kind: types.KindHeartbeat, Text: "hb", Start: time.Now()})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c.Seq != 1 {
		t.Errorf("heartbeat Seq = %d, want 1", c.Seq)
	}
}

func TestTail(t *testing.T) {
	j := memJournal(t)
	t0 := time.Now().UTC()

	for i := range 5 {
		if _, err := j.Append(utter(strings.Repeat("x", i+1), t0.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := j.Tail(3)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Tail(3) returned %d captions, want 3", len(got))
	}
	for i, wantSeq := range []int64{3, 4, 5} {
		if got[i].Seq != wantSeq {
			t.Errorf("Tail(3)[%d].Seq = %d, want %d", i, got[i].Seq, wantSeq)
		}
	}

	all, err := j.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Tail(10) returned %d captions, want 5", len(all))
	}

	none, err := j.Tail(0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Tail(0) returned %d captions, want 0", len(none))
	}
}

func TestTailRoundTripsFields(t *testing.T) {
	j := memJournal(t)
	start := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	in := types.Caption{
		Kind:         types.KindUtterance,
		Text:         "[Alice] Hello there.",
		Speaker:      "Alice",
		SpeakerScore: 0.82,
		Start:        start,
		AudioLen:     2500 * time.Millisecond,
	}
	if _, err := j.Append(in); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := j.Tail(1)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Tail returned %d captions, want 1", len(got))
	}
	c := got[0]
	if c.Text != in.Text || c.Speaker != in.Speaker || c.SpeakerScore != in.SpeakerScore {
		t.Errorf("caption = %+v, want fields of %+v", c, in)
	}
	if !c.Start.Equal(start) {
		t.Errorf("Start = %v, want %v", c.Start, start)
	}
	if c.AudioLen != in.AudioLen {
		t.Errorf("AudioLen = %v, want %v", c.AudioLen, in.AudioLen)
	}
}

func TestRange(t *testing.T) {
	j := memJournal(t)
	t0 := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	for i := range 3 {
		if _, err := j.Append(utter("c", t0.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	mid, err := j.Range(t0.Add(30*time.Second), t0.Add(90*time.Second))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(mid) != 1 || mid[0].Seq != 2 {
		t.Errorf("Range(mid) = %+v, want only Seq 2", mid)
	}

	all, err := j.Range(time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unbounded Range returned %d, want 3", len(all))
	}

	// From is inclusive, to is exclusive.
	fromSecond, err := j.Range(t0.Add(time.Minute), time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(fromSecond) != 2 {
		t.Errorf("Range(from=+1m) returned %d, want 2", len(fromSecond))
	}
	toSecond, err := j.Range(time.Time{}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(toSecond) != 1 {
		t.Errorf("Range(to=+1m) returned %d, want 1", len(toSecond))
	}
}

func TestExportSRT(t *testing.T) {
	j := memJournal(t)
	t0 := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	captions := []types.Caption{
		{Kind: types.KindUtterance, Text: "Hello.", Start: t0, AudioLen: 1500 * time.Millisecond},
		{Kind: types.KindUtterance, Text: "[Alice] Hi.", Start: t0.Add(2 * time.Second), AudioLen: time.Second},
	}
	for _, c := range captions {
		if _, err := j.Append(c); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var buf strings.Builder
	n, err := j.ExportSRT(&buf, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ExportSRT: %v", err)
	}
	if n != 2 {
		t.Errorf("cue count = %d, want 2", n)
	}

	want := "1\n00:00:00,000 --> 00:00:01,500\nHello.\n\n" +
		"2\n00:00:02,000 --> 00:00:03,000\n[Alice] Hi.\n\n"
	if got := buf.String(); got != want {
		t.Errorf("srt = %q, want %q", got, want)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := journal.Open(dir, journal.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t0 := time.Now().UTC()
	for i := range 2 {
		if _, err := j.Append(utter("persisted", t0.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := journal.Open(dir, journal.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Tail after reopen returned %d captions, want 2", len(got))
	}

	// The released sequence lease resumes without reusing numbers.
	next, err := reopened.Append(utter("after reopen", t0.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if next.Seq != 3 {
		t.Errorf("Seq after reopen = %d, want 3", next.Seq)
	}
}
