package vocab_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/vocab"
)

func newStore(t *testing.T) (*vocab.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := vocab.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, dir
}

func writeSample(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("RIFF fake wav"), 0o644); err != nil {
		t.Fatalf("writing sample: %v", err)
	}
	return path
}

func TestAddAndWords(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	for _, w := range []string{"grafana", "Nakamura"} {
		if _, err := s.Add(w); err != nil {
			t.Fatalf("Add(%q): %v", w, err)
		}
	}

	got := s.Words()
	want := []string{"Nakamura", "grafana"}
	if len(got) != len(want) {
		t.Fatalf("Words() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Words()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAddPersists(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	entry, err := s.Add("Nakamura")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if entry.Slug != "nakamura" {
		t.Errorf("Slug = %q, want %q", entry.Slug, "nakamura")
	}
	if _, err := os.Stat(filepath.Join(dir, entry.Folder)); err != nil {
		t.Errorf("word folder missing: %v", err)
	}

	// A fresh Store over the same directory sees the word.
	reopened, err := vocab.New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if words := reopened.Words(); len(words) != 1 || words[0] != "Nakamura" {
		t.Errorf("reopened Words() = %v, want [Nakamura]", words)
	}
}

func TestAddCopiesSamples(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	sample := writeSample(t, "clip.wav")
	entry, err := s.Add("redis", sample)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(entry.Samples) != 1 || entry.Samples[0] != "clip.wav" {
		t.Fatalf("Samples = %v, want [clip.wav]", entry.Samples)
	}
	if _, err := os.Stat(filepath.Join(dir, entry.Folder, "clip.wav")); err != nil {
		t.Errorf("sample not copied: %v", err)
	}
}

func TestAddMergesSamples(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	first, err := s.Add("redis", writeSample(t, "clip.wav"))
	if err != nil {
		t.Fatalf("first Add: %v", err)
	}
	second, err := s.Add("redis", writeSample(t, "clip.wav"))
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}

	want := []string{"clip.wav", "clip-2.wav"}
	if len(second.Samples) != len(want) {
		t.Fatalf("Samples = %v, want %v", second.Samples, want)
	}
	for i := range want {
		if second.Samples[i] != want[i] {
			t.Errorf("Samples[%d] = %q, want %q", i, second.Samples[i], want[i])
		}
	}
	if !second.AddedAt.Equal(first.AddedAt) {
		t.Errorf("AddedAt changed on merge: %v → %v", first.AddedAt, second.AddedAt)
	}
	if _, err := os.Stat(filepath.Join(dir, second.Folder, "clip-2.wav")); err != nil {
		t.Errorf("suffixed sample not copied: %v", err)
	}
	if words := s.Words(); len(words) != 1 {
		t.Errorf("Words() = %v, want a single entry", words)
	}
}

func TestAddEmptyWord(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	if _, err := s.Add("   "); err == nil {
		t.Fatal("Add of blank word succeeded, want error")
	}
}

func TestAddMissingSampleRollsBack(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	_, err := s.Add("redis", filepath.Join(t.TempDir(), "nope.wav"))
	if err == nil {
		t.Fatal("Add with missing sample succeeded, want error")
	}
	if words := s.Words(); len(words) != 0 {
		t.Errorf("Words() = %v, want empty after failed add", words)
	}
	if _, err := os.Stat(filepath.Join(dir, "redis")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("folder left behind after failed add: %v", err)
	}
}

func TestFolderCollision(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	// Both slugify to "o_connor"; the second entry must get its own folder.
	a, err := s.Add("O'Connor")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	b, err := s.Add("o connor")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Folder == b.Folder {
		t.Fatalf("both entries share folder %q", a.Folder)
	}
	for _, folder := range []string{a.Folder, b.Folder} {
		if _, err := os.Stat(filepath.Join(dir, folder)); err != nil {
			t.Errorf("folder %q missing: %v", folder, err)
		}
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	entry, err := s.Add("redis", writeSample(t, "clip.wav"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove("redis"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if words := s.Words(); len(words) != 0 {
		t.Errorf("Words() = %v, want empty", words)
	}
	if _, err := os.Stat(filepath.Join(dir, entry.Folder)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("folder survived Remove: %v", err)
	}

	reopened, err := vocab.New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if words := reopened.Words(); len(words) != 0 {
		t.Errorf("reopened Words() = %v, want empty", words)
	}
}

func TestRemoveUnknown(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	if err := s.Remove("ghost"); !errors.Is(err, vocab.ErrNotFound) {
		t.Errorf("Remove = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	if _, err := s.Add("zephyr"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("alpha", writeSample(t, "a.wav")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	entries := s.List()
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].Word != "alpha" || entries[1].Word != "zephyr" {
		t.Errorf("List() order = [%s %s], want [alpha zephyr]", entries[0].Word, entries[1].Word)
	}
	if len(entries[0].Samples) != 1 {
		t.Errorf("alpha samples = %v, want one", entries[0].Samples)
	}
	if entries[0].AddedAt.IsZero() {
		t.Error("AddedAt is zero")
	}
}
