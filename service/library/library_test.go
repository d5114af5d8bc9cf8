package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRefreshIndexesAudioFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Abida Parveen - Mast Qalandar.mp3")
	touch(t, dir, "lonesome.flac")
	touch(t, dir, "notes.txt") // ignored
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	lib := New(dir, nil)
	if err := lib.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if lib.Size() != 2 {
		t.Fatalf("indexed %d files, want 2", lib.Size())
	}

	track, path, ok := lib.GetTrack("local-1")
	if !ok {
		t.Fatal("local-1 not found")
	}
	if track.Title != "Mast Qalandar" || track.Artist != "Abida Parveen" {
		t.Errorf("parsed track = %+v", track)
	}
	if filepath.Base(path) != "Abida Parveen - Mast Qalandar.mp3" {
		t.Errorf("path = %q", path)
	}
	if !track.IsLocal() {
		t.Error("local track should report IsLocal")
	}

	track, _, ok = lib.GetTrack("local-2")
	if !ok || track.Title != "lonesome" || track.Artist != "Unknown Artist" {
		t.Errorf("bare filename track = %+v (ok=%v)", track, ok)
	}
}

func TestSearchFiltersAndDedupes(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Abida Parveen - Mast Qalandar.mp3")
	touch(t, dir, "Abida Parveen - Mast Qalandar.flac") // same song, other format
	touch(t, dir, "Kishori Amonkar - Sahela Re.mp3")

	lib := New(dir, nil)
	if err := lib.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := lib.Search("qalandar")
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1 (formats deduped)", len(got))
	}
	if got[0].Title != "Mast Qalandar" {
		t.Errorf("result = %+v", got[0])
	}

	if got := lib.Search(""); len(got) != 2 {
		t.Errorf("empty query should list all deduped tracks, got %d", len(got))
	}
	if got := lib.Search("zz-no-match"); len(got) != 0 {
		t.Errorf("got %d results for non-matching query", len(got))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	lib := New(dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		lib.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	touch(t, dir, "late arrival.mp3")
	deadline := time.After(2 * time.Second)
	for lib.Size() == 0 {
		select {
		case <-deadline:
			t.Fatal("refresh loop never picked up the new file")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
