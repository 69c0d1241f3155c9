// ABOUTME: Tests for library scanning and lookup
// ABOUTME: Covers id assignment, filtering, rescan replacement and bounds
package library

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanAssignsSortedIDs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.flac"))
	touch(t, filepath.Join(dir, "a.wav"))
	touch(t, filepath.Join(dir, "sub", "c.flac"))
	touch(t, filepath.Join(dir, "notes.txt"))

	lib, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tracks := lib.List()
	if len(tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(tracks))
	}
	for i, tr := range tracks {
		if tr.ID != i {
			t.Errorf("track %d has id %d", i, tr.ID)
		}
	}
	if tracks[0].Name != "a.wav" || tracks[1].Name != "b.flac" || tracks[2].Name != "c.flac" {
		t.Errorf("unexpected order: %v", tracks)
	}
}

func TestGetBounds(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.flac"))

	lib, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, ok := lib.Get(0); !ok {
		t.Error("expected track 0 to exist")
	}
	if _, ok := lib.Get(1); ok {
		t.Error("expected track 1 to not exist")
	}
	if _, ok := lib.Get(-1); ok {
		t.Error("expected track -1 to not exist")
	}
}

func TestRescanReplacesWholesale(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.flac"))

	lib, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if lib.Len() != 1 {
		t.Fatalf("expected 1 track, got %d", lib.Len())
	}

	if err := os.Remove(filepath.Join(dir, "old.flac")); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(dir, "new1.wav"))
	touch(t, filepath.Join(dir, "new2.wav"))

	if err := lib.Rescan(); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}

	tracks := lib.List()
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks after rescan, got %d", len(tracks))
	}
	if tracks[0].Name != "new1.wav" || tracks[0].ID != 0 {
		t.Errorf("unexpected first track: %+v", tracks[0])
	}
}

func TestSetDirRescans(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	touch(t, filepath.Join(dirA, "a.flac"))
	touch(t, filepath.Join(dirB, "b1.flac"))
	touch(t, filepath.Join(dirB, "b2.flac"))

	lib, err := New(dirA)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := lib.SetDir(dirB); err != nil {
		t.Fatalf("SetDir failed: %v", err)
	}
	if lib.Len() != 2 {
		t.Errorf("expected 2 tracks after SetDir, got %d", lib.Len())
	}
	if lib.Dir() != dirB {
		t.Errorf("expected dir %s, got %s", dirB, lib.Dir())
	}
}
