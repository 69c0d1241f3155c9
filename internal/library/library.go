// ABOUTME: Track library scanning and lookup
// ABOUTME: Recursively indexes lossless files; ids replaced wholesale on rescan
package library

import (
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Track is an immutable reference to one playable file. Created at scan
// time, never mutated, replaced wholesale on rescan.
type Track struct {
	ID   int
	Path string
	Name string
}

// Library holds the scanned track list for one music folder.
type Library struct {
	mu     sync.RWMutex
	dir    string
	tracks []Track
}

// New creates a library rooted at dir and performs an initial scan.
func New(dir string) (*Library, error) {
	l := &Library{dir: dir}
	if err := l.Rescan(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the scanned music folder.
func (l *Library) Dir() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dir
}

// SetDir changes the music folder and rescans.
func (l *Library) SetDir(dir string) error {
	l.mu.Lock()
	l.dir = dir
	l.mu.Unlock()
	return l.Rescan()
}

// Rescan walks the music folder and replaces the track list. Track ids
// are assigned by sorted path order, starting at 0.
func (l *Library) Rescan() error {
	l.mu.RLock()
	dir := l.dir
	l.mu.RUnlock()

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".flac", ".wav":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("library scan failed: %w", err)
	}
	sort.Strings(files)

	tracks := make([]Track, len(files))
	for i, f := range files {
		tracks[i] = Track{ID: i, Path: f, Name: filepath.Base(f)}
	}

	l.mu.Lock()
	l.tracks = tracks
	l.mu.Unlock()

	log.Printf("Library scanned: %d tracks in %s", len(tracks), dir)
	return nil
}

// List returns a copy of the current track list.
func (l *Library) List() []Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

// Get looks up a track by id.
func (l *Library) Get(id int) (Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id < 0 || id >= len(l.tracks) {
		return Track{}, false
	}
	return l.tracks[id], true
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}
