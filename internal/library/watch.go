// ABOUTME: Filesystem watcher triggering debounced library rescans
// ABOUTME: Built on fsnotify; watches the music folder and its subfolders
package library

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const rescanDebounce = 500 * time.Millisecond

// Watcher rescans the library when files appear, change or disappear
// under the music folder. Rescans are debounced so a batch copy triggers
// a single rescan.
type Watcher struct {
	lib      *Library
	onChange func()
}

// NewWatcher creates a watcher for the given library. onChange is called
// after every completed rescan; it may be nil.
func NewWatcher(lib *Library, onChange func()) *Watcher {
	return &Watcher{lib: lib, onChange: onChange}
}

// Run watches until the context is canceled. Watch errors are logged and
// non-fatal; the library simply stops auto-refreshing.
func (w *Watcher) Run(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Library watcher unavailable: %v", err)
		return
	}
	defer fw.Close()

	if err := addRecursive(fw, w.lib.Dir()); err != nil {
		log.Printf("Library watcher setup failed: %v", err)
		return
	}

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			// New directories need their own watch before files inside
			// them produce events.
			if ev.Op.Has(fsnotify.Create) {
				_ = addRecursive(fw, ev.Name)
			}
			pending = time.After(rescanDebounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Printf("Library watcher error: %v", err)

		case <-pending:
			pending = nil
			if err := w.lib.Rescan(); err != nil {
				log.Printf("Library rescan failed: %v", err)
				continue
			}
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			_ = fw.Add(path)
		}
		return nil
	})
}
