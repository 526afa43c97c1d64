// Package fswatch wraps fsnotify into a recursive, filtered filesystem
// watcher that emits the four event kinds the file index consumes.
package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/lumolog"
	"github.com/hahatianx/lumo/sync/once"
)

// EventKind discriminates the filtered events fswatch emits.
type EventKind int

const (
	Create EventKind = iota
	Remove
	ModifyName
	ModifyData
)

func (k EventKind) String() string {
	switch k {
	case Create:
		return "Create"
	case Remove:
		return "Remove"
	case ModifyName:
		return "ModifyName"
	case ModifyData:
		return "ModifyData"
	default:
		return "Unknown"
	}
}

// Event is a single filtered filesystem change.
type Event struct {
	Path string
	Kind EventKind
}

// Watcher recursively watches a root directory, filtering out the
// daemon's own metadata subtree and common OS/editor noise.
type Watcher struct {
	root   string
	fsw    *fsnotify.Watcher
	Events chan Event

	closeOnce once.Task
}

// New starts watching root recursively. Callers must call Run to begin
// pumping events and Close to release OS resources.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, lumoerr.E(lumoerr.Unavailable, "creating filesystem watcher", err)
	}
	w := &Watcher{root: root, fsw: fsw, Events: make(chan Event, 256)}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best effort; unreadable subtrees are simply not watched
		}
		if !d.IsDir() {
			return nil
		}
		if shouldIgnorePath(path) {
			return filepath.SkipDir
		}
		if !hasFullAccess(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run pumps fsnotify events into w.Events until ctx is cancelled or the
// watcher is closed. A watcher error is logged; per spec.md §4.1 the
// watcher is restarted only by process restart, so Run simply returns on
// a fatal channel close rather than attempting to resubscribe.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			lumolog.Error.Printf("fswatch: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if shouldIgnorePath(ev.Name) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if !shouldIgnorePath(ev.Name) && hasFullAccess(ev.Name) {
				if err := w.addRecursive(ev.Name); err != nil {
					lumolog.Error.Printf("fswatch: watching new directory %s: %v", ev.Name, err)
				}
			}
			return
		}
		w.emit(ev.Name, Create)
		return
	}
	if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
		w.emit(ev.Name, Remove)
		return
	}
	if ev.Op&fsnotify.Write != 0 {
		w.emit(ev.Name, ModifyData)
		return
	}
	if ev.Op&fsnotify.Chmod != 0 {
		w.emit(ev.Name, ModifyName)
		return
	}
}

func (w *Watcher) emit(path string, kind EventKind) {
	select {
	case w.Events <- Event{Path: path, Kind: kind}:
	default:
		lumolog.Error.Printf("fswatch: event channel full, dropping %s %s", kind, path)
	}
}

// Close releases the underlying fsnotify watcher.
// Close stops the underlying fsnotify watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	return w.closeOnce.Do(func() error {
		return w.fsw.Close()
	})
}

var ignoredNames = []string{".DS_Store", "desktop.ini", "thumbs.db"}

func shouldIgnorePath(path string) bool {
	if strings.Contains(path, string(filepath.Separator)+".disc"+string(filepath.Separator)) ||
		strings.HasSuffix(path, string(filepath.Separator)+".disc") {
		return true
	}
	base := filepath.Base(path)
	for _, n := range ignoredNames {
		if strings.EqualFold(base, n) {
			return true
		}
	}
	if strings.HasPrefix(base, ".perm_check") {
		return true
	}
	if strings.Contains(path, ".sb-") {
		return true
	}
	return false
}

func hasFullAccess(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	mode := fi.Mode().Perm()
	const rwx = 0o700
	return mode&rwx == rwx
}
