package fsindex

import (
	"sync"
	"time"

	"github.com/hahatianx/lumo/checksum"
)

// mtimeGranularity is the rounding applied to observed mtimes so the index
// agrees across filesystems (FAT32 has 2-second mtime resolution).
const mtimeGranularity = 2 * time.Second

// roundMtime rounds t down to mtimeGranularity.
func roundMtime(t time.Time) time.Time {
	return t.Truncate(mtimeGranularity)
}

// Fingerprint is a checksum valid only while Size/Mtime still match an
// entry's current metadata.
type Fingerprint struct {
	Size     int64
	Mtime    time.Time
	Checksum checksum.Sum
}

// Entry is one tracked path. The index exclusively owns Entry values via
// shared *Entry handles; callers reach fields only through WithEntry, so a
// per-entry lock is never held across a caller's own blocking calls.
type Entry struct {
	mu sync.RWMutex

	AbsPath      string
	Size         int64
	Mtime        time.Time
	Checksum     *Fingerprint
	LastWriter   string
	IsActive     bool
	IsStale      bool
	LastModified time.Time
	Version      uint64
}

// View is a point-in-time copy of an Entry's fields, safe to use after the
// entry's lock has been released.
type View struct {
	AbsPath      string
	Size         int64
	Mtime        time.Time
	Checksum     *Fingerprint
	LastWriter   string
	IsActive     bool
	IsStale      bool
	LastModified time.Time
	Version      uint64
}

func (e *Entry) snapshot() View {
	return View{
		AbsPath:      e.AbsPath,
		Size:         e.Size,
		Mtime:        e.Mtime,
		Checksum:     e.Checksum,
		LastWriter:   e.LastWriter,
		IsActive:     e.IsActive,
		IsStale:      e.IsStale,
		LastModified: e.LastModified,
		Version:      e.Version,
	}
}

// View returns a consistent snapshot of e's fields.
func (e *Entry) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}
