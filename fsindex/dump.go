package fsindex

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hahatianx/lumo/checksum"
	"github.com/hahatianx/lumo/lumoerr"
)

// DumpIndex serializes every active entry as "path\tlast_writer\n", sorted
// by path for a deterministic checksum. If the resulting checksum equals
// prevChecksum the write is skipped and prevChecksum is returned unchanged;
// otherwise the dump is written to a unique temp file under
// <workDir>/.disc/tmp_downloads and renamed atomically over
// <workDir>/.disc/lumo_index.
func (idx *Index) DumpIndex(workDir string, prevChecksum checksum.Sum) (checksum.Sum, error) {
	views := idx.snapshotActive()
	sort.Slice(views, func(i, j int) bool { return views[i].AbsPath < views[j].AbsPath })

	var buf bytes.Buffer
	for _, v := range views {
		fmt.Fprintf(&buf, "%s\t%s\n", v.AbsPath, v.LastWriter)
	}

	w := checksum.NewWriter()
	w.Write(buf.Bytes())
	sum := w.Sum()
	if sum == prevChecksum {
		return prevChecksum, nil
	}

	tmpDir := filepath.Join(workDir, ".disc", "tmp_downloads")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return checksum.Sum{}, lumoerr.E(lumoerr.Unavailable, "creating dump temp dir", err)
	}
	tmp, err := os.CreateTemp(tmpDir, "lumo_index-*")
	if err != nil {
		return checksum.Sum{}, lumoerr.E(lumoerr.Unavailable, "creating dump temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return checksum.Sum{}, lumoerr.E(lumoerr.Invalid, "writing dump temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return checksum.Sum{}, lumoerr.E(lumoerr.Invalid, "closing dump temp file", err)
	}

	dest := filepath.Join(workDir, ".disc", "lumo_index")
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return checksum.Sum{}, lumoerr.E(lumoerr.Unavailable, "renaming dump into place", err)
	}
	return sum, nil
}
