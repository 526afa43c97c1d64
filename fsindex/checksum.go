package fsindex

import (
	"io"
	"os"

	"github.com/hahatianx/lumo/checksum"
	"github.com/hahatianx/lumo/lumoerr"
)

const checksumChunkSize = 64 * 1024

// ComputeChecksum reads path in checksumChunkSize chunks and returns its
// checksum, matching spec.md §5's "64 KiB reads" sizing.
func ComputeChecksum(path string) (checksum.Sum, error) {
	f, err := os.Open(path)
	if err != nil {
		return checksum.Sum{}, lumoerr.E(lumoerr.NotExist, "computing checksum", err)
	}
	defer f.Close()

	w := checksum.NewWriter()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		return checksum.Sum{}, lumoerr.E(lumoerr.Invalid, "reading file for checksum", err)
	}
	return w.Sum(), nil
}
