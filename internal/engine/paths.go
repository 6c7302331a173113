package engine

import (
	"fmt"
	"path/filepath"
)

// sstablePath returns the on-disk path for the SSTable with the given
// manifest-assigned ID, zero-padded so a directory listing sorts in ID
// order.
func sstablePath(dataDir string, id uint64) string {
	return filepath.Join(dataDir, fmt.Sprintf("%016d.sst", id))
}
