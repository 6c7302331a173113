package sstable

import (
	"golang.org/x/exp/mmap"
)

// OpenMapped memory-maps path read-only and returns a Reader backed by
// it, avoiding a copy into a userspace page cache for hot, long-lived
// SSTables at the bottom levels. The returned closer must be closed when
// the Reader is no longer needed (typically on ref-count release).
func OpenMapped(path string) (*Reader, *mmap.ReaderAt, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := Open(ra, int64(ra.Len()))
	if err != nil {
		ra.Close()
		return nil, nil, err
	}
	return r, ra, nil
}
