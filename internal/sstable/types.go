// Package sstable implements SandDB's on-disk Sorted String Table format:
// an immutable file holding sorted, unique (key,value) entries grouped
// into page-sized, optionally compressed chunks, with a chunk directory
// for range lookup and a fixed footer.
package sstable

import "fmt"

// Magic identifies a SandDB SSTable file.
const Magic uint32 = 0xFAA7BEEF

// Version 1 has no per-entry kind byte (no tombstones); version 2 adds it
// and reserves a compression byte in the header. SandDB only writes
// version 2 but can still open version 1 files, treating every entry as a
// live value.
const (
	Version1 uint8 = 1
	Version2 uint8 = 2

	CurrentVersion = Version2
)

// DefaultPageSize is the target uncompressed size of a chunk's payload.
const DefaultPageSize = 4096

// HeaderSize is the fixed 8-byte file header: magic(4) + version(1) +
// pageSize(2) + compression(1).
const HeaderSize = 8

// ChunkHeaderSize is the fixed 20-byte per-chunk record header: item
// count(4) + compressed size(8) + uncompressed size(8), exactly as
// spec.md §4.2 prescribes.
const ChunkHeaderSize = 20

// FooterSize is the fixed 12-byte trailer: chunk directory pointer(8) +
// chunk count(4).
const FooterSize = 12

// Kind distinguishes a live value from a tombstone. Reserved as an
// in-band one-byte prefix on every entry starting at Version2, resolving
// spec.md §9's open question about tombstone encoding.
type Kind uint8

const (
	KindValue     Kind = 0
	KindTombstone Kind = 1
)

// Compression identifies the codec applied to a chunk's payload as a
// unit. Selected per spec.md §9's {none, lz4, zstd} configuration enum;
// "lz4" is realized here as the fast codec slot backed by snappy since no
// lz4 library appears in the retrieved corpus (see DESIGN.md).
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionFast Compression = 1 // snappy
	CompressionBest Compression = 2 // zstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionFast:
		return "lz4" // spec-facing name; internally backed by snappy
	case CompressionBest:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// Header is the fixed preamble of every SSTable file.
type Header struct {
	Magic       uint32
	Version     uint8
	PageSize    uint16
	Compression Compression
}

// Footer is the fixed 12-byte trailer; its offset is always
// file_size - FooterSize.
type Footer struct {
	ChunkDirPos uint64
	ChunkCount  uint32
}

// DirectoryEntry describes one chunk: its file offset and the inclusive
// key range of the entries it holds. The directory as a whole is ordered
// by MinKey ascending with non-overlapping, monotonically increasing
// intervals (spec.md §3).
type DirectoryEntry struct {
	Offset uint64
	MinKey []byte
	MaxKey []byte
}

// Entry is a single (key, value) pair as it appears inside a chunk.
type Entry struct {
	Key   []byte
	Value []byte
	Kind  Kind
}

func (e Entry) IsTombstone() bool { return e.Kind == KindTombstone }
