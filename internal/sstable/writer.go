package sstable

import (
	"bytes"
	"io"

	"github.com/sanddb/sanddb/internal/binfmt"
	"github.com/sanddb/sanddb/internal/sanderrors"
)

// WriterOptions configures a new SSTable.
type WriterOptions struct {
	PageSize    uint16
	Compression Compression
}

// DefaultWriterOptions returns the options SandDB uses when the caller
// doesn't override them.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{PageSize: DefaultPageSize, Compression: CompressionNone}
}

// Writer builds a single SSTable file from a strictly ascending stream of
// entries. Callers must call Add in key order and call Finish exactly
// once; Writer does not buffer the whole table in memory, only the
// current chunk.
//
// Entries are grouped into chunks bounded by PageSize (uncompressed). An
// entry larger than PageSize on its own still gets written, alone, as its
// own oversized chunk — matching the boundary policy in
// original_source/src/sstable/writer.rs.
type Writer struct {
	w    io.Writer
	opts WriterOptions

	offset uint64
	dir    []DirectoryEntry

	pending    bytes.Buffer
	pendingN   uint32
	chunkMin   []byte
	chunkMax   []byte
	lastKey    []byte
	haveLast   bool
}

// NewWriter wraps w (positioned at file start) and writes the fixed
// header immediately.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	sw := &Writer{w: w, opts: opts}
	if err := binfmt.WriteU32(w, Magic); err != nil {
		return nil, err
	}
	if err := binfmt.WriteU8(w, CurrentVersion); err != nil {
		return nil, err
	}
	if err := writeU16(w, opts.PageSize); err != nil {
		return nil, err
	}
	if err := binfmt.WriteU8(w, uint8(opts.Compression)); err != nil {
		return nil, err
	}
	sw.offset = HeaderSize
	return sw, nil
}

// Add appends one entry. Keys must arrive in strictly ascending order;
// a key equal to the last one written returns ErrDuplicateKey, and one
// that sorts before it returns ErrOutOfOrderKey. Neither writes anything.
func (w *Writer) Add(e Entry) error {
	if w.haveLast {
		switch cmp := bytes.Compare(e.Key, w.lastKey); {
		case cmp == 0:
			return sanderrors.ErrDuplicateKey
		case cmp < 0:
			return sanderrors.ErrOutOfOrderKey
		}
	}
	encoded, err := encodeEntry(e)
	if err != nil {
		return err
	}

	willExceed := w.pendingN > 0 && uint64(w.pending.Len()+len(encoded)) > uint64(w.opts.PageSize)
	if willExceed {
		if err := w.flushChunk(); err != nil {
			return err
		}
	}

	if w.pendingN == 0 {
		w.chunkMin = append([]byte(nil), e.Key...)
	}
	w.chunkMax = append([]byte(nil), e.Key...)
	w.pending.Write(encoded)
	w.pendingN++

	w.lastKey = append([]byte(nil), e.Key...)
	w.haveLast = true
	return nil
}

// Finish flushes any pending chunk, writes the chunk directory and
// footer, and returns the total number of chunks written. If Add was
// never called the table has zero chunks: the file holds the header, an
// empty directory, and the footer, and Finish returns 0.
func (w *Writer) Finish() (int, error) {
	if w.pendingN > 0 {
		if err := w.flushChunk(); err != nil {
			return 0, err
		}
	}

	dirPos := w.offset
	for _, de := range w.dir {
		if err := binfmt.WriteU64(w.w, de.Offset); err != nil {
			return 0, err
		}
		if err := binfmt.WriteBytes(w.w, de.MinKey); err != nil {
			return 0, err
		}
		if err := binfmt.WriteBytes(w.w, de.MaxKey); err != nil {
			return 0, err
		}
	}

	if err := binfmt.WriteU64(w.w, dirPos); err != nil {
		return 0, err
	}
	if err := binfmt.WriteU32(w.w, uint32(len(w.dir))); err != nil {
		return 0, err
	}
	return len(w.dir), nil
}

func (w *Writer) flushChunk() error {
	raw := append([]byte(nil), w.pending.Bytes()...)
	payload, err := compressPayload(w.opts.Compression, raw)
	if err != nil {
		return err
	}

	if err := binfmt.WriteU32(w.w, w.pendingN); err != nil {
		return err
	}
	if err := binfmt.WriteU64(w.w, uint64(len(payload))); err != nil {
		return err
	}
	if err := binfmt.WriteU64(w.w, uint64(len(raw))); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}

	w.dir = append(w.dir, DirectoryEntry{
		Offset: w.offset,
		MinKey: w.chunkMin,
		MaxKey: w.chunkMax,
	})
	w.offset += ChunkHeaderSize + uint64(len(payload))

	w.pending.Reset()
	w.pendingN = 0
	w.chunkMin, w.chunkMax = nil, nil
	return nil
}

// encodeEntry serializes one entry as kind(1) + key(len-prefixed) +
// value(len-prefixed); value is empty for tombstones.
func encodeEntry(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := binfmt.WriteU8(&buf, uint8(e.Kind)); err != nil {
		return nil, err
	}
	if err := binfmt.WriteBytes(&buf, e.Key); err != nil {
		return nil, err
	}
	value := e.Value
	if e.Kind == KindTombstone {
		value = nil
	}
	if err := binfmt.WriteBytes(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeU16(w io.Writer, v uint16) error {
	_, err := w.Write([]byte{byte(v >> 8), byte(v)})
	return err
}

func readU16FromBytes(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
