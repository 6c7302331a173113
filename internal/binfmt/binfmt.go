// Package binfmt provides the low-level binary codec SandDB's on-disk
// formats are built from: big-endian fixed-width integers, length-prefixed
// byte strings, and a streaming CRC32C helper. Every other package under
// internal/ reads and writes bytes through this one rather than calling
// encoding/binary directly, so the wire format stays consistent in one
// place.
package binfmt

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/sanddb/sanddb/internal/sanderrors"
)

// Castagnoli is the CRC32C polynomial table used throughout the manifest
// and sstable formats.
var Castagnoli = crc32.MakeTable(crc32.Castagnoli)

// NewCRC returns a fresh streaming CRC32C hash.
func NewCRC() *CRC {
	return &CRC{h: crc32.New(Castagnoli)}
}

// CRC wraps hash/crc32 for incremental feeding.
type CRC struct {
	h hashWriter
}

type hashWriter interface {
	io.Writer
	Sum32() uint32
}

// Write feeds more bytes into the running checksum. Never returns an error.
func (c *CRC) Write(p []byte) {
	_, _ = c.h.Write(p)
}

// Sum32 returns the checksum of everything written so far.
func (c *CRC) Sum32() uint32 {
	return c.h.Sum32()
}

// ChecksumIEEE... intentionally not provided: SandDB's formats always use
// Castagnoli, never IEEE, so there is exactly one checksum function.
func Checksum(p []byte) uint32 {
	return crc32.Checksum(p, Castagnoli)
}

// WriteU8 writes a single byte.
func WriteU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadU8 reads a single byte.
func ReadU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapShortRead(err)
	}
	return buf[0], nil
}

// WriteU32 writes a big-endian uint32.
func WriteU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadU32 reads a big-endian uint32.
func ReadU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapShortRead(err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteU64 writes a big-endian uint64.
func WriteU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadU64 reads a big-endian uint64.
func ReadU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapShortRead(err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteBytes writes a u64 length prefix followed by the raw bytes.
func WriteBytes(w io.Writer, b []byte) error {
	if err := WriteU64(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadBytes reads a u64-length-prefixed byte string. maxLen caps the
// accepted length; a decoded length beyond it yields ErrInvalidLength
// without attempting the allocation.
func ReadBytes(r io.Reader, maxLen uint64) ([]byte, error) {
	n, err := ReadU64(r)
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, sanderrors.ErrInvalidLength
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, wrapShortRead(err)
	}
	return buf, nil
}

func wrapShortRead(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return sanderrors.ErrTruncated
	}
	return err
}
