package sstable

import (
	"bytes"
	"io"
	"sort"

	"github.com/sanddb/sanddb/internal/binfmt"
	"github.com/sanddb/sanddb/internal/sanderrors"
)

// maxChunkBytes bounds how large a single chunk's encoded length is
// allowed to claim to be, so a corrupt length field can't trigger a huge
// allocation before the CRC-equivalent integrity check (size comparison)
// has a chance to reject it.
const maxChunkBytes = 256 << 20

// Reader opens an existing SSTable file for point lookups and range
// scans. It keeps the chunk directory in memory (one entry per chunk,
// small relative to the data) but never keeps chunk payloads around
// beyond the call that decoded them, unless wrapped by CachedReader.
type Reader struct {
	ra   io.ReaderAt
	size int64

	Header Header
	dir    []DirectoryEntry
	dirPos int64
}

// Open reads the header, footer, and chunk directory from ra (a file of
// the given total size) and returns a ready Reader.
func Open(ra io.ReaderAt, size int64) (*Reader, error) {
	if size < HeaderSize+FooterSize {
		return nil, sanderrors.ErrTruncated
	}

	hdr := make([]byte, HeaderSize)
	if _, err := ra.ReadAt(hdr, 0); err != nil {
		return nil, wrapReadErr(err)
	}
	header, err := decodeHeader(hdr)
	if err != nil {
		return nil, err
	}

	ftr := make([]byte, FooterSize)
	if _, err := ra.ReadAt(ftr, size-FooterSize); err != nil {
		return nil, wrapReadErr(err)
	}
	footer := decodeFooter(ftr)

	if footer.ChunkDirPos < HeaderSize || int64(footer.ChunkDirPos) > size-FooterSize {
		return nil, sanderrors.ErrCorruptDirectory
	}

	dirBytes := make([]byte, size-FooterSize-int64(footer.ChunkDirPos))
	if _, err := ra.ReadAt(dirBytes, int64(footer.ChunkDirPos)); err != nil {
		return nil, wrapReadErr(err)
	}
	dir, err := decodeDirectory(dirBytes, footer.ChunkCount)
	if err != nil {
		return nil, err
	}

	return &Reader{ra: ra, size: size, Header: header, dir: dir, dirPos: int64(footer.ChunkDirPos)}, nil
}

func decodeHeader(b []byte) (Header, error) {
	magic := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if magic != Magic {
		return Header{}, sanderrors.ErrBadMagic
	}
	version := b[4]
	if version != Version1 && version != Version2 {
		return Header{}, sanderrors.ErrUnsupportedVersion
	}
	return Header{
		Magic:       magic,
		Version:     version,
		PageSize:    readU16FromBytes(b[5:7]),
		Compression: Compression(b[7]),
	}, nil
}

func decodeFooter(b []byte) Footer {
	var f Footer
	f.ChunkDirPos = uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
	f.ChunkCount = uint32(b[8])<<24 | uint32(b[9])<<16 | uint32(b[10])<<8 | uint32(b[11])
	return f
}

func decodeDirectory(b []byte, count uint32) ([]DirectoryEntry, error) {
	r := bytes.NewReader(b)
	dir := make([]DirectoryEntry, 0, count)
	var prevMax []byte
	for i := uint32(0); i < count; i++ {
		offset, err := binfmt.ReadU64(r)
		if err != nil {
			return nil, sanderrors.ErrCorruptDirectory
		}
		minKey, err := binfmt.ReadBytes(r, maxChunkBytes)
		if err != nil {
			return nil, sanderrors.ErrCorruptDirectory
		}
		maxKey, err := binfmt.ReadBytes(r, maxChunkBytes)
		if err != nil {
			return nil, sanderrors.ErrCorruptDirectory
		}
		if bytes.Compare(minKey, maxKey) > 0 {
			return nil, sanderrors.ErrCorruptDirectory
		}
		if prevMax != nil && bytes.Compare(minKey, prevMax) <= 0 {
			return nil, sanderrors.ErrCorruptDirectory
		}
		dir = append(dir, DirectoryEntry{Offset: offset, MinKey: minKey, MaxKey: maxKey})
		prevMax = maxKey
	}
	return dir, nil
}

// MinKey and MaxKey report the inclusive key range covered by the whole
// table. Panics if the table has no chunks (a table finished without any
// entries).
func (r *Reader) MinKey() []byte { return r.dir[0].MinKey }
func (r *Reader) MaxKey() []byte { return r.dir[len(r.dir)-1].MaxKey }

// ChunkCount reports the number of chunks in the chunk directory.
func (r *Reader) ChunkCount() int { return len(r.dir) }

// Get performs a point lookup: binary search over the chunk directory to
// find the (at most one) chunk whose range could hold key, then a binary
// search of that chunk's decoded entries. Returns sanderrors.ErrNotFound if
// the key isn't present, including when it falls in a gap between
// non-overlapping chunks.
func (r *Reader) Get(key []byte) (Entry, error) {
	idx := r.findChunk(key)
	if idx < 0 {
		return Entry{}, sanderrors.ErrNotFound
	}
	entries, err := r.readChunk(idx)
	if err != nil {
		return Entry{}, err
	}
	return searchEntries(entries, key)
}

// findChunk binary-searches the directory for the chunk that could hold
// key, returning -1 if no chunk's range covers it.
func (r *Reader) findChunk(key []byte) int {
	idx := sort.Search(len(r.dir), func(i int) bool {
		return bytes.Compare(r.dir[i].MaxKey, key) >= 0
	})
	if idx == len(r.dir) || bytes.Compare(r.dir[idx].MinKey, key) > 0 {
		return -1
	}
	return idx
}

// searchEntries binary-searches a chunk's decoded, sorted entries for key.
func searchEntries(entries []Entry, key []byte) (Entry, error) {
	pos := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
	if pos == len(entries) || !bytes.Equal(entries[pos].Key, key) {
		return Entry{}, sanderrors.ErrNotFound
	}
	return entries[pos], nil
}

// CandidateChunks returns the indices of chunks whose key range
// intersects [start, end). A nil end means "to the end of the table".
func (r *Reader) CandidateChunks(start, end []byte) []int {
	lo := 0
	if start != nil {
		lo = sort.Search(len(r.dir), func(i int) bool {
			return bytes.Compare(r.dir[i].MaxKey, start) >= 0
		})
	}
	hi := len(r.dir)
	if end != nil {
		hi = sort.Search(len(r.dir), func(i int) bool {
			return bytes.Compare(r.dir[i].MinKey, end) >= 0
		})
	}
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

// ReadChunk decodes chunk i's entries. Exported for compaction and range
// scans, which want to stream chunk-by-chunk without going through Get.
func (r *Reader) ReadChunk(i int) ([]Entry, error) {
	return r.readChunk(i)
}

func (r *Reader) readChunk(i int) ([]Entry, error) {
	start := int64(r.dir[i].Offset)
	var end int64
	if i+1 < len(r.dir) {
		end = int64(r.dir[i+1].Offset)
	} else {
		end = r.dirPos
	}
	if end <= start {
		return nil, sanderrors.ErrCorruptChunk
	}

	raw := make([]byte, end-start)
	if _, err := r.ra.ReadAt(raw, start); err != nil {
		return nil, wrapReadErr(err)
	}
	return decodeChunk(raw, r.Header.Compression, r.Header.Version)
}

func decodeChunk(raw []byte, comp Compression, version uint8) ([]Entry, error) {
	if len(raw) < ChunkHeaderSize {
		return nil, sanderrors.ErrCorruptChunk
	}
	hdrReader := bytes.NewReader(raw[:ChunkHeaderSize])
	itemCount, err := binfmt.ReadU32(hdrReader)
	if err != nil {
		return nil, sanderrors.ErrCorruptChunk
	}
	compressedSize, err := binfmt.ReadU64(hdrReader)
	if err != nil {
		return nil, sanderrors.ErrCorruptChunk
	}
	uncompressedSize, err := binfmt.ReadU64(hdrReader)
	if err != nil {
		return nil, sanderrors.ErrCorruptChunk
	}
	if compressedSize > maxChunkBytes || uncompressedSize > maxChunkBytes {
		return nil, sanderrors.ErrCorruptChunk
	}

	payload := raw[ChunkHeaderSize:]
	if uint64(len(payload)) != compressedSize {
		return nil, sanderrors.ErrCorruptChunk
	}

	body, err := decompressPayload(comp, payload, int(uncompressedSize))
	if err != nil {
		return nil, sanderrors.ErrCorruptChunk
	}
	if uint64(len(body)) != uncompressedSize {
		return nil, sanderrors.ErrCorruptChunk
	}

	r := bytes.NewReader(body)
	entries := make([]Entry, 0, itemCount)
	for i := uint32(0); i < itemCount; i++ {
		e, err := decodeEntry(r, version)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeEntry(r *bytes.Reader, version uint8) (Entry, error) {
	var kind Kind
	if version >= Version2 {
		k, err := binfmt.ReadU8(r)
		if err != nil {
			return Entry{}, sanderrors.ErrCorruptChunk
		}
		kind = Kind(k)
	}
	key, err := binfmt.ReadBytes(r, maxChunkBytes)
	if err != nil {
		return Entry{}, sanderrors.ErrCorruptChunk
	}
	value, err := binfmt.ReadBytes(r, maxChunkBytes)
	if err != nil {
		return Entry{}, sanderrors.ErrCorruptChunk
	}
	return Entry{Key: key, Value: value, Kind: kind}, nil
}

func wrapReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return sanderrors.ErrTruncated
	}
	return err
}
