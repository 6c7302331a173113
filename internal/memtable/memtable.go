// Package memtable holds the engine's mutable, in-memory write buffer:
// a sorted map of the most recently written keys, flushed to an SSTable
// once it grows past a configured size and is sealed.
package memtable

import (
	"bytes"
	"sort"
	"sync"

	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/sanddb/sanddb/internal/sstable"
)

// record is the stored form of one key's most recent write.
type record struct {
	value []byte
	kind  sstable.Kind
}

// Memtable is a sorted in-memory buffer of writes, safe for concurrent
// Put/Get/Delete from multiple goroutines. Grounded on the teacher's
// pkg/lsm/memtable.go (map + keys slice + lazy sort), adapted here to
// byte-slice keys and an explicit tombstone kind rather than a deleted
// bool, so memtable entries serialize through the same sstable.Entry
// shape the SSTable writer consumes.
type Memtable struct {
	mu     sync.RWMutex
	data   map[string]record
	keys   []string // valid only when sorted is true
	sorted bool

	sizeBytes uint64
	sealed    bool
}

// New returns an empty, writable Memtable.
func New() *Memtable {
	return &Memtable{data: make(map[string]record)}
}

// Put inserts or overwrites key with value. Returns ErrClosed if the
// memtable has been sealed.
func (m *Memtable) Put(key, value []byte) error {
	return m.store(key, record{value: append([]byte(nil), value...), kind: sstable.KindValue})
}

// Delete records a tombstone for key, shadowing any earlier value until
// compaction drops it for good.
func (m *Memtable) Delete(key []byte) error {
	return m.store(key, record{kind: sstable.KindTombstone})
}

func (m *Memtable) store(key []byte, rec record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return sanderrors.ErrClosed
	}

	k := string(key)
	old, existed := m.data[k]
	m.data[k] = rec
	m.sizeBytes += entrySize(key, rec) - entrySizeIfExists(key, old, existed)
	if !existed {
		m.sorted = false
	}
	return nil
}

func entrySize(key []byte, r record) uint64 {
	return uint64(len(key) + len(r.value) + 1)
}

func entrySizeIfExists(key []byte, r record, existed bool) uint64 {
	if !existed {
		return 0
	}
	return entrySize(key, r)
}

// Get looks up key. found is false if the key was never written to this
// memtable; a tombstone is a found result whose Kind is KindTombstone.
func (m *Memtable) Get(key []byte) (entry sstable.Entry, found bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[string(key)]
	if !ok {
		return sstable.Entry{}, false
	}
	return sstable.Entry{Key: key, Value: rec.value, Kind: rec.kind}, true
}

// Len returns the number of distinct keys held.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// SizeBytes reports the approximate memory footprint of the buffered
// writes: key length + value length + 1 byte of kind overhead, summed
// across live entries. Used to decide when a memtable is full.
func (m *Memtable) SizeBytes() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeBytes
}

// IsFull reports whether SizeBytes has reached threshold.
func (m *Memtable) IsFull(threshold uint64) bool {
	return m.SizeBytes() >= threshold
}

// Seal marks the memtable read-only. After Seal, Put and Delete return
// ErrClosed; Get, Len, and the iteration methods remain valid. Flushing
// a sealed memtable to an SSTable never races with further mutation.
func (m *Memtable) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = true
}

// Sealed reports whether Seal has been called.
func (m *Memtable) Sealed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sealed
}

// ensureSorted rebuilds the cached key order. Caller must hold m.mu.
func (m *Memtable) ensureSorted() {
	if m.sorted {
		return
	}
	m.keys = m.keys[:0]
	for k := range m.data {
		m.keys = append(m.keys, k)
	}
	sort.Strings(m.keys)
	m.sorted = true
}

// Entries returns every entry in ascending key order, suitable for
// feeding directly into sstable.Writer.Add during a flush.
func (m *Memtable) Entries() []sstable.Entry {
	m.mu.Lock()
	m.ensureSorted()
	keys := append([]string(nil), m.keys...)
	out := make([]sstable.Entry, 0, len(keys))
	for _, k := range keys {
		rec := m.data[k]
		out = append(out, sstable.Entry{Key: []byte(k), Value: rec.value, Kind: rec.kind})
	}
	m.mu.Unlock()
	return out
}

// Scan returns entries with keys in [start, end) in ascending order. A
// nil start means "from the first key"; a nil end means "to the last
// key".
func (m *Memtable) Scan(start, end []byte) []sstable.Entry {
	all := m.Entries()
	lo := sort.Search(len(all), func(i int) bool {
		return start == nil || bytes.Compare(all[i].Key, start) >= 0
	})
	hi := sort.Search(len(all), func(i int) bool {
		return end != nil && bytes.Compare(all[i].Key, end) >= 0
	})
	if end == nil {
		hi = len(all)
	}
	if lo > hi {
		return nil
	}
	return all[lo:hi]
}
