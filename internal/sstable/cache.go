package sstable

import (
	"container/list"
	"sync"

	"github.com/sanddb/sanddb/internal/sanderrors"
)

// ChunkCache is a bounded LRU cache of decoded chunk entries, shared
// across every Reader a CachedReader wraps. Keys are (tableID, chunk
// index) pairs so one cache can sit in front of an entire level.
// Grounded on the teacher's pkg/lsm block cache and the original
// prototype's CachedSSTableReader, both of which keep hot chunk data out
// of repeated disk reads and decompression work.
type ChunkCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[chunkKey]*list.Element

	Hits   uint64
	Misses uint64
}

type chunkKey struct {
	tableID uint64
	chunk   int
}

type chunkCacheEntry struct {
	key     chunkKey
	entries []Entry
}

// NewChunkCache returns a cache holding at most capacity chunks; a
// capacity of 0 or less leaves it unbounded.
func NewChunkCache(capacity int) *ChunkCache {
	return &ChunkCache{capacity: capacity, ll: list.New(), items: make(map[chunkKey]*list.Element)}
}

func (c *ChunkCache) get(tableID uint64, chunk int) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := chunkKey{tableID, chunk}
	el, ok := c.items[key]
	if !ok {
		c.Misses++
		return nil, false
	}
	c.Hits++
	c.ll.MoveToFront(el)
	return el.Value.(*chunkCacheEntry).entries, true
}

func (c *ChunkCache) put(tableID uint64, chunk int, entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := chunkKey{tableID, chunk}
	if el, ok := c.items[key]; ok {
		el.Value.(*chunkCacheEntry).entries = entries
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&chunkCacheEntry{key: key, entries: entries})
	c.items[key] = el
	if c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*chunkCacheEntry).key)
		}
	}
}

// CachedReader wraps a Reader and a shared ChunkCache, keyed by a caller-
// assigned table ID (SandDB uses the manifest-assigned SSTable ID).
type CachedReader struct {
	*Reader
	cache   *ChunkCache
	tableID uint64
}

// NewCachedReader returns a reader whose decoded chunks flow through
// cache, keyed under tableID.
func NewCachedReader(r *Reader, cache *ChunkCache, tableID uint64) *CachedReader {
	return &CachedReader{Reader: r, cache: cache, tableID: tableID}
}

// ReadChunk overrides Reader.ReadChunk to consult the cache first.
func (cr *CachedReader) ReadChunk(i int) ([]Entry, error) {
	if entries, ok := cr.cache.get(cr.tableID, i); ok {
		return entries, nil
	}
	entries, err := cr.Reader.readChunk(i)
	if err != nil {
		return nil, err
	}
	cr.cache.put(cr.tableID, i, entries)
	return entries, nil
}

// Get re-implements Reader.Get through the cached ReadChunk rather than
// Reader's private uncached path.
func (cr *CachedReader) Get(key []byte) (Entry, error) {
	idx := cr.findChunk(key)
	if idx < 0 {
		return Entry{}, sanderrors.ErrNotFound
	}
	entries, err := cr.ReadChunk(idx)
	if err != nil {
		return Entry{}, err
	}
	return searchEntries(entries, key)
}
