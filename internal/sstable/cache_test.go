package sstable

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCachedReaderHitsAfterFirstRead(t *testing.T) {
	opts := WriterOptions{PageSize: 24, Compression: CompressionNone}
	entries := sampleEntries(30)
	data := buildTable(t, opts, entries)

	r, err := Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	cache := NewChunkCache(r.ChunkCount())
	cr := NewCachedReader(r, cache, 1)

	for _, e := range entries {
		_, err := cr.Get(e.Key)
		require.NoError(t, err)
	}
	firstPassMisses := cache.Misses

	for _, e := range entries {
		_, err := cr.Get(e.Key)
		require.NoError(t, err)
	}
	require.Equal(t, firstPassMisses, cache.Misses, "second pass should be served entirely from cache")
	require.Greater(t, cache.Hits, uint64(0))
}

func TestChunkCacheEvictsBeyondCapacity(t *testing.T) {
	cache := NewChunkCache(2)
	cache.put(1, 0, []Entry{{Key: []byte("a")}})
	cache.put(1, 1, []Entry{{Key: []byte("b")}})
	cache.put(1, 2, []Entry{{Key: []byte("c")}})

	_, ok := cache.get(1, 0)
	require.False(t, ok, "oldest entry should have been evicted")

	_, ok = cache.get(1, 2)
	require.True(t, ok)
}

func TestChunkCacheKeysAreIsolatedByTableID(t *testing.T) {
	cache := NewChunkCache(8)
	cache.put(1, 0, []Entry{{Key: []byte("table-1")}})
	cache.put(2, 0, []Entry{{Key: []byte("table-2")}})

	e1, ok := cache.get(1, 0)
	require.True(t, ok)
	require.Equal(t, []byte("table-1"), e1[0].Key)

	e2, ok := cache.get(2, 0)
	require.True(t, ok)
	require.Equal(t, []byte("table-2"), e2[0].Key)
}
