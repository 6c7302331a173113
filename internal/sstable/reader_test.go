package sstable

import (
	"bytes"
	"testing"

	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllCompressionCodecs(t *testing.T) {
	entries := sampleEntries(50)
	for _, comp := range []Compression{CompressionNone, CompressionFast, CompressionBest} {
		t.Run(comp.String(), func(t *testing.T) {
			opts := WriterOptions{PageSize: 256, Compression: comp}
			data := buildTable(t, opts, entries)

			r, err := Open(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			require.Equal(t, comp, r.Header.Compression)
			require.Equal(t, CurrentVersion, r.Header.Version)

			for _, e := range entries {
				got, err := r.Get(e.Key)
				require.NoError(t, err)
				require.Equal(t, e.Value, got.Value)
				require.False(t, got.IsTombstone())
			}

			_, err = r.Get([]byte("does-not-exist"))
			require.ErrorIs(t, err, sanderrors.ErrNotFound)
		})
	}
}

func TestRoundTripTombstones(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Kind: KindTombstone},
		{Key: []byte("c"), Value: []byte("3")},
	}
	data := buildTable(t, DefaultWriterOptions(), entries)

	r, err := Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	got, err := r.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, got.IsTombstone())
	require.Empty(t, got.Value)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := buildTable(t, DefaultWriterOptions(), sampleEntries(3))
	corrupt := append([]byte(nil), data...)
	corrupt[0] ^= 0xFF

	_, err := Open(bytes.NewReader(corrupt), int64(len(corrupt)))
	require.ErrorIs(t, err, sanderrors.ErrBadMagic)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	data := buildTable(t, DefaultWriterOptions(), sampleEntries(3))
	truncated := data[:len(data)-4]

	_, err := Open(bytes.NewReader(truncated), int64(len(truncated)))
	require.Error(t, err)
}

func TestOpenRejectsTinyFile(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte{1, 2, 3}), 3)
	require.ErrorIs(t, err, sanderrors.ErrTruncated)
}

func TestGetReturnsNotFoundInChunkGap(t *testing.T) {
	opts := WriterOptions{PageSize: 24, Compression: CompressionNone}
	entries := sampleEntries(20)
	data := buildTable(t, opts, entries)

	r, err := Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Greater(t, r.ChunkCount(), 1)

	_, err = r.Get([]byte("key-0005a"))
	require.ErrorIs(t, err, sanderrors.ErrNotFound)
}

func TestCandidateChunksNarrowsRange(t *testing.T) {
	opts := WriterOptions{PageSize: 24, Compression: CompressionNone}
	entries := sampleEntries(40)
	data := buildTable(t, opts, entries)

	r, err := Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	all := r.CandidateChunks(nil, nil)
	require.Equal(t, r.ChunkCount(), len(all))

	narrow := r.CandidateChunks([]byte("key-0005"), []byte("key-0006"))
	require.Less(t, len(narrow), len(all))
	require.NotEmpty(t, narrow)
}
