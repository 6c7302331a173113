package compaction

import (
	"testing"

	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/sanddb/sanddb/internal/sstable"
	"github.com/stretchr/testify/require"
)

func entry(k, v string) sstable.Entry {
	return sstable.Entry{Key: []byte(k), Value: []byte(v)}
}

func tombstone(k string) sstable.Entry {
	return sstable.Entry{Key: []byte(k), Kind: sstable.KindTombstone}
}

func TestMergeSourcesDedupsDisjointSources(t *testing.T) {
	a := Source{Rank: 0, Entries: []sstable.Entry{entry("a", "1"), entry("c", "3")}}
	b := Source{Rank: 1, Entries: []sstable.Entry{entry("b", "2"), entry("d", "4")}}

	out, err := MergeSources([]Source{a, b}, false)
	require.NoError(t, err)
	require.Len(t, out, 4)
	for i, k := range []string{"a", "b", "c", "d"} {
		require.Equal(t, k, string(out[i].Key))
	}
}

func TestMergeSourcesNewestWinsOnConflict(t *testing.T) {
	older := Source{Rank: 1, Entries: []sstable.Entry{entry("a", "old")}}
	newer := Source{Rank: 0, Entries: []sstable.Entry{entry("a", "new")}}

	out, err := MergeSources([]Source{older, newer}, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "new", string(out[0].Value))
}

func TestMergeSourcesKeepsTombstoneByDefault(t *testing.T) {
	older := Source{Rank: 1, Entries: []sstable.Entry{entry("a", "old")}}
	newer := Source{Rank: 0, Entries: []sstable.Entry{tombstone("a")}}

	out, err := MergeSources([]Source{older, newer}, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].IsTombstone())
}

func TestMergeSourcesDropsTombstoneAtBottom(t *testing.T) {
	older := Source{Rank: 1, Entries: []sstable.Entry{entry("a", "old")}}
	newer := Source{Rank: 0, Entries: []sstable.Entry{tombstone("a")}}

	out, err := MergeSources([]Source{older, newer}, true)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestMergeSourcesManyWayWithOverlap(t *testing.T) {
	sources := []Source{
		{Rank: 2, Entries: []sstable.Entry{entry("a", "v0"), entry("b", "v0")}},
		{Rank: 1, Entries: []sstable.Entry{entry("b", "v1"), entry("c", "v1")}},
		{Rank: 0, Entries: []sstable.Entry{entry("c", "v2"), entry("d", "v2")}},
	}
	out, err := MergeSources(sources, false)
	require.NoError(t, err)
	require.Len(t, out, 4)
	want := map[string]string{"a": "v0", "b": "v1", "c": "v2", "d": "v2"}
	for _, e := range out {
		require.Equal(t, want[string(e.Key)], string(e.Value))
	}
}

func TestMergeSourcesAllowsL0OverlapOnSameKey(t *testing.T) {
	a := Source{Rank: 1, Level: 0, Entries: []sstable.Entry{entry("a", "old")}}
	b := Source{Rank: 0, Level: 0, Entries: []sstable.Entry{entry("a", "new")}}

	out, err := MergeSources([]Source{a, b}, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "new", string(out[0].Value))
}

func TestMergeSourcesRejectsDuplicateWithinDisjointLevel(t *testing.T) {
	a := Source{Rank: 1, Level: 1, Entries: []sstable.Entry{entry("a", "one")}}
	b := Source{Rank: 0, Level: 1, Entries: []sstable.Entry{entry("a", "two")}}

	out, err := MergeSources([]Source{a, b}, false)
	require.ErrorIs(t, err, sanderrors.ErrCorruptLevel)
	require.Nil(t, out)
}
