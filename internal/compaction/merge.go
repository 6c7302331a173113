package compaction

import (
	"bytes"
	"container/heap"

	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/sanddb/sanddb/internal/sstable"
)

// Source is one input to a merge: a sequence of entries already in
// ascending key order (as read from one SSTable, or from a sealed
// memtable), tagged with a recency Rank. Level is the source's SSTable
// level, or 0 for a source that is not subject to the disjoint-level
// invariant (level 0 tables, or a memtable). A lower Level is newer than
// a higher one; within one Level, a lower Rank is newer. When two
// sources disagree about a key's value, the newest entry wins and every
// other source's entry for that key is discarded.
type Source struct {
	Rank    int
	Level   int
	Entries []sstable.Entry
}

// heapItem is one source's current head entry, ready to be compared
// against every other source's head.
type heapItem struct {
	entry     sstable.Entry
	rank      int
	level     int
	sourceIdx int
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].entry.Key, h[j].entry.Key); c != 0 {
		return c < 0
	}
	if h[i].level != h[j].level {
		return h[i].level < h[j].level
	}
	return h[i].rank < h[j].rank
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergeSources performs a k-way merge of sources, returning one entry
// per distinct key in ascending order. When multiple sources hold the
// same key, the entry from the newest source (lowest Level, then lowest
// Rank) wins and every other source's entry for that key is dropped — the newest-wins
// dedup original_source/src/lsm_tree.rs implements as
// merge_sorted_uniq over a BinaryHeap<Reverse<...>>, reimplemented here
// with container/heap.
//
// If dropTombstones is true, a winning entry that is a tombstone is
// omitted from the output entirely rather than carried forward; callers
// set this only when the merge's target level is the deepest level
// holding any data, since a tombstone must otherwise keep shadowing a
// stale value that might still exist further down.
//
// A duplicate key contributed by two sources with the same Level >= 1
// violates the invariant that each level L>=1 is disjoint and can only
// mean the on-disk level structure is corrupt; MergeSources reports that
// as ErrCorruptLevel rather than silently picking a winner. The same key
// at two different levels is an ordinary newer/older pair. Level 0
// sources are exempt, since L0 tables are expected to overlap.
func MergeSources(sources []Source, dropTombstones bool) ([]sstable.Entry, error) {
	cursors := make([]int, len(sources))
	h := make(mergeHeap, 0, len(sources))
	for i, s := range sources {
		if len(s.Entries) > 0 {
			h = append(h, heapItem{entry: s.Entries[0], rank: s.Rank, level: s.Level, sourceIdx: i})
			cursors[i] = 1
		}
	}
	heap.Init(&h)

	var out []sstable.Entry
	var lastKey []byte
	var keyLevels []int // levels >= 1 that already contributed lastKey
	haveLast := false

	for h.Len() > 0 {
		top := heap.Pop(&h).(heapItem)

		isDuplicate := haveLast && bytes.Equal(top.entry.Key, lastKey)
		if !isDuplicate {
			keyLevels = keyLevels[:0]
		}
		if top.level >= 1 {
			for _, lvl := range keyLevels {
				if lvl == top.level {
					return nil, sanderrors.ErrCorruptLevel
				}
			}
			keyLevels = append(keyLevels, top.level)
		}
		if !isDuplicate {
			if !(dropTombstones && top.entry.IsTombstone()) {
				out = append(out, top.entry)
			}
			lastKey = top.entry.Key
			haveLast = true
		}

		src := &sources[top.sourceIdx]
		if cursors[top.sourceIdx] < len(src.Entries) {
			next := src.Entries[cursors[top.sourceIdx]]
			cursors[top.sourceIdx]++
			heap.Push(&h, heapItem{entry: next, rank: top.rank, level: top.level, sourceIdx: top.sourceIdx})
		}
	}
	return out, nil
}
