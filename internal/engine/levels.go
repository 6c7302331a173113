package engine

import (
	"os"
	"sort"
	"sync/atomic"

	"github.com/sanddb/sanddb/internal/manifest"
	"github.com/sanddb/sanddb/internal/sstable"
	"golang.org/x/exp/mmap"
)

// tableHandle is one open SSTable, ref-counted so a reader in the middle
// of a Get can keep using a file that compaction has just replaced on
// disk. A handle's underlying file is only closed and removed once
// refs reaches zero and it has been marked obsolete.
type tableHandle struct {
	meta   manifest.TableMeta
	reader *sstable.CachedReader
	mapped *mmap.ReaderAt
	path   string

	refs     int64
	obsolete int32 // 0 or 1, set via atomic CompareAndSwap
}

func openTableHandle(dataDir string, meta manifest.TableMeta, cache *sstable.ChunkCache) (*tableHandle, error) {
	path := sstablePath(dataDir, meta.ID)
	r, ra, err := sstable.OpenMapped(path)
	if err != nil {
		return nil, err
	}
	return &tableHandle{
		meta:   meta,
		reader: sstable.NewCachedReader(r, cache, meta.ID),
		mapped: ra,
		path:   path,
		refs:   1, // the levelSet itself holds one reference
	}, nil
}

// retain adds one reference; callers must release() exactly once for
// every successful retain().
func (h *tableHandle) retain() { atomic.AddInt64(&h.refs, 1) }

// release drops one reference. When it was the last reference to a
// table already marked obsolete, the backing file is closed and removed
// from disk.
func (h *tableHandle) release() error {
	if atomic.AddInt64(&h.refs, -1) > 0 {
		return nil
	}
	if atomic.LoadInt32(&h.obsolete) == 0 {
		return nil
	}
	if err := h.mapped.Close(); err != nil {
		return err
	}
	return os.Remove(h.path)
}

// markObsolete records that this table no longer belongs to the live
// level set; its file is removed once the last outstanding reader
// releases it.
func (h *tableHandle) markObsolete() {
	atomic.StoreInt32(&h.obsolete, 1)
}

// levelSet is an immutable snapshot of every SSTable the engine knows
// about, grouped by level. Level 0 entries may have overlapping key
// ranges and are kept newest-first (highest ID first); every other
// level's entries are disjoint and kept sorted by MinKey ascending.
// Engine publishes a new levelSet via atomic.Pointer on every flush and
// compaction, which is the linearization point readers observe a
// consistent level structure through without holding any lock.
type levelSet struct {
	levels [][]*tableHandle
}

func emptyLevelSet(maxLevels int) *levelSet {
	return &levelSet{levels: make([][]*tableHandle, maxLevels)}
}

// withFlushedTable returns a copy of ls with handle appended to level 0,
// newest-first. Used by the flush path, which only ever adds to L0.
func (ls *levelSet) withFlushedTable(handle *tableHandle) *levelSet {
	next := ls.clone()
	l0 := append([]*tableHandle{handle}, next.levels[0]...)
	next.levels[0] = l0
	return next
}

// withCompaction returns a copy of ls with every handle in removedIDs
// dropped from its level and every handle in added appended to
// targetLevel (re-sorted by MinKey if targetLevel > 0).
func (ls *levelSet) withCompaction(removed map[uint64]bool, added []*tableHandle, targetLevel int) *levelSet {
	next := ls.clone()
	for lvl := range next.levels {
		filtered := next.levels[lvl][:0:0]
		for _, h := range next.levels[lvl] {
			if removed[h.meta.ID] {
				continue
			}
			filtered = append(filtered, h)
		}
		next.levels[lvl] = filtered
	}
	next.levels[targetLevel] = append(next.levels[targetLevel], added...)
	if targetLevel > 0 {
		sort.Slice(next.levels[targetLevel], func(i, j int) bool {
			return string(next.levels[targetLevel][i].meta.MinKey) < string(next.levels[targetLevel][j].meta.MinKey)
		})
	} else {
		sort.Slice(next.levels[targetLevel], func(i, j int) bool {
			return next.levels[targetLevel][i].meta.ID > next.levels[targetLevel][j].meta.ID
		})
	}
	return next
}

func (ls *levelSet) clone() *levelSet {
	next := &levelSet{levels: make([][]*tableHandle, len(ls.levels))}
	for i, l := range ls.levels {
		next.levels[i] = append([]*tableHandle(nil), l...)
	}
	return next
}

// levelCounts and levelBytes feed compaction.PickLevel; byte size
// is estimated from each file's length on disk via os.Stat rather than
// tracked separately, since SSTables are immutable once written.
func (ls *levelSet) levelCounts() []int {
	out := make([]int, len(ls.levels))
	for i, l := range ls.levels {
		out[i] = len(l)
	}
	return out
}

func (ls *levelSet) levelBytes() []uint64 {
	out := make([]uint64, len(ls.levels))
	for i, l := range ls.levels {
		var total uint64
		for _, h := range l {
			if st, err := os.Stat(h.path); err == nil {
				total += uint64(st.Size())
			}
		}
		out[i] = total
	}
	return out
}

// atomicLevelSet is the atomic.Pointer[levelSet] every reader consults.
type atomicLevelSet struct {
	p atomic.Pointer[levelSet]
}

func (a *atomicLevelSet) load() *levelSet  { return a.p.Load() }
func (a *atomicLevelSet) store(ls *levelSet) { a.p.Store(ls) }
