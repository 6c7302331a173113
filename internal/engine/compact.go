package engine

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sanddb/sanddb/internal/compaction"
	"github.com/sanddb/sanddb/internal/logging"
	"github.com/sanddb/sanddb/internal/manifest"
	"github.com/sanddb/sanddb/internal/sstable"
)

// runCompactionWorker wakes on every triggerCompactionCheck signal and on
// a fallback ticker (since a burst of signals can coalesce into one and a
// newly-crossed trigger might otherwise go unnoticed), running
// compactions until PickLevel reports nothing left to do. Grounded on the
// teacher's pkg/lsm/lsm_workers.go compactionWorker, generalized from its
// single always-L0 job to leveled PickLevel/SelectInputs.
func (e *Engine) runCompactionWorker(ctx context.Context) error {
	ticker := time.NewTicker(compactionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.compactCh:
		case <-ticker.C:
		}

		for {
			did, err := e.runOneCompaction()
			if err != nil {
				e.logger.Error("compaction failed", logging.F("error", err.Error()))
				e.metrics.CompactionErrors.Inc()
				break
			}
			if !did {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

// runOneCompaction picks a level, merges its input tables with any
// overlapping tables one level down, and installs the merged result.
// Returns false if no level currently needs compaction.
func (e *Engine) runOneCompaction() (bool, error) {
	ls := e.levels.load()
	level := compaction.PickLevel(e.comp, ls.levelCounts(), ls.levelBytes())
	if level < 0 {
		return false, nil
	}

	atLevel := metasOf(ls.levels[level])
	var atNextLevel []manifest.TableMeta
	if level+1 < len(ls.levels) {
		atNextLevel = metasOf(ls.levels[level+1])
	}
	plan := compaction.SelectInputs(level, atLevel, atNextLevel)

	byID := allHandlesByID(ls)
	inputs := plan.AllInputs()
	sources := make([]compaction.Source, 0, len(inputs))
	for rank, meta := range inputs {
		h, ok := byID[meta.ID]
		if !ok {
			continue
		}
		h.retain()
		entries, err := readAllEntries(h.reader)
		h.release()
		if err != nil {
			return false, err
		}
		sources = append(sources, compaction.Source{Rank: rank, Level: meta.Level, Entries: entries})
	}

	dropTombstones := isDeepestLevel(ls, plan.TargetLevel)
	merged, err := compaction.MergeSources(sources, dropTombstones)
	if err != nil {
		return false, err
	}
	removeIDs := idsOf(inputs)

	if len(merged) == 0 {
		// Every input entry was a dropped tombstone; the job still needs
		// to remove the old tables from the manifest even though it
		// produces no output.
		if err := e.log.Install(nil, removeIDs); err != nil {
			return false, err
		}
		e.publishCompaction(nil, removeIDs, plan.TargetLevel)
		return true, nil
	}

	wopts := sstable.WriterOptions{PageSize: e.opts.PageSize, Compression: compressionFromConfig(e.opts.Compression)}

	var allocated []uint64
	opener := func() (io.WriteCloser, error) {
		id, err := e.log.AllocateID()
		if err != nil {
			return nil, err
		}
		f, err := os.Create(sstablePath(e.opts.DataDir, id))
		if err != nil {
			return nil, err
		}
		allocated = append(allocated, id)
		return syncOnCloseFile{f}, nil
	}

	outputs, err := compaction.WriteTables(merged, e.opts.MaxCompactedTableBytes, wopts, opener)
	if err != nil {
		return false, err
	}

	newMetas := make([]manifest.TableMeta, len(outputs))
	for i, out := range outputs {
		newMetas[i] = manifest.TableMeta{ID: allocated[i], Level: plan.TargetLevel, MinKey: out.MinKey, MaxKey: out.MaxKey}
	}

	if err := e.log.Install(newMetas, removeIDs); err != nil {
		return false, err
	}

	newHandles := make([]*tableHandle, len(newMetas))
	for i, meta := range newMetas {
		h, err := openTableHandle(e.opts.DataDir, meta, e.cache)
		if err != nil {
			return false, err
		}
		newHandles[i] = h
	}

	e.publishCompaction(newHandles, removeIDs, plan.TargetLevel)

	e.metrics.Compactions.Inc()
	var bytesWritten uint64
	for _, ent := range merged {
		bytesWritten += uint64(len(ent.Key) + len(ent.Value))
	}
	e.metrics.CompactionBytes.Add(float64(bytesWritten))

	return true, nil
}

// publishCompaction installs a new levelSet reflecting the compaction's
// removals and additions, then marks every removed handle obsolete and
// releases the levelSet's own reference to it so its file is deleted
// once any concurrent Get holding it finishes.
func (e *Engine) publishCompaction(added []*tableHandle, removeIDs []uint64, targetLevel int) {
	removedSet := make(map[uint64]bool, len(removeIDs))
	for _, id := range removeIDs {
		removedSet[id] = true
	}

	e.levelsWriteMu.Lock()
	old := e.levels.load()
	newLevels := old.withCompaction(removedSet, added, targetLevel)
	e.levels.store(newLevels)
	e.levelsWriteMu.Unlock()
	e.updateLevelMetrics(newLevels)

	byID := allHandlesByID(old)
	for id := range removedSet {
		if h, ok := byID[id]; ok {
			h.markObsolete()
			h.release()
		}
	}
}

// syncOnCloseFile fsyncs before closing so a new compaction output is
// durable on disk before its manifest.Install makes it visible.
type syncOnCloseFile struct {
	*os.File
}

func (f syncOnCloseFile) Close() error {
	if err := f.File.Sync(); err != nil {
		f.File.Close()
		return err
	}
	return f.File.Close()
}

func metasOf(handles []*tableHandle) []manifest.TableMeta {
	out := make([]manifest.TableMeta, len(handles))
	for i, h := range handles {
		out[i] = h.meta
	}
	return out
}

func idsOf(metas []manifest.TableMeta) []uint64 {
	out := make([]uint64, len(metas))
	for i, m := range metas {
		out[i] = m.ID
	}
	return out
}

func allHandlesByID(ls *levelSet) map[uint64]*tableHandle {
	out := make(map[uint64]*tableHandle)
	for _, lvl := range ls.levels {
		for _, h := range lvl {
			out[h.meta.ID] = h
		}
	}
	return out
}

// isDeepestLevel reports whether target is at or beyond every level that
// currently holds any table, meaning a tombstone written at target has
// nothing further down it could still need to shadow.
func isDeepestLevel(ls *levelSet, target int) bool {
	for lvl := target + 1; lvl < len(ls.levels); lvl++ {
		if len(ls.levels[lvl]) > 0 {
			return false
		}
	}
	return true
}

func readAllEntries(r *sstable.CachedReader) ([]sstable.Entry, error) {
	var out []sstable.Entry
	for i := 0; i < r.ChunkCount(); i++ {
		entries, err := r.ReadChunk(i)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}
