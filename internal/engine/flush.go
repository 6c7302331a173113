package engine

import (
	"context"
	"os"

	"github.com/sanddb/sanddb/internal/logging"
	"github.com/sanddb/sanddb/internal/manifest"
	"github.com/sanddb/sanddb/internal/memtable"
	"github.com/sanddb/sanddb/internal/sstable"
)

// runFlushWorker drains flushCh, writing each sealed memtable to a new
// level-0 SSTable, until ctx is cancelled. Grounded on the teacher's
// pkg/lsm/lsm_workers.go flushWorker, which likewise never closes its
// work channel and instead selects on a stopChan — flushCh here carries
// real work items rather than bare triggers, so runFlushWorker drains
// whatever Close already queued before it returns.
func (e *Engine) runFlushWorker(ctx context.Context) error {
	for {
		select {
		case mt := <-e.flushCh:
			if err := e.flushMemtable(mt); err != nil {
				return err
			}
		case <-ctx.Done():
			return e.drainFlushQueue()
		}
	}
}

// drainFlushQueue processes whatever Close placed on flushCh before
// cancelling groupCtx, so the final memtable is durably flushed even
// though the worker's select could otherwise race ctx.Done() against a
// still-buffered send.
func (e *Engine) drainFlushQueue() error {
	for {
		select {
		case mt := <-e.flushCh:
			if err := e.flushMemtable(mt); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (e *Engine) flushMemtable(mt *memtable.Memtable) error {
	if err := e.flushOne(mt); err != nil {
		e.logger.Error("flush failed", logging.F("error", err.Error()))
		return err
	}
	e.flushSem.Release(1)
	e.metrics.FlushQueueLen.Dec()
	e.triggerCompactionCheck()
	return nil
}

func (e *Engine) flushOne(mt *memtable.Memtable) error {
	entries := mt.Entries()
	if len(entries) == 0 {
		e.removeSealed(mt)
		return nil
	}

	id, err := e.log.AllocateID()
	if err != nil {
		return err
	}
	path := sstablePath(e.opts.DataDir, id)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := sstable.NewWriter(f, sstable.WriterOptions{
		PageSize:    e.opts.PageSize,
		Compression: compressionFromConfig(e.opts.Compression),
	})
	if err != nil {
		f.Close()
		return err
	}
	for _, ent := range entries {
		if err := w.Add(ent); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := w.Finish(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	meta := manifest.TableMeta{ID: id, Level: 0, MinKey: entries[0].Key, MaxKey: entries[len(entries)-1].Key}
	if err := e.log.Install([]manifest.TableMeta{meta}, nil); err != nil {
		return err
	}

	handle, err := openTableHandle(e.opts.DataDir, meta, e.cache)
	if err != nil {
		return err
	}

	e.levelsWriteMu.Lock()
	newLevels := e.levels.load().withFlushedTable(handle)
	e.levels.store(newLevels)
	e.levelsWriteMu.Unlock()
	e.updateLevelMetrics(newLevels)

	e.metrics.Flushes.Inc()
	var bytesWritten uint64
	for _, ent := range entries {
		bytesWritten += uint64(len(ent.Key) + len(ent.Value))
	}
	e.metrics.FlushBytes.Add(float64(bytesWritten))

	e.removeSealed(mt)
	return nil
}

func (e *Engine) removeSealed(mt *memtable.Memtable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sealed) > 0 && e.sealed[0] == mt {
		e.sealed = e.sealed[1:]
	}
}
