// Package engine ties the memtable, manifest, SSTable, and compaction
// packages together into SandDB's top-level key/value store: Open,
// Close, Put, Get, Delete, and the background flush and compaction
// workers that keep the on-disk level structure bounded.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sanddb/sanddb/internal/compaction"
	"github.com/sanddb/sanddb/internal/config"
	"github.com/sanddb/sanddb/internal/logging"
	"github.com/sanddb/sanddb/internal/manifest"
	"github.com/sanddb/sanddb/internal/memtable"
	"github.com/sanddb/sanddb/internal/metrics"
	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/sanddb/sanddb/internal/sstable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Engine is SandDB's embedded storage engine. One Engine owns one data
// directory; opening the same directory twice concurrently fails with
// ErrAlreadyOpen via the manifest's advisory lock.
type Engine struct {
	opts    config.Options
	comp    compaction.Options
	log     *manifest.Log
	cache   *sstable.ChunkCache
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu     sync.Mutex
	active *memtable.Memtable
	sealed []*memtable.Memtable
	closed bool

	levels        atomicLevelSet
	levelsWriteMu sync.Mutex

	flushSem  *semaphore.Weighted
	flushCh   chan *memtable.Memtable
	compactCh chan struct{}

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc
}

// Open prepares opts.DataDir (creating it if necessary), opens the
// manifest and replays it, opens every live SSTable, and starts the
// flush and compaction background workers.
func Open(opts config.Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, err
	}

	mlog, err := manifest.Open(opts.DataDir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	e := &Engine{
		opts:      opts,
		comp:      compactionOptionsFromConfig(opts),
		log:       mlog,
		cache:     sstable.NewChunkCache(opts.ChunkCacheSize),
		metrics:   metrics.New(),
		logger:    logging.Default().With(logging.F("component", "engine")),
		active:    memtable.New(),
		flushSem:  semaphore.NewWeighted(int64(opts.FlushQueueDepth)),
		flushCh:   make(chan *memtable.Memtable, opts.FlushQueueDepth),
		compactCh: make(chan struct{}, 1),
		group:     group,
		groupCtx:  groupCtx,
		cancel:    cancel,
	}

	ls := emptyLevelSet(opts.MaxLevels)
	for _, meta := range mlog.LiveTables() {
		handle, err := openTableHandle(opts.DataDir, meta, e.cache)
		if err != nil {
			mlog.Close()
			return nil, err
		}
		if meta.Level >= len(ls.levels) {
			meta.Level = len(ls.levels) - 1
		}
		ls.levels[meta.Level] = append(ls.levels[meta.Level], handle)
	}
	sortInitialLevels(ls)
	e.levels.store(ls)

	group.Go(func() error { return e.runFlushWorker(groupCtx) })
	group.Go(func() error { return e.runCompactionWorker(groupCtx) })

	return e, nil
}

func compactionOptionsFromConfig(opts config.Options) compaction.Options {
	return compaction.Options{
		L0TriggerCount:      opts.L0TriggerCount,
		LevelSizeMultiplier: opts.LevelSizeMultiplier,
		L1TargetBytes:       opts.L1TargetBytes,
		MaxLevels:           opts.MaxLevels,
	}
}

func compressionFromConfig(name string) sstable.Compression {
	switch name {
	case "zstd":
		return sstable.CompressionBest
	case "none":
		return sstable.CompressionNone
	default:
		return sstable.CompressionFast
	}
}

func sortInitialLevels(ls *levelSet) {
	for lvl := range ls.levels {
		if lvl == 0 {
			continue
		}
		h := ls.levels[lvl]
		for i := 1; i < len(h); i++ {
			for j := i; j > 0 && bytes.Compare(h[j-1].meta.MinKey, h[j].meta.MinKey) > 0; j-- {
				h[j-1], h[j] = h[j], h[j-1]
			}
		}
	}
	l0 := ls.levels[0]
	for i := 1; i < len(l0); i++ {
		for j := i; j > 0 && l0[j-1].meta.ID < l0[j].meta.ID; j-- {
			l0[j-1], l0[j] = l0[j], l0[j-1]
		}
	}
}

// Put writes key=value, sealing and queuing the active memtable for
// flush if it has grown past MemtableFlushBytes.
func (e *Engine) Put(key, value []byte) error {
	toFlush, err := e.applyToActive(func(m *memtable.Memtable) error { return m.Put(key, value) })
	if err != nil {
		return err
	}
	e.metrics.Puts.Inc()
	if toFlush != nil {
		return e.enqueueFlush(toFlush)
	}
	return nil
}

// Delete records a tombstone for key.
func (e *Engine) Delete(key []byte) error {
	toFlush, err := e.applyToActive(func(m *memtable.Memtable) error { return m.Delete(key) })
	if err != nil {
		return err
	}
	e.metrics.Deletes.Inc()
	if toFlush != nil {
		return e.enqueueFlush(toFlush)
	}
	return nil
}

func (e *Engine) applyToActive(mutate func(*memtable.Memtable) error) (*memtable.Memtable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, sanderrors.ErrClosed
	}
	if err := mutate(e.active); err != nil {
		return nil, err
	}
	e.metrics.MemtableBytes.Set(float64(e.active.SizeBytes()))
	if !e.active.IsFull(e.opts.MemtableFlushBytes) {
		return nil, nil
	}
	toFlush := e.active
	e.active = memtable.New()
	e.sealed = append(e.sealed, toFlush)
	e.metrics.MemtableBytes.Set(0)
	return toFlush, nil
}

func (e *Engine) enqueueFlush(mt *memtable.Memtable) error {
	if e.opts.NonBlockingBackpressure {
		if !e.flushSem.TryAcquire(1) {
			return sanderrors.ErrBackpressure
		}
	} else if err := e.flushSem.Acquire(e.groupCtx, 1); err != nil {
		return err
	}
	mt.Seal()
	e.metrics.FlushQueueLen.Inc()
	select {
	case e.flushCh <- mt:
		return nil
	case <-e.groupCtx.Done():
		e.flushSem.Release(1)
		return e.groupCtx.Err()
	}
}

// Get looks up key across the active memtable, the sealed-but-not-yet-
// flushed queue (newest first), level 0 (newest first), and levels 1..N
// (at most one table per level is read: the first whose range covers
// key, since those levels are disjoint by invariant; tables are checked
// one by one). The first tombstone or value encountered, at whichever
// layer is newest, determines the result.
func (e *Engine) Get(key []byte) ([]byte, error) {
	e.metrics.Gets.Inc()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, sanderrors.ErrClosed
	}
	if entry, found := e.active.Get(key); found {
		e.mu.Unlock()
		return resolveEntry(entry, e.metrics)
	}
	for i := len(e.sealed) - 1; i >= 0; i-- {
		if entry, found := e.sealed[i].Get(key); found {
			e.mu.Unlock()
			return resolveEntry(entry, e.metrics)
		}
	}
	e.mu.Unlock()

	ls := e.levels.load()
	for _, h := range ls.levels[0] {
		h.retain()
		entry, err := h.reader.Get(key)
		h.release()
		if err == nil {
			return resolveEntry(entry, e.metrics)
		}
		if err != sanderrors.ErrNotFound {
			return nil, err
		}
	}

	for lvl := 1; lvl < len(ls.levels); lvl++ {
		h := findInDisjointLevel(ls.levels[lvl], key)
		if h == nil {
			continue
		}
		h.retain()
		entry, err := h.reader.Get(key)
		h.release()
		if err == nil {
			return resolveEntry(entry, e.metrics)
		}
		if err != sanderrors.ErrNotFound {
			return nil, err
		}
	}

	e.metrics.GetMisses.Inc()
	return nil, sanderrors.ErrNotFound
}

func findInDisjointLevel(handles []*tableHandle, key []byte) *tableHandle {
	for _, h := range handles {
		if bytes.Compare(key, h.meta.MinKey) >= 0 && bytes.Compare(key, h.meta.MaxKey) <= 0 {
			return h
		}
	}
	return nil
}

func resolveEntry(entry sstable.Entry, m *metrics.Metrics) ([]byte, error) {
	if entry.IsTombstone() {
		m.GetMisses.Inc()
		return nil, sanderrors.ErrNotFound
	}
	m.GetHits.Inc()
	return entry.Value, nil
}

// Close seals and flushes the active memtable (if non-empty), waits for
// the flush and compaction workers to finish outstanding work, and
// releases the manifest lock. After Close returns, every other method
// returns ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	var final *memtable.Memtable
	if e.active.Len() > 0 {
		final = e.active
		e.sealed = append(e.sealed, final)
	}
	e.mu.Unlock()

	if final != nil {
		if err := e.enqueueFlush(final); err != nil {
			e.cancel()
			e.group.Wait()
			e.log.Close()
			return err
		}
	}

	// flushCh is never closed: a Put/Delete that read closed==false just
	// before this point may still be sending on it, and closing a channel
	// out from under a concurrent sender panics. Cancelling groupCtx and
	// letting runFlushWorker drain the queue itself, like the teacher's
	// stopChan pattern, avoids that race entirely.
	e.cancel()
	waitErr := e.group.Wait()
	closeErr := e.log.Close()
	if waitErr != nil {
		return waitErr
	}
	return closeErr
}

// updateLevelMetrics refreshes the per-level table-count and byte-size
// gauges from a freshly published levelSet snapshot.
func (e *Engine) updateLevelMetrics(ls *levelSet) {
	counts := ls.levelCounts()
	sizes := ls.levelBytes()
	for lvl := range ls.levels {
		label := fmt.Sprintf("%d", lvl)
		e.metrics.LevelTables.WithLabelValues(label).Set(float64(counts[lvl]))
		e.metrics.LevelBytes.WithLabelValues(label).Set(float64(sizes[lvl]))
	}
}

// Metrics returns the engine's Prometheus collectors. Callers decide
// whether and where to register them (engine.Open never registers
// against the global default registry itself, since opening the same
// process's engine twice in tests would then collide).
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// triggerCompactionCheck asks the compaction worker to re-evaluate
// PickLevel soon, without blocking if a check is already pending.
func (e *Engine) triggerCompactionCheck() {
	select {
	case e.compactCh <- struct{}{}:
	default:
	}
}

// compactionCheckInterval bounds how long a newly-crossed compaction
// trigger can go unnoticed if its signal was coalesced away by
// triggerCompactionCheck's non-blocking send.
const compactionCheckInterval = 2 * time.Second
