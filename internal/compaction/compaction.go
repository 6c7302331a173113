// Package compaction implements leveled compaction: picking which level
// needs to shrink, which tables at that level and the one below
// participate, and merging their contents into a deduplicated, newest-
// wins sorted stream ready to be rewritten as new SSTables.
package compaction

import (
	"bytes"
	"sort"

	"github.com/sanddb/sanddb/internal/manifest"
)

// Options tunes when a level is considered full enough to compact.
// Grounded on the teacher's pkg/lsm/compaction_types.go
// (LeveledCompactionStrategy: Level0FileLimit, LevelSizeRatio, MaxLevels).
type Options struct {
	L0TriggerCount      int
	LevelSizeMultiplier float64
	L1TargetBytes       uint64
	MaxLevels           int
}

// DefaultOptions matches the teacher's defaults (L0 trigger 4, 10x growth
// per level, 7 levels), scaled to a smaller L1 target appropriate for an
// embedded store rather than a long-running server process.
func DefaultOptions() Options {
	return Options{
		L0TriggerCount:      4,
		LevelSizeMultiplier: 10,
		L1TargetBytes:       8 << 20,
		MaxLevels:           7,
	}
}

// levelByteLimit returns the byte budget for level (1-indexed; level 0
// is governed by L0TriggerCount instead of a byte budget).
func levelByteLimit(opts Options, level int) uint64 {
	limit := float64(opts.L1TargetBytes)
	for i := 1; i < level; i++ {
		limit *= opts.LevelSizeMultiplier
	}
	return uint64(limit)
}

// PickLevel returns the lowest level that has crossed its compaction
// trigger, or -1 if none has. levelBytes[i] is the total on-disk size of
// level i; it is ignored for level 0, which triggers purely on table
// count.
func PickLevel(opts Options, levelCounts []int, levelBytes []uint64) int {
	if len(levelCounts) > 0 && levelCounts[0] >= opts.L0TriggerCount {
		return 0
	}
	for lvl := 1; lvl < len(levelCounts) && lvl < opts.MaxLevels; lvl++ {
		if levelBytes[lvl] > levelByteLimit(opts, lvl) {
			return lvl
		}
	}
	return -1
}

// Plan describes one compaction job: the chosen input tables at level
// and the tables at level+1 whose key ranges overlap them, all of which
// must be merged together and replaced by the job's output.
type Plan struct {
	Level       int
	TargetLevel int
	Inputs      []manifest.TableMeta
	Overlapping []manifest.TableMeta
}

// SelectInputs builds a Plan for compacting out of level, given every
// table currently at level and at level+1.
//
// Level 0 is special: its tables can overlap each other arbitrarily, so
// every L0 table participates at once. Level L>=1 tables are disjoint by
// invariant, so SandDB picks exactly one — the lowest-assigned ID, i.e.
// the oldest surviving table at that level, resolving spec.md's open
// question about level-L->L+1 selection policy in favor of the simplest
// fair strategy that still guarantees eventual progress (every table
// gets picked in ID order rather than never, which a pure largest-
// overlap heuristic can starve).
func SelectInputs(level int, atLevel, atNextLevel []manifest.TableMeta) Plan {
	p := Plan{Level: level, TargetLevel: level + 1}

	if level == 0 {
		p.Inputs = append([]manifest.TableMeta(nil), atLevel...)
	} else {
		oldest := oldestByID(atLevel)
		p.Inputs = []manifest.TableMeta{oldest}
	}

	rangeMin, rangeMax := unionRange(p.Inputs)
	for _, t := range atNextLevel {
		if rangesOverlap(rangeMin, rangeMax, t.MinKey, t.MaxKey) {
			p.Overlapping = append(p.Overlapping, t)
		}
	}
	return p
}

func oldestByID(tables []manifest.TableMeta) manifest.TableMeta {
	out := tables[0]
	for _, t := range tables[1:] {
		if t.ID < out.ID {
			out = t
		}
	}
	return out
}

func unionRange(tables []manifest.TableMeta) (min, max []byte) {
	for i, t := range tables {
		if i == 0 || bytes.Compare(t.MinKey, min) < 0 {
			min = t.MinKey
		}
		if i == 0 || bytes.Compare(t.MaxKey, max) > 0 {
			max = t.MaxKey
		}
	}
	return min, max
}

func rangesOverlap(aMin, aMax, bMin, bMax []byte) bool {
	return bytes.Compare(aMin, bMax) <= 0 && bytes.Compare(bMin, aMax) <= 0
}

// AllInputs returns every table a Plan will consume, across both levels,
// sorted newest-first (highest ID first) — the order MergeSources wants
// its Source.Rank assigned in, so the first table here should become
// rank 0.
func (p Plan) AllInputs() []manifest.TableMeta {
	all := append(append([]manifest.TableMeta(nil), p.Inputs...), p.Overlapping...)
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return all
}
