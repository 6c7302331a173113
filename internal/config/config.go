// Package config defines SandDB's tunable options and how they're
// validated and loaded from an optional YAML overlay file.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Options configures one Engine. Every field has a sane default via
// Default(); callers typically start from that and override only what
// they need, then call Validate before passing Options to engine.Open.
type Options struct {
	// DataDir is the directory holding the manifest, lock file, and
	// SSTables. Created if it doesn't exist.
	DataDir string `yaml:"data_dir" validate:"required"`

	// PageSize is the target uncompressed size, in bytes, of one
	// SSTable chunk.
	PageSize uint16 `yaml:"page_size" validate:"gte=256"`

	// MemtableFlushBytes is the approximate size at which the active
	// memtable is sealed and queued for flush to an SSTable.
	MemtableFlushBytes uint64 `yaml:"memtable_flush_bytes" validate:"gte=1024"`

	// L0TriggerCount is how many level-0 SSTables accumulate before a
	// compaction into level 1 is triggered.
	L0TriggerCount int `yaml:"l0_trigger_count" validate:"gte=1"`

	// LevelSizeMultiplier is the growth factor between a level's byte
	// budget and the next level's.
	LevelSizeMultiplier float64 `yaml:"level_size_multiplier" validate:"gte=1"`

	// L1TargetBytes is level 1's byte budget before it triggers
	// compaction into level 2.
	L1TargetBytes uint64 `yaml:"l1_target_bytes" validate:"gte=1"`

	// MaxLevels caps how many levels the compactor will create.
	MaxLevels int `yaml:"max_levels" validate:"gte=1,lte=16"`

	// Compression names the codec applied to SSTable chunks: "none",
	// "lz4" (backed by snappy — see DESIGN.md), or "zstd".
	Compression string `yaml:"compression" validate:"oneof=none lz4 zstd"`

	// FlushQueueDepth bounds how many sealed memtables can wait for the
	// flush worker before Put blocks (or returns ErrBackpressure in
	// non-blocking mode).
	FlushQueueDepth int `yaml:"flush_queue_depth" validate:"gte=1"`

	// NonBlockingBackpressure makes Put return ErrBackpressure instead
	// of blocking when the flush queue is full.
	NonBlockingBackpressure bool `yaml:"non_blocking_backpressure"`

	// MaxCompactedTableBytes bounds the size of one SSTable produced by
	// compaction before the output is split across multiple files. 0
	// disables splitting.
	MaxCompactedTableBytes uint64 `yaml:"max_compacted_table_bytes"`

	// ChunkCacheSize bounds how many decoded chunks stay resident across
	// every open SSTable.
	ChunkCacheSize int `yaml:"chunk_cache_size" validate:"gte=0"`
}

// Default returns the configuration SandDB uses when a caller overrides
// nothing but DataDir.
func Default(dataDir string) Options {
	return Options{
		DataDir:                dataDir,
		PageSize:               4096,
		MemtableFlushBytes:     4 << 20,
		L0TriggerCount:         4,
		LevelSizeMultiplier:    10,
		L1TargetBytes:          8 << 20,
		MaxLevels:              7,
		Compression:            "lz4",
		FlushQueueDepth:        4,
		MaxCompactedTableBytes: 64 << 20,
		ChunkCacheSize:         256,
	}
}

var validate = validator.New()

// Validate checks every constraint tag on Options and returns the first
// violation found, wrapped with the field name.
func (o Options) Validate() error {
	return validate.Struct(o)
}

// LoadOverlay reads path as YAML and applies whatever fields it sets on
// top of base, returning the merged Options. A missing file is not an
// error — it simply returns base unchanged, since an overlay is always
// optional.
func LoadOverlay(path string, base Options) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return Options{}, err
	}
	merged := base
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return Options{}, err
	}
	return merged, nil
}
