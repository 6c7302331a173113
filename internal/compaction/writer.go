package compaction

import (
	"io"

	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/sanddb/sanddb/internal/sstable"
)

// OutputOpener is called each time WriteTables needs a fresh destination
// for the next output SSTable. The engine supplies this so compaction
// never has to know about file paths or manifest ID allocation.
type OutputOpener func() (io.WriteCloser, error)

// Output describes one SSTable WriteTables produced.
type Output struct {
	Count  int
	MinKey []byte
	MaxKey []byte
}

// WriteTables streams entries (already merged and deduplicated, ascending
// key order) into one or more SSTables, opening a new output via open
// whenever the running total of key+value bytes crosses maxTableBytes.
// Grounded on the teacher's Compactor.Compact, which splits compaction
// output by a fixed byte threshold (64MB there; configurable here via
// maxTableBytes) rather than writing one unbounded file per job.
//
// Results are returned in the order the outputs were opened; a
// maxTableBytes of 0 means "never split".
func WriteTables(entries []sstable.Entry, maxTableBytes uint64, wopts sstable.WriterOptions, open OutputOpener) ([]Output, error) {
	if len(entries) == 0 {
		return nil, sanderrors.ErrEmptyTable
	}

	var outputs []Output
	var cur *sstable.Writer
	var curOut io.WriteCloser
	var curBytes uint64
	var curN int
	var curMin, curMax []byte

	finish := func() error {
		if cur == nil {
			return nil
		}
		_, err := cur.Finish()
		closeErr := curOut.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		outputs = append(outputs, Output{Count: curN, MinKey: curMin, MaxKey: curMax})
		cur, curOut, curBytes, curN, curMin, curMax = nil, nil, 0, 0, nil, nil
		return nil
	}

	for _, e := range entries {
		if cur == nil {
			out, err := open()
			if err != nil {
				return nil, err
			}
			w, err := sstable.NewWriter(out, wopts)
			if err != nil {
				out.Close()
				return nil, err
			}
			cur, curOut = w, out
			curMin = e.Key
		}

		if err := cur.Add(e); err != nil {
			return nil, err
		}
		curBytes += uint64(len(e.Key) + len(e.Value))
		curN++
		curMax = e.Key

		if maxTableBytes > 0 && curBytes >= maxTableBytes {
			if err := finish(); err != nil {
				return nil, err
			}
		}
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return outputs, nil
}
