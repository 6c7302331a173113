package engine

import (
	"fmt"
	"testing"

	"github.com/sanddb/sanddb/internal/config"
	"github.com/sanddb/sanddb/internal/sanderrors"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) config.Options {
	t.Helper()
	opts := config.Default(t.TempDir())
	opts.MemtableFlushBytes = 256
	opts.FlushQueueDepth = 8
	return opts
}

func TestOpenEmptyDirThenClose(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestPutGetRoundTripBeforeFlush(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	got, err := e.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Get([]byte("nope"))
	require.ErrorIs(t, err, sanderrors.ErrNotFound)
}

func TestDeleteShadowsEarlierValue(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Delete([]byte("a")))
	_, err = e.Get([]byte("a"))
	require.ErrorIs(t, err, sanderrors.ErrNotFound)
}

func TestWritesPastFlushThresholdStayReadable(t *testing.T) {
	opts := testOptions(t)
	e, err := Open(opts)
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		val := []byte("01234567890123456789")
		require.NoError(t, e.Put(key, val))
	}

	// The flush worker runs asynchronously, so some keys may still sit in
	// a sealed memtable: Get must still find every key regardless of
	// whether it landed in a memtable or an SSTable by now.
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		got, err := e.Get(key)
		require.NoError(t, err)
		require.Equal(t, []byte("01234567890123456789"), got)
	}
}

func TestOverwriteKeepsNewestValue(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("a"), []byte("2")))
	got, err := e.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}

func TestReopenAfterCloseReplaysState(t *testing.T) {
	opts := testOptions(t)
	e, err := Open(opts)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, e.Put(key, []byte("v")))
	}
	require.NoError(t, e.Close())

	e2, err := Open(opts)
	require.NoError(t, err)
	defer e2.Close()

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		got, err := e2.Get(key)
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)
	}
}

func TestOpenTwiceOnSameDirFails(t *testing.T) {
	opts := testOptions(t)
	e, err := Open(opts)
	require.NoError(t, err)
	defer e.Close()

	_, err = Open(opts)
	require.ErrorIs(t, err, sanderrors.ErrAlreadyOpen)
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	require.ErrorIs(t, e.Put([]byte("a"), []byte("1")), sanderrors.ErrClosed)
	_, err = e.Get([]byte("a"))
	require.ErrorIs(t, err, sanderrors.ErrClosed)
}

func TestCompactionCollapsesDuplicateKeysAcrossFlushes(t *testing.T) {
	opts := testOptions(t)
	opts.L0TriggerCount = 2
	e, err := Open(opts)
	require.NoError(t, err)
	defer e.Close()

	// Two separate flush cycles writing the same key: the second value
	// must win once compaction (or a direct Get, which always checks
	// newest-first regardless of compaction timing) resolves it.
	pad := make([]byte, 200)
	require.NoError(t, e.Put([]byte("dup"), append([]byte("first-"), pad...)))
	require.NoError(t, e.Put([]byte("pad1"), pad))
	require.NoError(t, e.Put([]byte("dup"), []byte("second")))
	require.NoError(t, e.Put([]byte("pad2"), append(pad, pad...)))

	got, err := e.Get([]byte("dup"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

// Put and Get are each guarded by Engine.mu for memtable access and by
// the atomic level-set pointer for on-disk reads, so concurrent callers
// never observe a torn level structure; this is exercised for data
// races by go test -race rather than asserted here directly.
func TestConcurrentPutGetDoNotCorruptState(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			key := []byte(fmt.Sprintf("writer-%03d", i))
			require.NoError(t, e.Put(key, []byte("v")))
		}
	}()

	for i := 0; i < 100; i++ {
		_, _ = e.Get([]byte(fmt.Sprintf("writer-%03d", i)))
	}
	<-done

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("writer-%03d", i))
		got, err := e.Get(key)
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)
	}
}
