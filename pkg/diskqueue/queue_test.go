package diskqueue

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const testHeapSize = 4 << 20

// The queue holds every catalog stream open at once, which outgrows the
// common 1024 soft descriptor limit, so raise it the way the embedding
// plotter does.
func TestMain(m *testing.M) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err == nil && lim.Cur < 8192 {
		lim.Cur = lim.Max
		if lim.Cur > 8192 {
			lim.Cur = 8192
		}
		unix.Setrlimit(unix.RLIMIT_NOFILE, &lim)
	}
	os.Exit(m.Run())
}

func newTestQueue(t *testing.T, opts ...Option) (*Queue, string) {
	t.Helper()
	dir := t.TempDir()
	q := New(dir, testHeapSize, opts...)
	t.Cleanup(q.Close)
	return q, dir
}

// flush enqueues a fence signal and waits for the dispatcher to reach it,
// so every previously enqueued command has executed.
func flush(q *Queue) {
	f := NewFence()
	q.SignalFenceValue(f, 1)
	q.CommitCommands()
	f.WaitValue(1)
}

func fill(buf []byte, seed byte) {
	for i := range buf {
		buf[i] = seed + byte(i)
	}
}

func TestNewOpensCatalog(t *testing.T) {
	q, dir := newTestQueue(t)

	assert.GreaterOrEqual(t, q.BlockSize(), uint(2))

	// A bucketed set and a single-stream set from the catalog.
	_, err := os.Stat(filepath.Join(dir, "y0_0.tmp"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "y0_63.tmp"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "table_7_r_0.tmp"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "table_6_marks_0.tmp"))
	assert.NoError(t, err)
}

func TestWriteReadRoundtrip(t *testing.T) {
	q, _ := newTestQueue(t)

	src := q.GetBuffer(100)
	fill(src[:100], 3)

	q.WriteFile(Y0, 0, src[:100])
	q.SeekFile(Y0, 0, 0, io.SeekStart)

	dst := q.GetBuffer(100)
	q.ReadFile(Y0, 0, dst[:100])
	q.CommitCommands()
	flush(q)

	assert.Equal(t, src[:100], dst[:100])

	q.ReleaseBuffer(src)
	q.ReleaseBuffer(dst)
	q.CommitCommands()
}

// A file write followed by a fence signal: the bytes must be on disk by
// the time a waiter observes the fence value.
func TestFenceOrdering(t *testing.T) {
	q, dir := newTestQueue(t)

	buf := q.GetBuffer(512)
	fill(buf[:512], 7)

	f := NewFence()
	q.WriteFile(F7, 0, buf[:512])
	q.SignalFenceValue(f, 1)
	q.CommitCommands()

	done := make(chan struct{})
	go func() {
		f.WaitValue(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fence wait did not return")
	}

	got, err := os.ReadFile(filepath.Join(dir, "f7_0.tmp"))
	require.NoError(t, err)
	assert.Equal(t, buf[:512], got)
}

func TestWriteBucketsRoundtrip(t *testing.T) {
	q, _ := newTestQueue(t)

	sizes := make([]uint32, BucketCount)
	sizes[0] = 100
	sizes[2] = 50
	sizes[3] = 200
	const total = 350

	src := q.GetBuffer(total)
	fill(src[:total], 11)

	q.WriteBuckets(Y1, src[:total], sizes)
	q.SeekBucket(Y1, 0, io.SeekStart)

	dst := q.GetBuffer(total)
	q.ReadFile(Y1, 0, dst[0:100])
	q.ReadFile(Y1, 2, dst[100:150])
	q.ReadFile(Y1, 3, dst[150:350])
	q.CommitCommands()
	flush(q)

	assert.Equal(t, src[:total], dst[:total])
}

// A zero-sized bucket gets no write and its stream stays empty.
func TestWriteBucketsZeroSize(t *testing.T) {
	q, dir := newTestQueue(t)

	sizes := make([]uint32, BucketCount)
	sizes[1] = 64

	src := q.GetBuffer(64)
	fill(src[:64], 5)
	q.WriteBuckets(X, src[:64], sizes)
	q.CommitCommands()
	flush(q)

	info, err := os.Stat(filepath.Join(dir, "x_0.tmp"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	info, err = os.Stat(filepath.Join(dir, "x_1.tmp"))
	require.NoError(t, err)
	assert.Equal(t, int64(64), info.Size())
}

func TestPlotHeader(t *testing.T) {
	q, dir := newTestQueue(t)

	var plotID [32]byte
	for i := range plotID {
		plotID[i] = byte(i)
	}
	memo := []byte{0xAA, 0xBB}

	require.NoError(t, q.OpenPlotFile("p.tmp", plotID, memo))
	flush(q)

	expected := []byte("Proof of Space Plot")
	expected = append(expected, plotID[:]...)
	expected = append(expected, 32)                  // k
	expected = append(expected, 0x00, 0x04)          // len("v1.0")
	expected = append(expected, []byte("v1.0")...)   //
	expected = append(expected, 0x00, 0x02)          // memo length
	expected = append(expected, memo...)             //
	expected = append(expected, make([]byte, 80)...) // table pointers

	require.Equal(t, len(expected), q.PlotHeaderSize())
	assert.Equal(t, int64(len(expected)-80), q.PlotTablePointersOffset())

	got, err := os.ReadFile(filepath.Join(dir, "p.tmp"))
	require.NoError(t, err)
	assert.Equal(t, expected, got[:q.PlotHeaderSize()])
}

func TestPlotHeaderBadMemo(t *testing.T) {
	q, _ := newTestQueue(t)
	var plotID [32]byte
	assert.Error(t, q.OpenPlotFile("p.tmp", plotID, nil))
}

func TestDeleteFile(t *testing.T) {
	q, dir := newTestQueue(t)

	buf := q.GetBuffer(32)
	fill(buf[:32], 1)
	q.WriteFile(Map2, 5, buf[:32])
	q.DeleteFile(Map2, 5)
	q.CommitCommands()
	flush(q)

	_, err := os.Stat(filepath.Join(dir, "table_2_map_5.tmp"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "table_2_map_4.tmp"))
	assert.NoError(t, err)
}

func TestDeleteBucket(t *testing.T) {
	q, dir := newTestQueue(t)

	buf := q.GetBuffer(32)
	fill(buf[:32], 2)
	for bucket := uint32(0); bucket < 3; bucket++ {
		q.WriteFile(Map2, bucket, buf[:32])
	}
	q.DeleteBucket(Map2)
	q.CommitCommands()
	flush(q)

	matches, err := filepath.Glob(filepath.Join(dir, "table_2_map_*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Reopening the set succeeds.
	require.True(t, q.InitFileSet(Map2, "table_2_map", BucketCount))
	_, err = os.Stat(filepath.Join(dir, "table_2_map_0.tmp"))
	assert.NoError(t, err)
}

// Heap buffers released through the queue become allocatable again once
// the release command executes and the producer reconciles.
func TestReleaseThroughQueue(t *testing.T) {
	q, _ := newTestQueue(t)

	block := q.BlockSize()
	free := q.HeapFreeBytes()

	buf := q.GetBuffer(block * 4)
	q.ReleaseBuffer(buf)
	q.CommitCommands()
	flush(q)

	q.CompletePendingReleases()
	assert.Equal(t, free, q.HeapFreeBytes())
}

// With the dispatcher parked on a fence and the ring full of committed
// commands, the next enqueue blocks; the dispatcher's following batch
// dequeue releases exactly that producer.
func TestRingBackpressure(t *testing.T) {
	q, _ := newTestQueue(t, WithRingSize(64))

	gate := NewFence()
	q.WaitForFence(gate)
	q.CommitCommands()

	// Let the dispatcher pull the gate command off the ring.
	time.Sleep(100 * time.Millisecond)

	side := NewFence()
	var enqueued atomic.Int32
	go func() {
		for i := 0; i < 64; i++ {
			q.SignalFenceValue(side, uint32(i+1))
			enqueued.Add(1)
		}
		q.CommitCommands()

		// Ring is full; this one blocks until the dispatcher dequeues.
		q.SignalFenceValue(side, 65)
		enqueued.Add(1)
		q.CommitCommands()
	}()

	require.Eventually(t, func() bool { return enqueued.Load() == 64 },
		5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(64), enqueued.Load(), "65th enqueue must block on a full ring")

	gate.Signal()

	require.Eventually(t, func() bool { return enqueued.Load() == 65 },
		5*time.Second, 10*time.Millisecond)

	side.WaitValue(65)
}

// All commands inside one commit execute in enqueue order: interleaved
// writes and seeks against one stream must produce the bytes sequential
// execution would.
func TestCommandOrderWithinCommit(t *testing.T) {
	q, dir := newTestQueue(t)

	a := q.GetBuffer(16)
	b := q.GetBuffer(16)
	fill(a[:16], 0x10)
	fill(b[:16], 0x60)

	q.WriteFile(T2L, 0, a[:16])
	q.WriteFile(T2L, 0, b[:16])
	q.SeekFile(T2L, 0, 0, io.SeekStart)
	q.WriteFile(T2L, 0, a[:8])
	q.CommitCommands()
	flush(q)

	got, err := os.ReadFile(filepath.Join(dir, "table_2_l_0.tmp"))
	require.NoError(t, err)
	require.Len(t, got, 32)
	assert.Equal(t, a[:8], got[:8])
	assert.Equal(t, a[8:16], got[8:16])
	assert.Equal(t, b[:16], got[16:32])
}

func TestReuseTempFilesKeepsContent(t *testing.T) {
	dir := t.TempDir()

	q := New(dir, testHeapSize)
	buf := q.GetBuffer(64)
	fill(buf[:64], 9)
	q.WriteFile(SortKey2, 1, buf[:64])
	q.CommitCommands()
	flush(q)
	expect := append([]byte(nil), buf[:64]...)
	q.Close()

	q = New(dir, testHeapSize, WithReuseTempFiles())
	defer q.Close()

	dst := q.GetBuffer(64)
	q.ReadFile(SortKey2, 1, dst[:64])
	q.CommitCommands()
	flush(q)

	assert.Equal(t, expect, dst[:64])
}
