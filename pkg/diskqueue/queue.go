// Package diskqueue hides the disk beneath a command-driven, asynchronous,
// block-aligned staging queue. Compute phases allocate pinned buffers from
// the queue's work heap, fill them, and enqueue typed commands; a single
// long-lived dispatcher goroutine drains the command ring in batches and
// executes every file operation serially.
//
// The queue has a fail-fast policy: an I/O error on the staging path means
// the plot in progress cannot be completed, so work-file open, seek, read,
// and write failures terminate the process rather than surface structured
// errors to producers. A plot file that fails to open is the one exception:
// OpenPlotFile and InitFileSet report it to the caller.
package diskqueue

import (
	"runtime"
	"time"

	"plotdisk/internal/base"
	"plotdisk/internal/cmdring"
	"plotdisk/internal/fence"
	"plotdisk/internal/filestream"
	"plotdisk/internal/fileset"
	"plotdisk/internal/iopool"
	"plotdisk/internal/logger"
	"plotdisk/internal/workheap"
)

// FileID identifies one logical table. See the ID constants in this
// package.
type FileID = base.FileID

// Fence is the publish/wait object ordering producer commits against
// dispatcher completion.
type Fence = fence.Fence

// NewFence returns a fence in the unsignaled state with value zero.
func NewFence() *Fence {
	return fence.New()
}

// BucketCount is the number of partitions a bucketed table is split into.
const BucketCount = base.BucketCount

// dispatchBatchSize is how many commands the dispatcher pops per Dequeue.
const dispatchBatchSize = 64

// Queue is the disk-staged bucket I/O engine. One producer at a time may
// enqueue commands (callers serialize externally, per the single-producer
// ring); exactly one dispatcher consumes them.
type Queue struct {
	workDir   string
	directIO  bool
	ringSize  int
	ioThreads int
	tempMode  filestream.Mode
	heapSize  uint

	heap     *workheap.Heap
	registry *fileset.Registry
	pool     *iopool.Pool
	ring     *cmdring.Ring[command]

	cmdReady    chan struct{}
	cmdConsumed chan struct{}
	done        chan struct{}
	stopped     chan struct{}

	plotHeaderSize   int
	plotTablesOffset int64
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithDirectIO toggles unbuffered (O_DIRECT) file access. When enabled,
// writes are block-multiple with a scratch-block-padded tail and reads
// round up to block multiples into block-aligned buffers.
func WithDirectIO(enabled bool) Option {
	return func(q *Queue) { q.directIO = enabled }
}

// WithIOThreads bounds the I/O helper pool. The dispatch path itself stays
// single-threaded; the pool serves the file-set open fanout.
func WithIOThreads(n int) Option {
	return func(q *Queue) { q.ioThreads = n }
}

// WithRingSize sets the command ring capacity. Must be a power of two and
// at least 64.
func WithRingSize(n int) Option {
	return func(q *Queue) { q.ringSize = n }
}

// WithReuseTempFiles opens temporary tables without truncation so a debug
// run can consume tables produced by a previous one.
func WithReuseTempFiles() Option {
	return func(q *Queue) { q.tempMode = filestream.OpenOrCreate }
}

// New creates the queue, opens every temporary file set under workDir,
// sizes the work heap, and starts the dispatcher. Failure to open any
// temporary file, or a block-size disagreement between them, is fatal.
func New(workDir string, heapSize uint, opts ...Option) *Queue {
	q := &Queue{
		workDir:     workDir,
		ringSize:    256,
		ioThreads:   runtime.GOMAXPROCS(0),
		tempMode:    filestream.Create,
		heapSize:    heapSize,
		cmdReady:    make(chan struct{}, 1),
		cmdConsumed: make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.pool = iopool.New(q.ioThreads)
	q.registry = fileset.NewRegistry(workDir, q.directIO, q.pool)

	for _, table := range base.Catalog() {
		if err := q.registry.Init(table.ID, table.Name, table.Buckets, q.tempMode); err != nil {
			logger.Fatalf("[diskqueue] failed to open temp work file set %s: %v", table.Name, err)
		}
	}

	q.heap = workheap.New(heapSize, q.registry.BlockSize())
	q.ring = cmdring.NewRing[command](q.ringSize)

	go q.dispatcher()

	return q
}

// InitFileSet reconstructs a file set, e.g. after DeleteBucket removed its
// streams. Failure to open a temp set is fatal; a plot-file failure is
// logged and reported as false.
func (q *Queue) InitFileSet(id FileID, name string, buckets uint) bool {
	if err := q.registry.Init(id, name, buckets, q.tempMode); err != nil {
		if id == base.Plot {
			logger.Errorf("[diskqueue] failed to open plot file %s: %v", name, err)
			return false
		}
		logger.Fatalf("[diskqueue] failed to open temp work file set %s: %v", name, err)
	}
	return true
}

// BlockSize returns the storage block size shared by all temp streams.
func (q *Queue) BlockSize() uint {
	return q.registry.BlockSize()
}

// GetBuffer allocates a block-aligned buffer of at least n bytes from the
// work heap, blocking until pending releases free enough space.
func (q *Queue) GetBuffer(n uint) []byte {
	return q.heap.Alloc(n)
}

// CompletePendingReleases reconciles the producer's view of heap free space
// with the releases the dispatcher has completed.
func (q *Queue) CompletePendingReleases() {
	q.heap.CompletePendingReleases()
}

// ResetHeap rebinds the work heap to a new region between passes.
func (q *Queue) ResetHeap(buf []byte) {
	q.heap.Reset(buf, q.registry.BlockSize())
}

// HeapFreeBytes returns the heap's reconciled free space.
func (q *Queue) HeapFreeBytes() uint {
	return q.heap.FreeBytes()
}

// WriteBuckets enqueues a bulk bucketed write: one write per bucket stream
// of the set, sizes[i] bytes each, read from a single contiguous buffer.
// In direct-I/O mode only the block-aligned prefix of each bucket is
// written and the input advances by the round-up stride, so each bucket's
// data must start block-aligned in the buffer; callers carry the unwritten
// remainders forward themselves.
func (q *Queue) WriteBuckets(id FileID, buckets []byte, sizes []uint32) {
	cmd := q.getCommandObject(cmdWriteBuckets)
	cmd.fileID = id
	cmd.buffer = buckets
	cmd.sizes = sizes
}

// WriteFile enqueues a write of buf to one bucket stream at its current
// offset.
func (q *Queue) WriteFile(id FileID, bucket uint32, buf []byte) {
	cmd := q.getCommandObject(cmdWriteFile)
	cmd.fileID = id
	cmd.bucket = bucket
	cmd.buffer = buf
}

// ReadFile enqueues a read of len(buf) bytes from one bucket stream. In
// direct-I/O mode the read size rounds up to a block multiple; buf must
// have capacity for the rounded size (heap buffers do).
func (q *Queue) ReadFile(id FileID, bucket uint32, buf []byte) {
	cmd := q.getCommandObject(cmdReadFile)
	cmd.fileID = id
	cmd.bucket = bucket
	cmd.buffer = buf
}

// SeekFile enqueues a seek on one bucket stream. whence is io.SeekStart,
// io.SeekCurrent, or io.SeekEnd.
func (q *Queue) SeekFile(id FileID, bucket uint32, offset int64, whence int) {
	cmd := q.getCommandObject(cmdSeekFile)
	cmd.fileID = id
	cmd.bucket = bucket
	cmd.offset = offset
	cmd.whence = whence
}

// SeekBucket enqueues the same seek on every stream of the set.
func (q *Queue) SeekBucket(id FileID, offset int64, whence int) {
	cmd := q.getCommandObject(cmdSeekBucket)
	cmd.fileID = id
	cmd.offset = offset
	cmd.whence = whence
}

// ReleaseBuffer enqueues the return of a heap buffer. The buffer must not
// be touched after the call; the heap reclaims it once every command
// enqueued before this one has executed.
func (q *Queue) ReleaseBuffer(buf []byte) {
	if len(buf) == 0 {
		panic("diskqueue: release of empty buffer")
	}
	cmd := q.getCommandObject(cmdReleaseBuffer)
	cmd.buffer = buf
}

// SignalFence enqueues a no-value fence signal.
func (q *Queue) SignalFence(f *Fence) {
	cmd := q.getCommandObject(cmdSignalFence)
	cmd.fence = f
	cmd.value = -1
}

// SignalFenceValue enqueues publication of value v on the fence.
func (q *Queue) SignalFenceValue(f *Fence, v uint32) {
	cmd := q.getCommandObject(cmdSignalFence)
	cmd.fence = f
	cmd.value = int64(v)
}

// WaitForFence enqueues a fence wait, blocking the dispatcher until the
// fence is signaled. Use it to serialize against commands another producer
// will enqueue; to wait in-thread, call Wait on the fence directly.
func (q *Queue) WaitForFence(f *Fence) {
	cmd := q.getCommandObject(cmdWaitForFence)
	cmd.fence = f
	cmd.value = -1
}

// DeleteFile enqueues close-and-unlink of one bucket stream. Unlink
// failure is logged, not fatal.
func (q *Queue) DeleteFile(id FileID, bucket uint32) {
	cmd := q.getCommandObject(cmdDeleteFile)
	cmd.fileID = id
	cmd.bucket = bucket
}

// DeleteBucket enqueues close-and-unlink of every stream in the set.
func (q *Queue) DeleteBucket(id FileID) {
	cmd := q.getCommandObject(cmdDeleteBucket)
	cmd.fileID = id
}

// CommitCommands publishes every command enqueued since the last commit and
// wakes the dispatcher.
func (q *Queue) CommitCommands() {
	q.ring.Commit()
	select {
	case q.cmdReady <- struct{}{}:
	default:
	}
}

// Close drains the ring, parks the dispatcher, and closes every stream.
// The plotting process normally runs the queue for its whole lifetime;
// Close exists for embedders and tests that need a bounded shutdown.
func (q *Queue) Close() {
	q.ring.Commit()
	close(q.done)
	<-q.stopped
	q.registry.CloseAll()
}

// getCommandObject reserves the next ring slot, blocking on the consumed
// signal while the ring is full.
func (q *Queue) getCommandObject(typ commandType) *command {
	for {
		cmd, ok := q.ring.Write()
		if ok {
			*cmd = command{typ: typ}
			logger.Debugf("[diskqueue] > snd: %s", typ)
			return cmd
		}

		logger.Warnf("[diskqueue] command buffer full, waiting for commands")
		start := time.Now()
		<-q.cmdConsumed
		logger.Debugf("[diskqueue] waited %.6f seconds for a command slot", time.Since(start).Seconds())
	}
}
