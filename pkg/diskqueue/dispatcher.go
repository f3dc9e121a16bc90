package diskqueue

import (
	"plotdisk/internal/align"
	"plotdisk/internal/filestream"
	"plotdisk/internal/logger"
)

// dispatcher is the queue's single consumer. It parks on the ready signal,
// then drains the ring in batches of up to dispatchBatchSize, signaling
// consumed after each dequeue so a producer stalled on a full ring can run,
// and executes each command in enqueue order.
func (q *Queue) dispatcher() {
	defer close(q.stopped)

	cmds := make([]command, dispatchBatchSize)

	for {
		select {
		case <-q.cmdReady:
			q.drain(cmds)
		case <-q.done:
			q.drain(cmds)
			return
		}
	}
}

func (q *Queue) drain(cmds []command) {
	for {
		n := q.ring.Dequeue(cmds)
		if n == 0 {
			return
		}

		select {
		case q.cmdConsumed <- struct{}{}:
		default:
		}

		for i := range cmds[:n] {
			q.execute(&cmds[i])
		}
	}
}

func (q *Queue) execute(cmd *command) {
	logger.Debugf("[diskqueue] ^ cmd %s (%s.%d)", cmd.typ, cmd.fileID, cmd.bucket)

	switch cmd.typ {
	case cmdWriteBuckets:
		q.writeBuckets(cmd)

	case cmdWriteFile:
		set := q.registry.Set(cmd.fileID)
		q.writeToFile(set.Streams[cmd.bucket], set.Name, cmd.bucket, cmd.buffer)

	case cmdReadFile:
		set := q.registry.Set(cmd.fileID)
		q.readFromFile(set.Streams[cmd.bucket], set.Name, cmd.bucket, cmd.buffer)

	case cmdSeekFile:
		set := q.registry.Set(cmd.fileID)
		if _, err := set.Streams[cmd.bucket].Seek(cmd.offset, cmd.whence); err != nil {
			logger.Fatalf("[diskqueue] failed to seek file %s.%d: %v", set.Name, cmd.bucket, err)
		}

	case cmdSeekBucket:
		set := q.registry.Set(cmd.fileID)
		for i, stream := range set.Streams {
			if _, err := stream.Seek(cmd.offset, cmd.whence); err != nil {
				logger.Fatalf("[diskqueue] failed to seek file %s.%d: %v", set.Name, i, err)
			}
		}

	case cmdReleaseBuffer:
		q.heap.Release(cmd.buffer)

	case cmdSignalFence:
		if cmd.value < 0 {
			cmd.fence.Signal()
		} else {
			cmd.fence.SignalValue(uint32(cmd.value))
		}

	case cmdWaitForFence:
		cmd.fence.Wait()

	case cmdDeleteFile:
		if err := q.registry.RemoveFile(cmd.fileID, uint(cmd.bucket)); err != nil {
			logger.Errorf("[diskqueue] failed to delete file %s.%d: %v", cmd.fileID, cmd.bucket, err)
		}

	case cmdDeleteBucket:
		// Under buffered I/O the unlinks can stall on kernel cache
		// writeback; they still run on the dispatcher because no other
		// command may overtake a delete of the same set.
		if err := q.registry.RemoveBucket(cmd.fileID); err != nil {
			logger.Errorf("[diskqueue] failed to delete bucket %s: %v", cmd.fileID, err)
		}

	default:
		panic("diskqueue: invalid command")
	}
}

// writeBuckets writes sizes[i] bytes to stream i of the set from one
// contiguous buffer. In direct mode only the block-aligned prefix of each
// bucket is written while the input advances by the rounded-up stride, so
// every bucket's data starts block-aligned in memory; the compute layer
// carries the unwritten tails across passes.
func (q *Queue) writeBuckets(cmd *command) {
	set := q.registry.Set(cmd.fileID)
	blockSize := uint32(q.registry.BlockSize())

	var offset uint64
	for i, size := range cmd.sizes {
		writeSize := size
		stride := size
		if q.directIO {
			writeSize = align.RoundDown(size, blockSize)
			stride = align.RoundUp(size, blockSize)
		}

		if writeSize > 0 {
			buf := cmd.buffer[offset : offset+uint64(writeSize)]
			q.writeToFile(set.Streams[i], set.Name, uint32(i), buf)
		}
		offset += uint64(stride)
	}
}

// writeToFile writes all of buf to the stream. Buffered mode loops until
// the full size lands. Direct mode writes the block-aligned prefix in a
// loop, then pads the remainder into the zeroed scratch block and writes
// exactly one more block.
func (q *Queue) writeToFile(stream *filestream.Stream, name string, bucket uint32, buf []byte) {
	if !q.directIO {
		for len(buf) > 0 {
			n, err := stream.Write(buf)
			if n < 1 {
				logger.Fatalf("[diskqueue] failed to write to '%s.%d' work file: %v", name, bucket, err)
			}
			buf = buf[n:]
		}
		return
	}

	blockSize := q.registry.BlockSize()
	aligned := align.RoundDown(uint(len(buf)), blockSize)
	remainder := buf[aligned:]

	head := buf[:aligned]
	for len(head) > 0 {
		n, err := stream.Write(head)
		if n < 1 {
			logger.Fatalf("[diskqueue] failed to write to '%s.%d' work file: %v", name, bucket, err)
		}
		head = head[n:]
	}

	if len(remainder) > 0 {
		scratch := q.registry.Scratch()
		for i := range scratch {
			scratch[i] = 0
		}
		copy(scratch, remainder)

		n, err := stream.Write(scratch)
		if n < 1 {
			logger.Fatalf("[diskqueue] failed to write block to '%s.%d' work file: %v", name, bucket, err)
		}
	}
}

// readFromFile reads len(buf) bytes from the stream. Direct mode rounds the
// read up to a block multiple; buffers are block-aligned with block-multiple
// capacity by construction, so the tail lands in the buffer's spare
// capacity. Reading past EOF is fatal.
func (q *Queue) readFromFile(stream *filestream.Stream, name string, bucket uint32, buf []byte) {
	if q.directIO {
		blockSize := q.registry.BlockSize()
		rounded := align.RoundUp(uint(len(buf)), blockSize)
		if uint(cap(buf)) < rounded {
			panic("diskqueue: read buffer capacity below block-rounded size")
		}
		buf = buf[:rounded]
	}

	for len(buf) > 0 {
		n, err := stream.Read(buf)
		if n < 1 {
			logger.Fatalf("[diskqueue] failed to read from '%s.%d' work file: %v", name, bucket, err)
		}
		buf = buf[n:]
	}
}
