package diskqueue

import (
	"encoding/binary"
	"fmt"

	"plotdisk/internal/base"
	"plotdisk/internal/filestream"
	"plotdisk/internal/logger"
)

// plotMagic and formatDescription are written to the plot header without a
// terminating NUL.
const (
	plotMagic         = "Proof of Space Plot"
	formatDescription = "v1.0"
)

// plotTablePointersSize is the zero-initialized region reserved for the ten
// table pointers the orchestrator patches in after the last phase.
const plotTablePointersSize = 80

// OpenPlotFile opens the plot output file under the work directory with the
// caller-supplied name, synthesizes the plot header, and enqueues its write
// to bucket 0 followed by an immediate commit. Unlike temp work files, a
// plot file that fails to open is reported to the caller instead of
// aborting.
//
// Header layout, all length fields big-endian:
//
//	magic || plotID(32) || k(1) || len(fmtDesc)(2) || fmtDesc ||
//	len(memo)(2) || memo || tablePointers(80, zeroed)
func (q *Queue) OpenPlotFile(fileName string, plotID [32]byte, memo []byte) error {
	if len(memo) == 0 || len(memo) > 0xFFFF {
		return fmt.Errorf("diskqueue: invalid plot memo size %d", len(memo))
	}

	if err := q.registry.Init(base.Plot, fileName, 1, filestream.Create); err != nil {
		logger.Errorf("[diskqueue] failed to open plot file %s: %v", fileName, err)
		return err
	}

	headerSize := len(plotMagic) +
		32 + // plot id
		1 + // k
		2 + len(formatDescription) +
		2 + len(memo) +
		plotTablePointersSize

	q.plotHeaderSize = headerSize

	header := q.heap.Alloc(uint(headerSize))

	w := 0
	w += copy(header[w:], plotMagic)
	w += copy(header[w:], plotID[:])
	header[w] = base.K
	w++

	binary.BigEndian.PutUint16(header[w:], uint16(len(formatDescription)))
	w += 2
	w += copy(header[w:], formatDescription)

	binary.BigEndian.PutUint16(header[w:], uint16(len(memo)))
	w += 2
	w += copy(header[w:], memo)

	// The table pointers are copied in at the end; retain their offset and
	// leave the region zeroed.
	q.plotTablesOffset = int64(w)
	for i := w; i < headerSize; i++ {
		header[i] = 0
	}

	q.WriteFile(base.Plot, 0, header[:headerSize])
	q.ReleaseBuffer(header)
	q.CommitCommands()

	return nil
}

// PlotHeaderSize returns the byte size of the header written by the last
// OpenPlotFile.
func (q *Queue) PlotHeaderSize() int {
	return q.plotHeaderSize
}

// PlotTablePointersOffset returns the header offset of the zeroed table
// pointer region, for the orchestrator's final patch.
func (q *Queue) PlotTablePointersOffset() int64 {
	return q.plotTablesOffset
}
