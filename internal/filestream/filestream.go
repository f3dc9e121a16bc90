// Package filestream wraps a single OS file handle of a bucket stream:
// open-mode policy, storage block size, seek and remove. Read and write
// loops with direct-I/O padding live on the queue, which owns the shared
// scratch block.
package filestream

import (
	"os"

	"github.com/ncw/directio"
	"golang.org/x/sys/unix"
)

// Mode selects the creation policy. Temporary tables and the plot file use
// Create; debug flows that re-read a previous run's tables use OpenOrCreate.
type Mode int

const (
	Create Mode = iota // truncate-or-create
	OpenOrCreate
)

// Stream owns one file handle plus its cached block size and last error.
// Access is always read-write; O_DIRECT is set iff direct I/O is enabled.
type Stream struct {
	file      *os.File
	path      string
	blockSize uint
	directIO  bool
	lastErr   error
}

// Open opens the stream at path. The block size is probed from the backing
// filesystem at open time.
func Open(path string, mode Mode, directIO bool) (*Stream, error) {
	flag := os.O_RDWR | os.O_CREATE
	if mode == Create {
		flag |= os.O_TRUNC
	}

	var file *os.File
	var err error
	if directIO {
		file, err = directio.OpenFile(path, flag, 0666)
	} else {
		file, err = os.OpenFile(path, flag, 0666)
	}
	if err != nil {
		return nil, err
	}

	var stat unix.Statfs_t
	if err := unix.Fstatfs(int(file.Fd()), &stat); err != nil {
		file.Close()
		return nil, err
	}

	return &Stream{
		file:      file,
		path:      path,
		blockSize: uint(stat.Bsize),
		directIO:  directIO,
	}, nil
}

// Write writes p once, returning the byte count from the OS. Callers loop
// on short writes.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	s.lastErr = err
	return n, err
}

// Read reads into p once, returning the byte count from the OS. Callers
// loop on short reads.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.file.Read(p)
	s.lastErr = err
	return n, err
}

// Seek repositions the stream. whence is io.SeekStart, io.SeekCurrent, or
// io.SeekEnd.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	off, err := s.file.Seek(offset, whence)
	s.lastErr = err
	return off, err
}

func (s *Stream) Sync() error {
	return s.file.Sync()
}

func (s *Stream) Close() error {
	return s.file.Close()
}

// Remove closes the stream and unlinks its file.
func (s *Stream) Remove() error {
	s.file.Close()
	return os.Remove(s.path)
}

// BlockSize returns the storage block size reported at open.
func (s *Stream) BlockSize() uint {
	return s.blockSize
}

// Path returns the file path the stream was opened with.
func (s *Stream) Path() string {
	return s.path
}

// LastErr returns the error from the most recent read, write, or seek.
func (s *Stream) LastErr() error {
	return s.lastErr
}

// Size returns the current file size in bytes.
func (s *Stream) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
