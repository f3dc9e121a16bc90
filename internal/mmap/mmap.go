package mmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// New allocates a large contiguous chunk of memory using the OS syscall mmap.
// This is manually managed memory that is not garbage collected by the Go
// runtime. You must call Free with the buffer when finished. The mapping is
// anonymous and page-aligned, which satisfies the OS alignment requirements
// for unbuffered I/O, so block-multiple buffers carved from it can be handed
// to O_DIRECT reads and writes as-is.
func New(size int) ([]byte, error) {
	if size < 1 {
		return nil, fmt.Errorf("mmap: invalid size; size must be greater than 0: %d", size)
	}

	// Set `fd` to -1 because we are using `MAP_ANON`. This indicates that
	// there is no backing disk file.
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func Free(data []byte) error {
	return unix.Munmap(data)
}
