// Package fileset is the registry of named per-bucket stream sets. It owns
// path construction under the work directory, the shared storage block size,
// and the aligned scratch block used for direct-I/O remainder writes.
package fileset

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ncw/directio"

	"plotdisk/internal/base"
	"plotdisk/internal/filestream"
	"plotdisk/internal/iopool"
)

// Set holds one table's ordered bucket streams. Length is 1 for
// non-bucketed tables.
type Set struct {
	Name    string
	Streams []*filestream.Stream
}

// Registry maps FileIDs to their sets. All temp-file streams must share one
// storage block size; the first opened stream records it and allocates the
// scratch block.
type Registry struct {
	workDir  string
	directIO bool
	pool     *iopool.Pool

	mu        sync.Mutex
	blockSize uint
	scratch   []byte
	sets      [base.FileIDCount]*Set
}

// NewRegistry creates a registry rooted at workDir, normalized to end with
// a path separator.
func NewRegistry(workDir string, directIO bool, pool *iopool.Pool) *Registry {
	if !strings.HasSuffix(workDir, string(os.PathSeparator)) {
		workDir += string(os.PathSeparator)
	}
	return &Registry{
		workDir:  workDir,
		directIO: directIO,
		pool:     pool,
	}
}

// Path constructs the on-disk path for one stream of a set. Temporary
// tables are `<dir><name>_<bucket>.tmp`; the plot file uses the
// caller-supplied name verbatim.
func (r *Registry) Path(id base.FileID, name string, bucket uint) string {
	if id == base.Plot {
		return r.workDir + name
	}
	return fmt.Sprintf("%s%s_%d.tmp", r.workDir, name, bucket)
}

// Init constructs a set of bucket streams for id. Streams open concurrently
// on the I/O pool. The first open records the device block size; every
// later temp stream must report the same size or Init fails.
func (r *Registry) Init(id base.FileID, name string, buckets uint, mode filestream.Mode) error {
	set := &Set{
		Name:    name,
		Streams: make([]*filestream.Stream, buckets),
	}

	tasks := make([]func() error, buckets)
	for i := uint(0); i < buckets; i++ {
		i := i
		tasks[i] = func() error {
			stream, err := filestream.Open(r.Path(id, name, i), mode, r.directIO)
			if err != nil {
				return fmt.Errorf("open %s: %w", r.Path(id, name, i), err)
			}
			set.Streams[i] = stream
			return nil
		}
	}
	if err := r.pool.Do(context.Background(), tasks...); err != nil {
		for _, s := range set.Streams {
			if s != nil {
				s.Close()
			}
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, stream := range set.Streams {
		if r.blockSize == 0 {
			bs := stream.BlockSize()
			if bs < 2 {
				return fmt.Errorf("invalid block size %d for %s", bs, stream.Path())
			}
			r.blockSize = bs
			r.scratch = directio.AlignedBlock(int(bs))
		} else if id != base.Plot && stream.BlockSize() != r.blockSize {
			return fmt.Errorf("stream %s_%d block size %d differs from %d",
				name, i, stream.BlockSize(), r.blockSize)
		}
	}

	r.sets[id] = set
	return nil
}

// Set returns the set registered for id, or nil.
func (r *Registry) Set(id base.FileID) *Set {
	return r.sets[id]
}

// Stream returns one bucket stream of a set.
func (r *Registry) Stream(id base.FileID, bucket uint) *filestream.Stream {
	return r.sets[id].Streams[bucket]
}

// BlockSize returns the shared storage block size. Zero until the first
// set opens.
func (r *Registry) BlockSize() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blockSize
}

// Scratch returns the shared one-block scratch buffer. Dispatcher use only.
func (r *Registry) Scratch() []byte {
	return r.scratch
}

// RemoveFile closes and unlinks one bucket stream.
func (r *Registry) RemoveFile(id base.FileID, bucket uint) error {
	return r.sets[id].Streams[bucket].Remove()
}

// RemoveBucket closes and unlinks every stream of a set, aggregating
// unlink failures.
func (r *Registry) RemoveBucket(id base.FileID) error {
	var errs *multierror.Error
	for _, stream := range r.sets[id].Streams {
		if err := stream.Remove(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// CloseAll closes every registered stream.
func (r *Registry) CloseAll() {
	for _, set := range r.sets {
		if set == nil {
			continue
		}
		for _, stream := range set.Streams {
			stream.Close()
		}
	}
}
