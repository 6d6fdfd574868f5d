// Package membuf is this codebase's analogue of a memsys-style slab
// allocator (memsys.MMSA / memsys.PageSize / memsys.DefaultBufSize):
// a sized buffer pool plus a scoped, auto-deleting spill-file handle, so
// that large payloads never have to be held in RAM.
package membuf

import (
	"os"
	"sync"
)

const (
	PageSize = 4 * 1024
	DefaultBufSize = 64 * 1024
	MaxPageSlabSize = 128 * 1024 * 1024
)

// MMSA ("memory manager, slabs & arenas") is a sized set of
// sync.Pool-backed buffer pools. The zero value is not usable; use
// PageMM or New.
type MMSA struct {
	pools map[int]*sync.Pool
	mu sync.Mutex
}

var pageMM = New()

// PageMM returns the process-wide default pool, sized in PageSize
// increments, mirroring the memsys.PageMM() convention.
func PageMM() *MMSA { return pageMM }

func New() *MMSA {
	return &MMSA{pools: make(map[int]*sync.Pool)}
}

// Alloc returns a buffer of at least size bytes from the pool bucket whose
// size is the next PageSize multiple >= size.
func (mm *MMSA) Alloc(size int) []byte {
	bucket := roundUp(size, PageSize)
	p := mm.poolFor(bucket)
	if v := p.Get(); v != nil {
		b := v.([]byte)
		if cap(b) >= size {
			return b[:size]
		}
	}
	return make([]byte, size, bucket)
}

func (mm *MMSA) Free(b []byte) {
	if b == nil {
		return
	}
	bucket := roundUp(cap(b), PageSize)
	p := mm.poolFor(bucket)
	p.Put(b[:0]) //nolint:staticcheck // intentional: return zero-length, full-cap slice to pool
}

func (mm *MMSA) poolFor(bucket int) *sync.Pool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	p, ok := mm.pools[bucket]
	if !ok {
		p = &sync.Pool{New: func() any { return make([]byte, 0, bucket) }}
		mm.pools[bucket] = p
	}
	return p
}

func roundUp(n, mult int) int {
	if n <= 0 {
		return mult
	}
	return ((n + mult - 1) / mult) * mult
}

// SpillFile is a scoped temp-file handle: Close deletes the backing file
// unless Detach was called first, implementing the "temp-file ownership
// passes explicitly to the writer/decoder" design note for both
// success and failure exit paths.
type SpillFile struct {
	f *os.File
	detached bool
}

func NewSpillFile(pattern string) (*SpillFile, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, err
	}
	return &SpillFile{f: f}, nil
}

func (s *SpillFile) File() *os.File { return s.f }
func (s *SpillFile) Name() string { return s.f.Name() }

// Detach disarms auto-delete: the caller takes ownership of the path.
func (s *SpillFile) Detach() string {
	s.detached = true
	return s.f.Name()
}

func (s *SpillFile) Close() error {
	err := s.f.Close()
	if !s.detached {
		os.Remove(s.f.Name())
	}
	return err
}
