//go:build linux

package segfit

import (
	"github.com/anvilworks/segheap/heaputils"
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// MmapRegion is a Region carved out of an anonymous mapping. The full reservation
// is mapped PROT_NONE up front so the backing bytes never move; Grow commits pages
// with mprotect as the heap expands. Exhausting the reservation reports out of
// memory the same way a capped SliceRegion does.
type MmapRegion struct {
	data     []byte
	size     int
	pageSize int
}

// NewMmapRegion reserves an anonymous mapping of at least reserve bytes, rounded
// up to a whole number of pages.
func NewMmapRegion(reserve int) (*MmapRegion, error) {
	if reserve <= 0 {
		return nil, errors.Newf("cannot reserve a region of %d bytes", reserve)
	}

	pageSize := unix.Getpagesize()
	reserve = heaputils.AlignUp(reserve, uint(pageSize))

	data, err := unix.Mmap(-1, 0, reserve, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reserve the heap region")
	}

	return &MmapRegion{
		data:     data,
		pageSize: pageSize,
	}, nil
}

func (r *MmapRegion) Grow(n int) (int, error) {
	if n < 0 {
		return 0, errors.Newf("cannot grow a region by %d bytes", n)
	}

	if r.size+n > len(r.data) {
		return 0, errors.Wrapf(heaputils.OutOfMemoryError,
			"region reservation is %d bytes, %d are in use and %d more were requested", len(r.data), r.size, n)
	}

	commitStart := heaputils.AlignUp(r.size, uint(r.pageSize))
	commitEnd := heaputils.AlignUp(r.size+n, uint(r.pageSize))
	if commitEnd > commitStart {
		err := unix.Mprotect(r.data[commitStart:commitEnd], unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return 0, errors.Wrap(err, "failed to commit heap pages")
		}
	}

	base := r.size
	r.size += n
	return base, nil
}

func (r *MmapRegion) Bytes() []byte { return r.data[:r.size] }

func (r *MmapRegion) Size() int { return r.size }

func (r *MmapRegion) PageSize() int { return r.pageSize }

// Close unmaps the reservation. The region must not be used afterward.
func (r *MmapRegion) Close() error {
	if r.data == nil {
		return nil
	}

	data := r.data
	r.data = nil
	r.size = 0
	return unix.Munmap(data)
}
