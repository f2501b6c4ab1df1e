package segfit

import (
	"github.com/anvilworks/segheap/heaputils"
	"github.com/cockroachdb/errors"
)

const defaultPageSize = 4096

// Region is the lower-level primitive the allocator grows its heap into: one
// contiguous range of bytes that can only ever get bigger. Offset 0 is the low
// end of the region and Size() is the high end.
//
// The allocator never interprets a Region beyond these four methods, so any
// monotonically growable byte store can back a heap.
type Region interface {
	// Grow extends the region by n bytes and returns the offset of the first
	// byte of the new extension (the region's size before the call). Growth
	// failure must be reported as an error wrapping heaputils.OutOfMemoryError.
	Grow(n int) (int, error)
	// Bytes returns the backing memory for the whole region. The returned slice
	// is only valid until the next Grow call.
	Bytes() []byte
	// Size returns the current extent of the region in bytes.
	Size() int
	// PageSize returns the natural growth quantum for this region.
	PageSize() int
}

// SliceRegion is a Region backed by an ordinary byte slice. It is the default
// collaborator for tests and for callers that want a purely in-process heap.
// A growth limit can be set to make extension fail deterministically.
type SliceRegion struct {
	buf      []byte
	limit    int
	pageSize int
}

// NewSliceRegion creates an empty SliceRegion. A limit of 0 or below means the
// region can grow until append fails.
func NewSliceRegion(limit int) *SliceRegion {
	return &SliceRegion{
		limit:    limit,
		pageSize: defaultPageSize,
	}
}

func (r *SliceRegion) Grow(n int) (int, error) {
	if n < 0 {
		return 0, errors.Newf("cannot grow a region by %d bytes", n)
	}

	if r.limit > 0 && len(r.buf)+n > r.limit {
		return 0, errors.Wrapf(heaputils.OutOfMemoryError,
			"region limit is %d bytes, %d are in use and %d more were requested", r.limit, len(r.buf), n)
	}

	base := len(r.buf)
	r.buf = append(r.buf, make([]byte, n)...)
	return base, nil
}

func (r *SliceRegion) Bytes() []byte { return r.buf }

func (r *SliceRegion) Size() int { return len(r.buf) }

func (r *SliceRegion) PageSize() int { return r.pageSize }
