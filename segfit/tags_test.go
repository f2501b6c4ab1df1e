package segfit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackTag(t *testing.T) {
	require.Equal(t, uint32(0x48), packTag(0x48, false))
	require.Equal(t, uint32(0x49), packTag(0x48, true))
	require.Equal(t, uint32(0x1), packTag(0, true))
}

func TestTagRoundTrip(t *testing.T) {
	region := NewSliceRegion(0)
	heap, err := New(region, DefaultConfig(), nil)
	require.NoError(t, err)

	p, err := heap.Alloc(40)
	require.NoError(t, err)

	require.Equal(t, 48, heap.sizeAt(heap.headerOf(p)))
	require.True(t, heap.allocatedAt(heap.headerOf(p)))
	require.Equal(t, heap.tagAt(heap.headerOf(p)), heap.tagAt(heap.footerOf(p)))
}

func TestBlockNavigation(t *testing.T) {
	region := NewSliceRegion(0)
	heap, err := New(region, DefaultConfig(), nil)
	require.NoError(t, err)

	p, err := heap.Alloc(40)
	require.NoError(t, err)
	q, err := heap.Alloc(100)
	require.NoError(t, err)

	require.Equal(t, q, heap.nextBlock(p))
	require.Equal(t, p, heap.prevBlock(q))
	require.Equal(t, p, heap.nextBlock(heap.base))
	require.Equal(t, heap.base, heap.prevBlock(p))
}

func TestFreeLinkStorage(t *testing.T) {
	region := NewSliceRegion(0)
	heap, err := New(region, DefaultConfig(), nil)
	require.NoError(t, err)

	p, err := heap.Alloc(40)
	require.NoError(t, err)

	heap.setNextFree(p, 0x1234568)
	heap.setPrevFree(p, 0x89abcd0)
	require.Equal(t, 0x1234568, heap.nextFreeOf(p))
	require.Equal(t, 0x89abcd0, heap.prevFreeOf(p))
}
