package segfit

import "encoding/binary"

const (
	// WordSize is the width of a boundary tag in bytes.
	WordSize = 4
	// DoubleSize is the payload alignment guaranteed for every allocation.
	DoubleSize = 2 * WordSize

	// minAllocBlock is the nominal allocated minimum: header, footer and one
	// aligned payload slot. adjustSize never sizes a block below minFreeBlock,
	// so every block actually handed out is at least minFreeBlock bytes.
	minAllocBlock = 2 * DoubleSize
	// linkBytes is the room the two free-list links occupy at the start of a
	// free block's payload area.
	linkBytes = 16
	// minFreeBlock is the smallest block that can carry free-list links.
	minFreeBlock = minAllocBlock + linkBytes

	allocatedBit = 0x1
	tagSizeMask  = ^uint32(0x7)
)

// packTag combines a block size with its allocation bit. Sizes are always
// multiples of DoubleSize, so the low three bits are free for flags.
func packTag(size int, allocated bool) uint32 {
	tag := uint32(size)
	if allocated {
		tag |= allocatedBit
	}
	return tag
}

// Boundary-tag arithmetic. Throughout the allocator, p is the offset of a
// block's payload: the header tag sits in the word before it, and the footer
// tag in the last word of the block. The helpers below are the only code that
// reinterprets region bytes; everything else navigates through them.

func (a *Allocator) tagAt(off int) uint32 {
	return binary.LittleEndian.Uint32(a.mem[off:])
}

func (a *Allocator) putTag(off int, tag uint32) {
	binary.LittleEndian.PutUint32(a.mem[off:], tag)
}

func (a *Allocator) headerOf(p int) int {
	return p - WordSize
}

func (a *Allocator) footerOf(p int) int {
	return p + a.sizeAt(a.headerOf(p)) - DoubleSize
}

func (a *Allocator) sizeAt(tagOff int) int {
	return int(a.tagAt(tagOff) & tagSizeMask)
}

func (a *Allocator) allocatedAt(tagOff int) bool {
	return a.tagAt(tagOff)&allocatedBit != 0
}

// setTags writes matching header and footer tags for the block whose payload
// starts at p.
func (a *Allocator) setTags(p, size int, allocated bool) {
	tag := packTag(size, allocated)
	a.putTag(p-WordSize, tag)
	a.putTag(p+size-DoubleSize, tag)
}

// nextBlock returns the payload offset of the physically following block.
func (a *Allocator) nextBlock(p int) int {
	return p + a.sizeAt(p-WordSize)
}

// prevBlock returns the payload offset of the physically preceding block,
// located through that block's footer.
func (a *Allocator) prevBlock(p int) int {
	return p - a.sizeAt(p-DoubleSize)
}

// Free-list links live in the first sixteen bytes of a free block's payload and
// are only meaningful while the block is free. They hold payload offsets; offset
// 0 is the region's alignment pad and stands in for a nil link.

func (a *Allocator) nextFreeOf(p int) int {
	return int(binary.LittleEndian.Uint64(a.mem[p:]))
}

func (a *Allocator) setNextFree(p, next int) {
	binary.LittleEndian.PutUint64(a.mem[p:], uint64(next))
}

func (a *Allocator) prevFreeOf(p int) int {
	return int(binary.LittleEndian.Uint64(a.mem[p+DoubleSize:]))
}

func (a *Allocator) setPrevFree(p, prev int) {
	binary.LittleEndian.PutUint64(a.mem[p+DoubleSize:], uint64(prev))
}
