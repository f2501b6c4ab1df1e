package segfit

import (
	"github.com/anvilworks/segheap/heaputils"
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
)

// Validate performs a full consistency check of the heap: sentinel integrity,
// tag agreement, alignment, coalescing completeness, and agreement between the
// segregated index and the physical block chain. It returns an error
// describing the first violation found. The walk touches every block, so it is
// expensive; release builds should only reach it through CheckConsistency or
// the debug_heap_utils build tag.
func (a *Allocator) Validate() error {
	if len(a.mem) != a.region.Size() {
		return errors.Newf("the heap sees %d region bytes but the region holds %d", len(a.mem), a.region.Size())
	}

	if a.tagAt(0) != 0 {
		return errors.New("the alignment pad has been overwritten")
	}

	prologueHeader := a.headerOf(a.base)
	if a.sizeAt(prologueHeader) != DoubleSize || !a.allocatedAt(prologueHeader) {
		return errors.New("the prologue header is damaged")
	}
	if a.tagAt(prologueHeader) != a.tagAt(a.footerOf(a.base)) {
		return errors.New("the prologue header and footer disagree")
	}

	// First pass: walk every segregated list, checking link integrity and
	// class placement, and remember each member for the physical pass.
	freeSet := swiss.NewMap[int, struct{}](uint32(a.freeCount + 1))
	listCount := 0
	listBytes := 0

	for index, head := range a.segLists {
		prev := 0
		for p := head; p != 0; p = a.nextFreeOf(p) {
			if p < a.base+DoubleSize || p >= len(a.mem) {
				return errors.Newf("free list %d contains offset %d, which is outside the heap", index, p)
			}
			if a.allocatedAt(a.headerOf(p)) {
				return errors.Newf("the block at offset %d is in free list %d but is marked allocated", p, index)
			}
			if a.prevFreeOf(p) != prev {
				return errors.Newf("the block at offset %d has a broken reverse link in free list %d", p, index)
			}

			size := a.sizeAt(a.headerOf(p))
			if classForSize(size, len(a.segLists)) != index {
				return errors.Newf("the block at offset %d has size %d and belongs in class %d, but was found in class %d",
					p, size, classForSize(size, len(a.segLists)), index)
			}

			if _, seen := freeSet.Get(p); seen {
				return errors.Newf("the block at offset %d appears in the segregated index more than once", p)
			}
			freeSet.Put(p, struct{}{})
			listCount++
			listBytes += size
			prev = p
		}
	}

	// Second pass: walk the physical chain between the sentinels.
	physFree := 0
	physAlloc := 0
	prevWasFree := false

	p := a.nextBlock(a.base)
	for a.sizeAt(a.headerOf(p)) > 0 {
		size := a.sizeAt(a.headerOf(p))

		if p%DoubleSize != 0 {
			return errors.Newf("the block at offset %d is not payload-aligned", p)
		}
		if size%DoubleSize != 0 {
			return errors.Newf("the block at offset %d has size %d, which is not a multiple of %d", p, size, DoubleSize)
		}
		if p+size-WordSize > len(a.mem) {
			return errors.Newf("the block at offset %d has size %d and runs past the end of the heap", p, size)
		}
		if a.tagAt(a.headerOf(p)) != a.tagAt(a.footerOf(p)) {
			return errors.Newf("the block at offset %d has disagreeing header and footer tags", p)
		}

		if a.allocatedAt(a.headerOf(p)) {
			if size < minAllocBlock {
				return errors.Newf("the allocated block at offset %d has size %d, below the allocated minimum %d", p, size, minAllocBlock)
			}
			physAlloc++
			prevWasFree = false
		} else {
			if size < minFreeBlock {
				return errors.Newf("the free block at offset %d has size %d, below the free minimum %d", p, size, minFreeBlock)
			}
			// Pre-partitioning deliberately seeds adjacent free blocks, so the
			// coalescing-completeness check only applies without it.
			if prevWasFree && a.cfg.PrepartitionCount == 0 {
				return errors.Newf("the free block at offset %d follows another free block; coalescing missed them", p)
			}
			if _, ok := freeSet.Get(p); !ok {
				return errors.Newf("the free block at offset %d is missing from the segregated index", p)
			}
			physFree++
			prevWasFree = true
		}

		p = a.nextBlock(p)
	}

	if a.headerOf(p) != len(a.mem)-WordSize {
		return errors.Newf("the physical walk ended at offset %d instead of the epilogue", a.headerOf(p))
	}
	if !a.allocatedAt(a.headerOf(p)) {
		return errors.New("the epilogue header is not marked allocated")
	}

	if physFree != listCount {
		return errors.Newf("the heap holds %d free blocks but the segregated index holds %d", physFree, listCount)
	}
	if physAlloc != a.allocCount {
		return errors.Newf("the allocation count is %d but the heap holds %d allocated blocks", a.allocCount, physAlloc)
	}
	if listCount != a.freeCount {
		return errors.Newf("the free block count is %d but the segregated index holds %d blocks", a.freeCount, listCount)
	}
	if listBytes != a.freeBytes {
		return errors.Newf("the free byte count is %d but the segregated index holds %d bytes", a.freeBytes, listBytes)
	}

	return nil
}

// CheckConsistency reports whether every heap invariant currently holds.
func (a *Allocator) CheckConsistency() bool {
	return a.Validate() == nil
}

// CheckCorruption verifies the anti-corruption marker stamped after every live
// allocation's payload. Markers only exist when the package is built with the
// debug_heap_utils tag; without it this method returns nil immediately.
func (a *Allocator) CheckCorruption() error {
	if heaputils.DebugMargin == 0 {
		return nil
	}

	var corrupt error
	a.visitBlocks(func(p, size int, free bool) {
		if free || corrupt != nil {
			return
		}
		if !heaputils.ValidateMagicValue(a.mem, p+size-DoubleSize-heaputils.DebugMargin) {
			corrupt = errors.Newf("memory corruption detected after the allocation at offset %d", p)
		}
	})

	return corrupt
}
