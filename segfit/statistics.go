package segfit

import "github.com/anvilworks/segheap/heaputils"

// heapOverhead is the fixed cost of the sentinels: the alignment pad, the
// prologue block, and the epilogue header.
const heapOverhead = 4 * WordSize

// visitBlocks calls visit for every block between the sentinels, in address
// order.
func (a *Allocator) visitBlocks(visit func(p, size int, free bool)) {
	for p := a.nextBlock(a.base); a.sizeAt(a.headerOf(p)) > 0; p = a.nextBlock(p) {
		size := a.sizeAt(a.headerOf(p))
		visit(p, size, !a.allocatedAt(a.headerOf(p)))
	}
}

// AddStatistics sums this heap's coarse statistics into stats. It runs in
// constant time from maintained counters.
func (a *Allocator) AddStatistics(stats *heaputils.Statistics) {
	stats.HeapBytes += len(a.mem)
	stats.AllocationCount += a.allocCount
	stats.AllocationBytes += len(a.mem) - a.freeBytes - heapOverhead
}

// AddDetailedStatistics sums this heap's per-range statistics into stats by
// walking every block.
func (a *Allocator) AddDetailedStatistics(stats *heaputils.DetailedStatistics) {
	stats.HeapBytes += len(a.mem)

	a.visitBlocks(func(p, size int, free bool) {
		if free {
			stats.AddFreeRange(size)
		} else {
			stats.AddAllocation(size)
		}
	})
}
