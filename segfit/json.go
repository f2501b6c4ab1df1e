package segfit

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/anvilworks/segheap/heaputils"
)

// HeapJson populates a JSON object with a detailed map of the heap: summary
// statistics followed by every block in address order.
func (a *Allocator) HeapJson(json jwriter.ObjectState) {
	var stats heaputils.DetailedStatistics
	stats.Clear()
	a.AddDetailedStatistics(&stats)

	json.Name("TotalBytes").Int(stats.HeapBytes)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("FreeRanges").Int(stats.FreeRangeCount)
	json.Name("FreeBytes").Int(a.freeBytes)

	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	a.visitBlocks(func(p, size int, free bool) {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(p)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("Free")
		} else {
			obj.Name("Type").String("Allocated")
		}
	})
}
