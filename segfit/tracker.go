package segfit

import (
	"sort"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// trackerBucketBytes is the width of a size-frequency bucket.
const trackerBucketBytes = 32

// SizeTracker records how often each request size range is allocated. Workload
// histograms from it feed tuning of the pre-partition and size-class knobs.
type SizeTracker struct {
	buckets *swiss.Map[int, int]
	total   int
}

// SizeBucket is one row of a tracker report: the inclusive byte range it
// covers and how many requests landed in it.
type SizeBucket struct {
	MinSize int
	MaxSize int
	Count   int
}

func NewSizeTracker() *SizeTracker {
	return &SizeTracker{
		buckets: swiss.NewMap[int, int](64),
	}
}

// Record notes one allocation request of the given payload size.
func (t *SizeTracker) Record(size int) {
	if size < 0 {
		return
	}

	index := size / trackerBucketBytes
	count, _ := t.buckets.Get(index)
	t.buckets.Put(index, count+1)
	t.total++
}

// Total returns the number of requests recorded since the last Reset.
func (t *SizeTracker) Total() int {
	return t.total
}

// Top returns the n most frequent size buckets, ordered by descending count
// with smaller sizes first among ties.
func (t *SizeTracker) Top(n int) []SizeBucket {
	rows := make([]SizeBucket, 0, t.buckets.Count())
	t.buckets.Iter(func(index, count int) bool {
		rows = append(rows, SizeBucket{
			MinSize: index * trackerBucketBytes,
			MaxSize: (index+1)*trackerBucketBytes - 1,
			Count:   count,
		})
		return false
	})

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].MinSize < rows[j].MinSize
	})

	if n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

// Reset discards all recorded requests.
func (t *SizeTracker) Reset() {
	t.buckets = swiss.NewMap[int, int](64)
	t.total = 0
}

// ReportJson populates a JSON object with the tracker's full histogram,
// most-frequent buckets first.
func (t *SizeTracker) ReportJson(json jwriter.ObjectState) {
	json.Name("TotalRequests").Int(t.total)

	arrayState := json.Name("Buckets").Array()
	defer arrayState.End()

	for _, row := range t.Top(t.buckets.Count()) {
		obj := arrayState.Object()

		obj.Name("MinSize").Int(row.MinSize)
		obj.Name("MaxSize").Int(row.MaxSize)
		obj.Name("Count").Int(row.Count)

		obj.End()
	}
}
