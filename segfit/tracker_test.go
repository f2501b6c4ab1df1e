package segfit_test

import (
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"

	"github.com/anvilworks/segheap/segfit"
)

func TestSizeTrackerTop(t *testing.T) {
	tracker := segfit.NewSizeTracker()

	for i := 0; i < 5; i++ {
		tracker.Record(40)
	}
	for i := 0; i < 3; i++ {
		tracker.Record(200)
	}
	tracker.Record(5000)

	require.Equal(t, 9, tracker.Total())

	top := tracker.Top(2)
	require.Len(t, top, 2)
	require.Equal(t, segfit.SizeBucket{MinSize: 32, MaxSize: 63, Count: 5}, top[0])
	require.Equal(t, segfit.SizeBucket{MinSize: 192, MaxSize: 223, Count: 3}, top[1])
}

func TestSizeTrackerTiesBreakBySize(t *testing.T) {
	tracker := segfit.NewSizeTracker()

	tracker.Record(500)
	tracker.Record(40)

	top := tracker.Top(10)
	require.Len(t, top, 2)
	require.Equal(t, 32, top[0].MinSize)
	require.Equal(t, 480, top[1].MinSize)
}

func TestSizeTrackerReset(t *testing.T) {
	tracker := segfit.NewSizeTracker()

	tracker.Record(40)
	tracker.Reset()

	require.Zero(t, tracker.Total())
	require.Empty(t, tracker.Top(10))
}

func TestSizeTrackerReportJson(t *testing.T) {
	tracker := segfit.NewSizeTracker()
	tracker.Record(40)
	tracker.Record(40)
	tracker.Record(5000)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	tracker.ReportJson(obj)
	obj.End()
	require.NoError(t, writer.Error())

	var doc struct {
		TotalRequests int
		Buckets       []struct {
			MinSize int
			MaxSize int
			Count   int
		}
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &doc))

	require.Equal(t, 3, doc.TotalRequests)
	require.Len(t, doc.Buckets, 2)
	require.Equal(t, 2, doc.Buckets[0].Count)
}

func TestAllocatorRecordsSizes(t *testing.T) {
	cfg := segfit.DefaultConfig()
	cfg.TrackSizes = true

	region := segfit.NewSliceRegion(0)
	heap, err := segfit.New(region, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, heap.Tracker())

	for i := 0; i < 4; i++ {
		_, err = heap.Alloc(40)
		require.NoError(t, err)
	}
	_, err = heap.Alloc(700)
	require.NoError(t, err)

	require.Equal(t, 5, heap.Tracker().Total())

	top := heap.Tracker().Top(1)
	require.Len(t, top, 1)
	require.Equal(t, 4, top[0].Count)
}

func TestTrackerDisabledByDefault(t *testing.T) {
	heap, _ := newTestHeap(t, 0)
	require.Nil(t, heap.Tracker())
}
