package segfit

import (
	"github.com/anvilworks/segheap/heaputils"
	"github.com/cockroachdb/errors"
)

// Config carries the policy knobs of a heap. Every field has a usable zero
// value; DefaultConfig returns the settings the allocator was tuned with.
type Config struct {
	// ChunkSize is the minimum number of bytes the region grows by when the
	// free lists cannot satisfy a request. It must be a power of two. 0 uses
	// the region's page size.
	ChunkSize int

	// FitDepth bounds the per-list fit search once it has a candidate: the scan
	// of a list stops as soon as a candidate is known and FitDepth nodes of that
	// list, counted from its head, have been examined. 0 degrades the search to
	// first fit within a class; a negative value scans whole lists for a true
	// best fit.
	FitDepth int

	// ReallocBuffer multiplies the requested size when Realloc has to relocate,
	// pre-sizing the new block to dampen future reallocations. Must be at
	// least 1; 1 disables buffering.
	ReallocBuffer float64

	// ReallocSplitThreshold is the smallest remainder Realloc will split off
	// when a block shrinks or absorbs a neighbour. Larger thresholds trade
	// space for less churn. 0 uses ChunkSize.
	ReallocSplitThreshold int

	// AlternatePlacement flips the placement side on every region extension,
	// so successive extensions fill from opposite ends of their free blocks.
	AlternatePlacement bool

	// RightPlaceThreshold places requests whose adjusted block size is at least
	// this many bytes at the high end of their free block. 0 disables size-based
	// right placement.
	RightPlaceThreshold int

	// PrepartitionCount carves this many blocks of PrepartitionSize bytes out
	// of the initial free block at construction. 0 disables pre-partitioning.
	PrepartitionCount int

	// PrepartitionSize is the block size used by pre-partitioning. It must be
	// a multiple of 8 and large enough to hold free-list links.
	PrepartitionSize int

	// ClassCount is the number of segregated size classes. 0 uses
	// DefaultClassCount; values below MinClassCount are rejected.
	ClassCount int

	// TrackSizes enables the allocation size-frequency tracker.
	TrackSizes bool
}

// DefaultConfig returns the tuning the allocator ships with: unbounded best-fit
// within searched classes, no relocation buffering, and every heuristic off.
func DefaultConfig() Config {
	return Config{
		FitDepth:      -1,
		ReallocBuffer: 1,
	}
}

func (c *Config) applyDefaults(region Region) {
	if c.ChunkSize == 0 {
		c.ChunkSize = region.PageSize()
	}
	if c.ReallocSplitThreshold == 0 {
		c.ReallocSplitThreshold = c.ChunkSize
	}
	if c.ClassCount == 0 {
		c.ClassCount = DefaultClassCount
	}
	if c.ReallocBuffer == 0 {
		c.ReallocBuffer = 1
	}
}

func (c *Config) validate() error {
	err := heaputils.CheckPow2(uint(c.ChunkSize), "ChunkSize")
	if err != nil {
		return err
	}

	if c.ChunkSize < minFreeBlock {
		return errors.Newf("ChunkSize is %d bytes, but the region cannot grow by less than %d", c.ChunkSize, minFreeBlock)
	}

	if c.ClassCount < MinClassCount {
		return errors.Newf("ClassCount is %d, but at least %d size classes are required", c.ClassCount, MinClassCount)
	}

	if c.ReallocBuffer < 1 {
		return errors.Newf("ReallocBuffer is %f, but values below 1 would shrink relocated blocks", c.ReallocBuffer)
	}

	if c.ReallocSplitThreshold < minFreeBlock {
		return errors.Newf("ReallocSplitThreshold is %d bytes, but a split remainder cannot be smaller than %d", c.ReallocSplitThreshold, minFreeBlock)
	}

	if c.PrepartitionCount < 0 {
		return errors.Newf("PrepartitionCount is %d, which is not a block count", c.PrepartitionCount)
	}

	if c.PrepartitionCount > 0 {
		if c.PrepartitionSize%DoubleSize != 0 {
			return errors.Newf("PrepartitionSize is %d bytes, which is not a multiple of %d", c.PrepartitionSize, DoubleSize)
		}
		if c.PrepartitionSize < minFreeBlock {
			return errors.Newf("PrepartitionSize is %d bytes, but free blocks cannot be smaller than %d", c.PrepartitionSize, minFreeBlock)
		}
	}

	if c.RightPlaceThreshold < 0 {
		return errors.Newf("RightPlaceThreshold is %d, which is not a block size", c.RightPlaceThreshold)
	}

	return nil
}
