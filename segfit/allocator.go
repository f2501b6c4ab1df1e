package segfit

import (
	"math"

	"github.com/anvilworks/segheap/heaputils"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Allocator manages a single growable heap region with boundary-tagged blocks
// and segregated free lists. It is not safe for concurrent use.
//
// Payload offsets play the role pointers do in a native heap: Alloc and Realloc
// return the offset of a payload within the region, Payload turns an offset
// into the backing bytes, and offset 0 means "no block". Offsets stay valid
// across region growth even when the backing slice moves.
type Allocator struct {
	region Region
	cfg    Config
	logger *slog.Logger

	// mem aliases region.Bytes and is refreshed after every Grow.
	mem []byte

	segLists []int
	// base is the payload offset of the prologue sentinel.
	base int
	// alt selects the placement side; it flips on each region extension when
	// AlternatePlacement is configured.
	alt bool

	allocCount int
	freeCount  int
	freeBytes  int

	tracker *SizeTracker
}

var _ heaputils.Validatable = &Allocator{}

// New initializes a heap inside an empty region: an alignment pad, the
// prologue and epilogue sentinels, and one ChunkSize free block. The provided
// Config is defaulted and validated; a nil logger falls back to slog.Default().
func New(region Region, cfg Config, logger *slog.Logger) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if region.Size() != 0 {
		return nil, errors.Newf("the provided region already holds %d bytes, but a heap must start from an empty region", region.Size())
	}

	cfg.applyDefaults(region)
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		region:   region,
		cfg:      cfg,
		logger:   logger,
		segLists: make([]int, cfg.ClassCount),
	}

	if cfg.TrackSizes {
		a.tracker = NewSizeTracker()
	}

	base, err := region.Grow(4 * WordSize)
	if err != nil {
		return nil, err
	}
	if base != 0 {
		return nil, errors.Newf("the region reported offset %d for its first extension", base)
	}
	a.mem = region.Bytes()

	a.putTag(0, 0)
	a.putTag(1*WordSize, packTag(DoubleSize, true))
	a.putTag(2*WordSize, packTag(DoubleSize, true))
	a.putTag(3*WordSize, packTag(0, true))
	a.base = 2 * WordSize

	first, err := a.extendHeap(a.cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	if cfg.PrepartitionCount > 0 {
		a.prepartition(first)
	}

	heaputils.DebugValidate(a)
	return a, nil
}

// adjustSize converts a payload request into a total block size: header and
// footer overhead added, rounded up to payload alignment, plus the debug
// margin in instrumented builds. The result is never below the free minimum,
// so any allocated block can later rejoin the free lists with room for its
// intrusive links.
func (a *Allocator) adjustSize(n int) (int, error) {
	if n > math.MaxInt-4*DoubleSize-heaputils.DebugMargin {
		return 0, errors.Wrapf(heaputils.OutOfMemoryError, "a request of %d bytes cannot be sized on this platform", n)
	}

	asize := DoubleSize * ((n + DoubleSize + (DoubleSize - 1)) / DoubleSize)
	if asize < minFreeBlock {
		asize = minFreeBlock
	}
	return asize + heaputils.DebugMargin, nil
}

// Alloc reserves n payload bytes and returns their offset, which is always a
// multiple of 8. A request of 0 or fewer bytes returns offset 0 with no side
// effects. Failure to extend the region reports heaputils.OutOfMemoryError.
func (a *Allocator) Alloc(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	heaputils.DebugValidate(a)

	asize, err := a.adjustSize(n)
	if err != nil {
		return 0, err
	}

	p := a.findFit(asize)
	if p == 0 {
		extend := asize
		if extend < a.cfg.ChunkSize {
			extend = a.cfg.ChunkSize
		}

		p, err = a.extendHeap(extend)
		if err != nil {
			return 0, err
		}
	}

	p = a.place(p, asize)
	a.writeMargin(p)
	a.allocCount++
	if a.tracker != nil {
		a.tracker.Record(n)
	}

	heaputils.DebugValidate(a)
	return p, nil
}

// Free returns the block at payload offset p to the heap, merging it with any
// free neighbour. Freeing offset 0 is a no-op.
func (a *Allocator) Free(p int) error {
	if p == 0 {
		return nil
	}

	err := a.checkLiveBlock(p)
	if err != nil {
		return err
	}

	size := a.sizeAt(a.headerOf(p))
	a.setTags(p, size, false)
	a.coalesce(p)
	a.allocCount--

	heaputils.DebugValidate(a)
	return nil
}

// Realloc resizes the block at payload offset p to n payload bytes. It keeps
// the block in place when it can shrink or absorb a free neighbour, and only
// relocates as a last resort; the returned offset addresses a payload whose
// leading bytes match the old payload. Realloc(0, n) behaves as Alloc(n) and
// Realloc(p, 0) as Free(p).
func (a *Allocator) Realloc(p, n int) (int, error) {
	if p == 0 {
		return a.Alloc(n)
	}
	if n <= 0 {
		return 0, a.Free(p)
	}

	err := a.checkLiveBlock(p)
	if err != nil {
		return 0, err
	}

	asize, err := a.adjustSize(n)
	if err != nil {
		return 0, err
	}

	oldSize := a.sizeAt(a.headerOf(p))

	// Shrink in place.
	if asize <= oldSize {
		a.splitReallocRemainder(p, oldSize, asize)
		a.writeMargin(p)
		heaputils.DebugValidate(a)
		return p, nil
	}

	next := a.nextBlock(p)
	nextFree := !a.allocatedAt(a.headerOf(next))
	nextSize := a.sizeAt(a.headerOf(next))

	// Grow into the next block without moving the payload.
	if nextFree && oldSize+nextSize >= asize {
		a.unlinkFree(next)
		a.setTags(p, oldSize+nextSize, true)
		a.splitReallocRemainder(p, oldSize+nextSize, asize)
		a.writeMargin(p)

		heaputils.DebugValidate(a)
		return p, nil
	}

	if !a.allocatedAt(p - DoubleSize) {
		prev := a.prevBlock(p)
		prevSize := a.sizeAt(a.headerOf(prev))
		copyLen := minInt(oldSize-DoubleSize-heaputils.DebugMargin, n)

		// Grow downward into the previous block.
		if prevSize+oldSize >= asize {
			a.unlinkFree(prev)
			copy(a.mem[prev:prev+copyLen], a.mem[p:p+copyLen])
			a.setTags(prev, prevSize+oldSize, true)
			a.splitReallocRemainder(prev, prevSize+oldSize, asize)
			a.writeMargin(prev)

			heaputils.DebugValidate(a)
			return prev, nil
		}

		// Grow into both neighbours at once.
		if nextFree && prevSize+oldSize+nextSize >= asize {
			a.unlinkFree(prev)
			a.unlinkFree(next)
			copy(a.mem[prev:prev+copyLen], a.mem[p:p+copyLen])
			a.setTags(prev, prevSize+oldSize+nextSize, true)
			a.splitReallocRemainder(prev, prevSize+oldSize+nextSize, asize)
			a.writeMargin(prev)

			heaputils.DebugValidate(a)
			return prev, nil
		}
	}

	// No in-place case applies: relocate, pre-sized by the realloc buffer.
	grown := int(float64(n) * a.cfg.ReallocBuffer)
	if grown < n {
		grown = n
	}

	np, err := a.Alloc(grown)
	if err != nil {
		return 0, err
	}

	copyLen := minInt(oldSize-DoubleSize-heaputils.DebugMargin, n)
	copy(a.mem[np:np+copyLen], a.mem[p:p+copyLen])

	err = a.Free(p)
	if err != nil {
		return 0, err
	}

	return np, nil
}

// Payload returns the caller-owned bytes of the block at payload offset p. The
// slice is only valid until the next Alloc or Realloc call.
func (a *Allocator) Payload(p int) []byte {
	return a.mem[p : p+a.PayloadSize(p)]
}

// PayloadSize returns the usable byte count of the block at payload offset p,
// which may exceed the size originally requested. The debug margin, when
// present, sits past the reported payload and is not the caller's to write.
func (a *Allocator) PayloadSize(p int) int {
	return a.sizeAt(a.headerOf(p)) - DoubleSize - heaputils.DebugMargin
}

// writeMargin stamps the anti-corruption marker into the debug margin after
// the payload at p. No-op without the debug_heap_utils build tag.
func (a *Allocator) writeMargin(p int) {
	heaputils.WriteMagicValue(a.mem, p+a.PayloadSize(p))
}

// AllocationCount returns the number of live allocations.
func (a *Allocator) AllocationCount() int {
	return a.allocCount
}

// FreeBytes returns the number of bytes currently held in free blocks.
func (a *Allocator) FreeBytes() int {
	return a.freeBytes
}

// Tracker returns the size-frequency tracker, or nil when Config.TrackSizes
// was not set.
func (a *Allocator) Tracker() *SizeTracker {
	return a.tracker
}

// checkLiveBlock rejects offsets that cannot address a live allocation. The
// checks are cheap tag reads; a corrupted or forged offset past them is
// undefined behaviour, as in any boundary-tag heap.
func (a *Allocator) checkLiveBlock(p int) error {
	if p < a.base+DoubleSize || p >= len(a.mem) || p%DoubleSize != 0 {
		return errors.Newf("offset %d does not address a payload in this heap", p)
	}
	if !a.allocatedAt(a.headerOf(p)) {
		return errors.Newf("the block at offset %d is already free", p)
	}
	return nil
}

// extendHeap grows the region by at least the requested byte count, forms the
// new memory into one free block, and coalesces it with the block that was
// adjacent to the epilogue.
func (a *Allocator) extendHeap(bytes int) (int, error) {
	words := heaputils.DivideRoundUp(bytes, WordSize)
	if words%2 != 0 {
		words++
	}
	size := words * WordSize
	if size < minFreeBlock {
		size = minFreeBlock
	}

	p, err := a.region.Grow(size)
	if err != nil {
		return 0, err
	}
	a.mem = a.region.Bytes()

	// The new block's header lands on the old epilogue; a fresh epilogue is
	// written in the last word of the extension.
	a.setTags(p, size, false)
	a.putTag(a.headerOf(a.nextBlock(p)), packTag(0, true))

	if a.cfg.AlternatePlacement {
		a.alt = !a.alt
	}

	a.logger.Debug("extended heap region",
		slog.Int("bytes", size),
		slog.Int("offset", p),
		slog.Int("regionSize", len(a.mem)))

	return a.coalesce(p), nil
}

// coalesce merges the free block at p with whichever physical neighbours are
// free, inserts the result into its size class, and returns its payload
// offset. The sentinels guarantee both neighbour tags exist.
func (a *Allocator) coalesce(p int) int {
	prevAllocated := a.allocatedAt(p - DoubleSize)
	next := a.nextBlock(p)
	nextAllocated := a.allocatedAt(a.headerOf(next))
	size := a.sizeAt(a.headerOf(p))

	switch {
	case prevAllocated && nextAllocated:

	case prevAllocated && !nextAllocated:
		a.unlinkFree(next)
		size += a.sizeAt(a.headerOf(next))
		a.setTags(p, size, false)

	case !prevAllocated && nextAllocated:
		prev := a.prevBlock(p)
		a.unlinkFree(prev)
		size += a.sizeAt(a.headerOf(prev))
		p = prev
		a.setTags(p, size, false)

	default:
		prev := a.prevBlock(p)
		a.unlinkFree(prev)
		a.unlinkFree(next)
		size += a.sizeAt(a.headerOf(prev)) + a.sizeAt(a.headerOf(next))
		p = prev
		a.setTags(p, size, false)
	}

	a.insertFree(p)
	return p
}

// findFit searches the segregated index for a block of at least asize bytes,
// scanning size classes upward from the request's class. Within a list it
// tracks the smallest sufficient block, returns immediately on an exact match,
// and, once a candidate is known, gives up the scan when FitDepth nodes of the
// list (counted from its head) have been examined.
func (a *Allocator) findFit(asize int) int {
	best := 0
	bestSize := 0

	for index := classForSize(asize, len(a.segLists)); index < len(a.segLists); index++ {
		depth := 0

		for p := a.segLists[index]; p != 0; p = a.nextFreeOf(p) {
			if best != 0 && a.cfg.FitDepth >= 0 && depth >= a.cfg.FitDepth {
				break
			}

			size := a.sizeAt(a.headerOf(p))
			if size >= asize && (best == 0 || size < bestSize) {
				best = p
				bestSize = size

				if size == asize {
					return best
				}
			}

			depth++
		}

		if best != 0 {
			return best
		}
	}

	return 0
}

// place commits asize bytes of the free block at p, splitting off the
// remainder when it can stand alone as a free block. The allocated piece goes
// to the low side unless the placement policy chooses the high side. Returns
// the allocated payload offset.
func (a *Allocator) place(p, asize int) int {
	csize := a.sizeAt(a.headerOf(p))
	a.unlinkFree(p)

	remainder := csize - asize
	if remainder < minFreeBlock {
		a.setTags(p, csize, true)
		return p
	}

	if a.placeRight(asize) {
		a.setTags(p, remainder, false)
		allocated := p + remainder
		a.setTags(allocated, asize, true)
		a.insertFree(p)
		return allocated
	}

	a.setTags(p, asize, true)
	free := p + asize
	a.setTags(free, remainder, false)
	a.insertFree(free)
	return p
}

func (a *Allocator) placeRight(asize int) bool {
	if a.cfg.AlternatePlacement && a.alt {
		return true
	}
	return a.cfg.RightPlaceThreshold > 0 && asize >= a.cfg.RightPlaceThreshold
}

// splitReallocRemainder trims the block at p down to asize when the remainder
// clears the realloc split threshold. The threshold is deliberately coarser
// than the malloc split minimum so that repeated reallocations do not shave
// slivers off a block. The allocated piece always keeps the low side, where
// the caller's payload is anchored.
func (a *Allocator) splitReallocRemainder(p, total, asize int) {
	remainder := total - asize
	if remainder < a.cfg.ReallocSplitThreshold {
		return
	}

	a.setTags(p, asize, true)
	free := p + asize
	a.setTags(free, remainder, false)
	a.coalesce(free)
}

// prepartition carves the initial free block into PrepartitionCount blocks of
// PrepartitionSize bytes plus one remainder, seeding the small size classes.
func (a *Allocator) prepartition(p int) {
	carve := a.cfg.PrepartitionSize

	for i := 0; i < a.cfg.PrepartitionCount; i++ {
		csize := a.sizeAt(a.headerOf(p))
		if csize-carve < minFreeBlock {
			break
		}

		a.unlinkFree(p)
		a.setTags(p, carve, false)
		a.insertFree(p)

		rest := p + carve
		a.setTags(rest, csize-carve, false)
		a.insertFree(rest)
		p = rest
	}
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}
