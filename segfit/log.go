package segfit

import "golang.org/x/exp/slog"

// LogAllocations walks the live allocations in address order and hands each
// one to logFunc. A nil logger uses the logger the heap was built with.
func (a *Allocator) LogAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset, size int)) {
	if logger == nil {
		logger = a.logger
	}

	a.visitBlocks(func(p, size int, free bool) {
		if !free {
			logFunc(logger, p, size)
		}
	})
}
