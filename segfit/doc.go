// Package segfit implements a dynamic storage allocator over a single
// growable byte region. Blocks carry boundary tags (a header and footer word
// packing size and allocation state), free blocks are indexed by segregated
// size-class lists with intrusive links stored in the free payload bytes, and
// placement follows a bounded best-fit policy with optional alternating and
// size-based placement heuristics.
//
// The allocator deals in payload offsets rather than raw pointers: offsets
// remain valid when the region's backing memory moves during growth, and
// Payload converts an offset into the caller-owned bytes.
//
// Package segfit is not goroutine-safe. Callers that share a heap across
// goroutines must serialize access themselves.
package segfit
