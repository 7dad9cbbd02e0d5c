package rtgc

import "github.com/pkg/errors"

// Sentinel errors for the three failure kinds spec.md §7 names. Match
// with errors.Cause (pkg/errors v0.8.1 predates stdlib errors.Is
// wrapping, so Cause is the teacher-era idiom) or plain ==.
var (
	// ErrOutOfMemory is OUT_OF_MEMORY: the allocator could not satisfy
	// a request from either the free list or the empty-pages list.
	// The only externally visible failure during normal operation.
	ErrOutOfMemory = errors.New("rtgc: out of memory")

	// ErrInvariantViolation is INVARIANT_VIOLATION: an internal
	// consistency check failed (counter mismatch, dangling link,
	// impossible color transition). Fatal — continuing would corrupt
	// later cycles.
	ErrInvariantViolation = errors.New("rtgc: invariant violation")

	// ErrWhiteEscape is WHITE_ESCAPE: in DebugMode, a store published
	// a pointer (the new value) to a still-WHITE in-partition object
	// while the barrier was enabled. Fatal in DebugMode; outside
	// DebugMode this is never raised.
	ErrWhiteEscape = errors.New("rtgc: white escape")
)
