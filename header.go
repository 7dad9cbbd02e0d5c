package rtgc

import (
	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/mark"
)

// StorageClass tells the marker how to interpret an object's payload
// (spec.md §3). Re-exported here because internal/header is not
// importable outside this module — a host wires allocations against
// these constants, never against internal/header directly.
type StorageClass = header.StorageClass

const (
	// NoPointers objects carry no outgoing pointers; the marker never
	// scans their payload.
	NoPointers = header.NoPointers
	// Pointers objects are scanned conservatively: every aligned word
	// of the payload is a pointer candidate.
	Pointers = header.Pointers
	// Metadata objects fall back to a conservative scan unless the
	// Heap was given an InstanceScanner.
	Metadata = header.Metadata
	// Instance objects fall back to a conservative scan unless the
	// Heap was given an InstanceScanner (spec.md §9's open extension
	// point for per-class precise scanning).
	Instance = header.Instance
)

// Color is the tri-color-plus-GREEN state of a managed object
// (spec.md §3), re-exported for hosts that want to inspect object
// state through debug/inspection hooks.
type Color = header.Color

const (
	White = header.White
	Gray  = header.Gray
	Black = header.Black
	Green = header.Green
)

// InstanceScanner is the per-class precise-scan extension point
// spec.md §9 leaves open for METADATA/INSTANCE storage classes. A host
// that knows its own object layouts may supply one to InitRealtimeGC;
// the default (nil) falls back to conservative scanning.
type InstanceScanner = mark.InstanceScanner
// (kept as a type alias rather than a wrapper interface so a host's
// own InstanceScanner implementation satisfies both this and
// internal/mark.InstanceScanner without an adapter type.)
