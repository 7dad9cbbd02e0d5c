package interfaces

// MutatorController is the one collaborator the core requires from its
// host (spec.md §6): a way to enumerate every registered mutator thread
// and drive all of them through a synchronous suspend/resume handshake
// at flip, so the collector can read a consistent snapshot of each
// thread's roots. The concrete mechanism — signals, polled safepoints,
// anything else — is the host's choice; the core only depends on this
// contract.
type MutatorController interface {
	// Threads returns every currently registered mutator handle.
	Threads() []MutatorHandle

	// SuspendAll blocks until every registered thread has captured a
	// consistent snapshot of its roots into its own handle. Must not
	// return before every thread acknowledges.
	SuspendAll()

	// ResumeAll releases every thread most recently suspended by
	// SuspendAll.
	ResumeAll()
}

// MutatorHandle exposes one suspended mutator thread's root range for
// the marker to scan. Registers and SavedStack both describe
// [lo, hi) byte ranges of a snapshot buffer the controller captured;
// either may be empty (lo == hi) if the controller's suspension
// mechanism has nothing to report for that range.
type MutatorHandle interface {
	// Registers returns the address range of the thread's saved
	// register file, or (0, 0) if the controller cannot capture one.
	Registers() (lo, hi uintptr)

	// SavedStack returns the address range of the thread's saved
	// stack snapshot captured at the most recent SuspendAll.
	SavedStack() (lo, hi uintptr)
}
