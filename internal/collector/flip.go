package collector

// flip is step one of Cycle (spec.md §4.5): swap every group's
// white/black meaning via group.Allocator.Flip, then hand every
// mutator a fresh consistent snapshot of its roots before turning the
// write barrier on. The collector only needs to suspend mutators for
// the duration of the snapshot — group.Flip itself only touches list
// head pointers under each group's own lock, not mutator state.
func (l *Loop) flip() {
	l.alloc.Flip()

	l.mutators.SuspendAll()
	l.vector.Enable()
	l.mutators.ResumeAll()
}
