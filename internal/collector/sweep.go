package collector

// sweep is recycle_all_garbage (spec.md §4.5): disable the write
// barrier — every reachable object is BLACK by now, so mutators can no
// longer observe a stale WHITE pointer — then retag every surviving
// WHITE object GREEN and return it to its group's free list.
func (l *Loop) sweep() {
	l.vector.Disable()
	l.vector.Clear()
	l.alloc.RecycleAll()
}
