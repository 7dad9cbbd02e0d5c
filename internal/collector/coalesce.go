package collector

// coalesce is coalesce_all_free_pages (spec.md §4.5): return any page
// left entirely GREEN by sweep to the empty-pages list and merge
// adjacent holes.
func (l *Loop) coalesce() {
	l.alloc.CoalesceAllFreePages()
}
