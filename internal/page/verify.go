package page

import "github.com/pkg/errors"

// ErrInvariantViolation is returned by Verify when the partition's
// internal bookkeeping is inconsistent; spec.md §7 treats this as fatal.
var ErrInvariantViolation = errors.New("page: invariant violation")

// Verify checks that the count of pages whose owner is OwnerEmpty
// matches the total reported by the empty-pages list. It does not check
// that non-empty pages name a valid group owner, nor that their Base
// values agree with the owning object.
func (p *Partition) Verify() error {
	emptyPages := 0
	for i := range p.pages {
		if p.pages[i].Owner == OwnerEmpty {
			emptyPages++
		}
	}
	if want := p.EmptyPageTotal(); want != emptyPages {
		return errors.Wrapf(ErrInvariantViolation,
			"empty-pages list reports %d pages but %d pages are marked empty", want, emptyPages)
	}
	return nil
}
