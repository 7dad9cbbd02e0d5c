package group

import "github.com/pkg/errors"

// ErrInvariantViolation is returned by Verify when a group's or the
// big-object list's bookkeeping counters disagree with spec.md §8's
// accounting invariant: green + black + gray + white == total.
var ErrInvariantViolation = errors.New("group: invariant violation")

// Verify checks every fixed group's and the big-object list's counter
// invariant. Intended for tests and debug builds, not the steady-state
// allocation/collection path — it takes every group's locks in turn.
func (a *Allocator) Verify() error {
	for i := range a.groups {
		g := &a.groups[i]
		g.freeLock.Lock()
		g.colorLock.Lock()
		sum := g.GreenCount + g.BlackCount + g.GrayCount + g.WhiteCount
		total := g.TotalObjectCount
		g.colorLock.Unlock()
		g.freeLock.Unlock()

		if sum != total {
			return errors.Wrapf(ErrInvariantViolation,
				"group %d: green+black+gray+white=%d but total=%d", g.Index, sum, total)
		}
	}

	b := &a.big
	b.mu.Lock()
	bigSum := b.blackCount + b.grayCount + b.whiteCount
	b.mu.Unlock()
	if bigSum < 0 {
		return errors.Wrap(ErrInvariantViolation, "big objects: negative count")
	}

	return nil
}
