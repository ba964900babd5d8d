package fulfillment

import "sync"

// orderLocks serializes mutations per order id so concurrent confirmations or
// generation requests for the same order cannot interleave. Cross-order
// operations need no coordination.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*entry)}
}

// lock acquires the per-order mutex and returns its release func. Entries are
// reference-counted and removed when the last holder releases, so the map
// does not grow with order volume.
func (l *orderLocks) lock(orderID string) func() {
	l.mu.Lock()
	e, ok := l.locks[orderID]
	if !ok {
		e = &entry{}
		l.locks[orderID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, orderID)
		}
		l.mu.Unlock()
	}
}
