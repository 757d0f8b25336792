// Package dedup implements the CommandDeduplicator: a bounded, per-symbol,
// insertion-ordered set of command ids. Grounded directly in the original
// Python source's `_dedup = defaultdict(lambda: deque(maxlen=100000))` /
// `already_processed`.
package dedup

import "container/list"

// Deduplicator holds one bounded FIFO set of command ids per symbol.
// Accessed only from the command loop's goroutine (spec.md §5), so it does
// not need its own locking.
type Deduplicator struct {
	capacity int
	bySymbol map[string]*perSymbol
}

type perSymbol struct {
	order *list.List               // FIFO of ids, oldest at Front
	seen  map[string]*list.Element // id -> its node in order
}

// New creates a Deduplicator with capacity ids tracked per symbol.
func New(capacity int) *Deduplicator {
	return &Deduplicator{capacity: capacity, bySymbol: make(map[string]*perSymbol)}
}

// SeenOrRecord returns true if id was already recorded for symbol.
// Otherwise it records id and returns false. An empty id is never recorded
// and always returns false: dedup is opt-in per command, as spec.md §4.5
// requires.
func (d *Deduplicator) SeenOrRecord(symbol, id string) bool {
	if id == "" {
		return false
	}

	ps, ok := d.bySymbol[symbol]
	if !ok {
		ps = &perSymbol{order: list.New(), seen: make(map[string]*list.Element)}
		d.bySymbol[symbol] = ps
	}

	if _, ok := ps.seen[id]; ok {
		return true
	}

	elem := ps.order.PushBack(id)
	ps.seen[id] = elem
	if ps.order.Len() > d.capacity {
		oldest := ps.order.Front()
		ps.order.Remove(oldest)
		delete(ps.seen, oldest.Value.(string))
	}
	return false
}
