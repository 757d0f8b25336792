// Package book implements the price-time-priority limit order book: the
// PriceLevelIndex (an ordered price -> FIFO queue container) and the
// OrderBook built on top of it.
//
// Grounded in the teacher's internal/engine/orderbook.go (btree.BTreeG of
// *PriceLevel), corrected per spec.md's documented known defects: opposite
// side selection in the match loop always matches the taker's side to the
// correct resting side, and cancel only ever checks the order's own
// liveness via the order index.
package book

import (
	"github.com/tidwall/btree"

	"github.com/saiputravu/matchd/internal/common"
)

// PriceLevel is a FIFO queue of resting orders at one price. Every order in
// Orders shares Price and Side; ordering is by ascending Seq.
type PriceLevel struct {
	Price  common.Ticks
	Orders []*common.Order
}

// aggQty sums the quantity of every (necessarily positive) resting order at
// this level.
func (l *PriceLevel) aggQty() uint64 {
	var q uint64
	for _, o := range l.Orders {
		q += o.Qty
	}
	return q
}

// priceLevels is the ordered container for one side of the book: a balanced
// tree keyed by Ticks, giving O(log P) insertion/removal and O(1) access to
// the best price. Empty levels are dropped eagerly so Best never has to
// skip anything.
type priceLevels struct {
	tree *btree.BTreeG[*PriceLevel]
}

func newBidLevels() *priceLevels {
	// Sorted highest-first: the best bid is the tree minimum.
	return &priceLevels{tree: btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})}
}

func newAskLevels() *priceLevels {
	// Sorted lowest-first: the best ask is the tree minimum.
	return &priceLevels{tree: btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})}
}

func (p *priceLevels) get(price common.Ticks) (*PriceLevel, bool) {
	return p.tree.Get(&PriceLevel{Price: price})
}

// getOrCreate fetches the level at price, creating an empty one if absent.
func (p *priceLevels) getOrCreate(price common.Ticks) *PriceLevel {
	if lvl, ok := p.tree.Get(&PriceLevel{Price: price}); ok {
		return lvl
	}
	lvl := &PriceLevel{Price: price}
	p.tree.Set(lvl)
	return lvl
}

// best returns the most aggressive resting level on this side, or false if
// the side is empty.
func (p *priceLevels) best() (*PriceLevel, bool) {
	return p.tree.Min()
}

// dropIfEmpty removes lvl from the tree once its queue has drained.
func (p *priceLevels) dropIfEmpty(lvl *PriceLevel) {
	if len(lvl.Orders) == 0 {
		p.tree.Delete(lvl)
	}
}

// snapshot returns up to depth levels from best outward, as (price, aggQty)
// pairs.
func (p *priceLevels) snapshot(depth int) []LevelView {
	out := make([]LevelView, 0, depth)
	p.tree.Scan(func(lvl *PriceLevel) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, LevelView{Price: lvl.Price, Qty: lvl.aggQty()})
		return true
	})
	return out
}

// LevelView is the read-only (price, aggregate quantity) pair returned by
// TopOfBook and Snapshot.
type LevelView struct {
	Price common.Ticks
	Qty   uint64
}
