package book

import (
	"errors"
	"time"

	"github.com/saiputravu/matchd/internal/common"
)

var (
	// ErrInvalidQuantity is returned when a LIMIT or MARKET order's quantity
	// is not strictly positive.
	ErrInvalidQuantity = errors.New("order quantity must be strictly positive")
	// ErrInvalidPrice is returned when a LIMIT order's price is not finite
	// and positive.
	ErrInvalidPrice = errors.New("limit price must be finite and positive")
)

type indexEntry struct {
	side  common.Side
	price common.Ticks
}

// OrderBook is the price-time-priority book for a single symbol: one
// priceLevels side for bids, one for asks, and an order index for O(1)
// cancel lookup.
//
// Invariant maintained throughout: no bid price >= any ask price at rest;
// any crossing limit is matched on insertion and only the unmatched
// residual rests.
type OrderBook struct {
	bids  *priceLevels
	asks  *priceLevels
	index map[uint64]indexEntry
}

func New() *OrderBook {
	return &OrderBook{
		bids:  newBidLevels(),
		asks:  newAskLevels(),
		index: make(map[uint64]indexEntry),
	}
}

// AddLimitResult is the outcome of AddLimit: the trades generated, in
// matching order, and the quantity that rested (0 if it fully matched, or
// if it was entirely consumed with nothing left to rest).
type AddLimitResult struct {
	Trades   []common.Trade
	Residual uint64
}

// AddLimit matches order against the opposite side while it crosses, then
// rests any residual quantity on its own side.
func (b *OrderBook) AddLimit(order *common.Order) (AddLimitResult, error) {
	if err := ValidateQuantity(order.Qty); err != nil {
		return AddLimitResult{}, err
	}
	if err := ValidatePrice(order.Price); err != nil {
		return AddLimitResult{}, err
	}

	var opposite, own *priceLevels
	if order.Side == common.Buy {
		opposite, own = b.asks, b.bids
	} else {
		opposite, own = b.bids, b.asks
	}

	trades := b.match(order, opposite, func(bestPrice common.Ticks) bool {
		if order.Side == common.Buy {
			return bestPrice <= order.Price
		}
		return bestPrice >= order.Price
	})

	if order.Qty > 0 {
		b.rest(own, order)
	}

	return AddLimitResult{Trades: trades, Residual: order.Qty}, nil
}

// AddMarketResult is the outcome of AddMarket: the trades generated. Any
// unmatched quantity is discarded; market orders never rest.
type AddMarketResult struct {
	Trades []common.Trade
}

// AddMarket sweeps the opposite side with no price guard until either the
// order is filled or the opposite side is exhausted.
func (b *OrderBook) AddMarket(order *common.Order) (AddMarketResult, error) {
	if err := ValidateQuantity(order.Qty); err != nil {
		return AddMarketResult{}, err
	}

	var opposite *priceLevels
	if order.Side == common.Buy {
		opposite = b.asks
	} else {
		opposite = b.bids
	}

	trades := b.match(order, opposite, func(common.Ticks) bool { return true })
	return AddMarketResult{Trades: trades}, nil
}

// match consumes the opposite side's best levels FIFO while taker has
// quantity remaining and crossable(bestPrice) holds. Each fill records a
// trade at the maker's price (maker price improvement for the taker).
func (b *OrderBook) match(taker *common.Order, opposite *priceLevels, crossable func(common.Ticks) bool) []common.Trade {
	var trades []common.Trade
	now := time.Now()

	for taker.Qty > 0 {
		lvl, ok := opposite.best()
		if !ok || !crossable(lvl.Price) {
			break
		}

		for taker.Qty > 0 && len(lvl.Orders) > 0 {
			maker := lvl.Orders[0]
			traded := min(taker.Qty, maker.Qty)
			taker.Qty -= traded
			maker.Qty -= traded

			trades = append(trades, common.Trade{
				Price:     lvl.Price,
				Quantity:  traded,
				TakerID:   taker.ID,
				MakerID:   maker.ID,
				TakerSide: taker.Side,
				Timestamp: now,
			})

			if maker.Qty == 0 {
				lvl.Orders = lvl.Orders[1:]
				delete(b.index, maker.ID)
			}
		}

		opposite.dropIfEmpty(lvl)
	}

	return trades
}

// rest appends order to the tail of its own side's level at order.Price and
// records it in the order index.
func (b *OrderBook) rest(own *priceLevels, order *common.Order) {
	lvl := own.getOrCreate(order.Price)
	lvl.Orders = append(lvl.Orders, order)

	var side common.Side
	if own == b.bids {
		side = common.Buy
	} else {
		side = common.Sell
	}
	b.index[order.ID] = indexEntry{side: side, price: order.Price}
}

// Cancel removes a resting order by id. Returns false, with no effect, if
// the id is unknown or already fully filled.
func (b *OrderBook) Cancel(orderID uint64) bool {
	entry, ok := b.index[orderID]
	if !ok {
		return false
	}

	var levels *priceLevels
	if entry.side == common.Buy {
		levels = b.bids
	} else {
		levels = b.asks
	}

	lvl, ok := levels.get(entry.price)
	if !ok {
		delete(b.index, orderID)
		return false
	}

	for i, o := range lvl.Orders {
		if o.ID == orderID {
			lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
			break
		}
	}
	levels.dropIfEmpty(lvl)
	delete(b.index, orderID)
	return true
}

// TopOfBook returns the best price and aggregate quantity on each side.
// Either side is (0, 0) with ok=false when empty.
type TopOfBook struct {
	BidPrice common.Ticks
	BidQty   uint64
	BidOK    bool
	AskPrice common.Ticks
	AskQty   uint64
	AskOK    bool
}

func (b *OrderBook) TopOfBook() TopOfBook {
	var tob TopOfBook
	if lvl, ok := b.bids.best(); ok {
		tob.BidPrice, tob.BidQty, tob.BidOK = lvl.Price, lvl.aggQty(), true
	}
	if lvl, ok := b.asks.best(); ok {
		tob.AskPrice, tob.AskQty, tob.AskOK = lvl.Price, lvl.aggQty(), true
	}
	return tob
}

// Snapshot is the depth view of the book: bids from highest to lowest,
// asks from lowest to highest, truncated to depth levels each.
type Snapshot struct {
	Bids []LevelView
	Asks []LevelView
}

func (b *OrderBook) Snapshot(depth int) Snapshot {
	return Snapshot{
		Bids: b.bids.snapshot(depth),
		Asks: b.asks.snapshot(depth),
	}
}

// ValidateQuantity reports whether qty is an acceptable order quantity.
// Exported so callers (internal/engine) can reject a submission before
// allocating an order id or sequence number for it: spec.md §3 assigns
// those "on acceptance", so a rejected submission must not consume either.
func ValidateQuantity(qty uint64) error {
	if qty == 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ValidatePrice reports whether p is an acceptable limit price. Positivity
// only: finiteness is checked once, at the transport boundary, when the
// wire's float64 price is converted to Ticks.
func ValidatePrice(p common.Ticks) error {
	if !validPrice(p) {
		return ErrInvalidPrice
	}
	return nil
}

func validPrice(p common.Ticks) bool {
	return p > 0
}
