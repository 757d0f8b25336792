// Package engine implements the MatchingEngine: a single-writer façade
// around one OrderBook. One Engine exists per symbol; all book mutations
// happen on its dedicated worker goroutine, so no book-level locking is
// needed.
//
// Grounded in the teacher's internal/worker.go (WorkerPool.Setup/worker,
// tomb-supervised goroutines) and the original Python source's
// MatchingEngine (threading.Condition-guarded deque + concurrent.futures.Future),
// translated into a buffered Go channel of commands with one-shot reply
// channels standing in for the Future.
package engine

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu/matchd/internal/book"
	"github.com/saiputravu/matchd/internal/common"
)

// ErrStopped is returned by any submission made after Stop has been called.
var ErrStopped = errors.New("engine: stopped")

// commandQueueSize is the default buffered capacity of the command channel.
// The present design assumes the command loop is the only producer and is
// already paced by the inbound stream (spec.md §4.3); a bounded channel
// still gives cheap backpressure if that assumption is ever violated.
const commandQueueSize = 1024

type command struct {
	kind     kind
	limit    limitArgs
	mkt      marketArgs
	cancelID uint64
	depth    int
	reply    chan<- any
}

type kind int

const (
	kindLimit kind = iota
	kindMarket
	kindCancel
	kindTOB
	kindSnap
	kindStop
)

type limitArgs struct {
	side    common.Side
	price   common.Ticks
	qty     uint64
	userRef string
}

type marketArgs struct {
	side    common.Side
	qty     uint64
	userRef string
}

// LimitResult is the reply to a LIMIT submission.
type LimitResult struct {
	OrderID  uint64
	Trades   []common.Trade
	Residual uint64
}

// MarketResult is the reply to a MARKET submission.
type MarketResult struct {
	OrderID   uint64
	Trades    []common.Trade
	FilledQty uint64
}

// Engine is the single-writer façade for one symbol's OrderBook.
type Engine struct {
	Symbol string

	book *book.OrderBook
	cmds chan command
	t    *tomb.Tomb

	nextOrderID uint64
	nextSeq     uint64

	stopped atomic.Bool
}

// New creates and starts the engine's worker goroutine for symbol.
func New(symbol string) *Engine {
	e := &Engine{
		Symbol: symbol,
		book:   book.New(),
		cmds:   make(chan command, commandQueueSize),
		t:      new(tomb.Tomb),
	}
	e.t.Go(e.run)
	return e
}

func (e *Engine) submit(cmd command) (any, error) {
	if e.stopped.Load() {
		return nil, ErrStopped
	}
	reply := make(chan any, 1)
	cmd.reply = reply
	select {
	case e.cmds <- cmd:
	case <-e.t.Dying():
		return nil, ErrStopped
	}

	select {
	case r := <-reply:
		if err, ok := r.(error); ok {
			return nil, err
		}
		return r, nil
	case <-e.t.Dying():
		return nil, ErrStopped
	}
}

// SubmitLimit enqueues a LIMIT order and blocks for the result.
func (e *Engine) SubmitLimit(side common.Side, price common.Ticks, qty uint64, userRef string) (LimitResult, error) {
	r, err := e.submit(command{kind: kindLimit, limit: limitArgs{side: side, price: price, qty: qty, userRef: userRef}})
	if err != nil {
		return LimitResult{}, err
	}
	return r.(LimitResult), nil
}

// SubmitMarket enqueues a MARKET order and blocks for the result.
func (e *Engine) SubmitMarket(side common.Side, qty uint64, userRef string) (MarketResult, error) {
	r, err := e.submit(command{kind: kindMarket, mkt: marketArgs{side: side, qty: qty, userRef: userRef}})
	if err != nil {
		return MarketResult{}, err
	}
	return r.(MarketResult), nil
}

// Cancel enqueues a CANCEL and blocks for the result: true if an order was
// removed, false if the id was unknown or already filled.
func (e *Engine) Cancel(orderID uint64) (bool, error) {
	r, err := e.submit(command{kind: kindCancel, cancelID: orderID})
	if err != nil {
		return false, err
	}
	return r.(bool), nil
}

// TopOfBook enqueues a TOB query and blocks for the result.
func (e *Engine) TopOfBook() (book.TopOfBook, error) {
	r, err := e.submit(command{kind: kindTOB})
	if err != nil {
		return book.TopOfBook{}, err
	}
	return r.(book.TopOfBook), nil
}

// Snapshot enqueues a SNAP query and blocks for the result.
func (e *Engine) Snapshot(depth int) (book.Snapshot, error) {
	r, err := e.submit(command{kind: kindSnap, depth: depth})
	if err != nil {
		return book.Snapshot{}, err
	}
	return r.(book.Snapshot), nil
}

// Stop posts a terminal STOP command and waits for the worker to process it
// and exit. No further submissions are accepted once Stop has been called.
func (e *Engine) Stop() error {
	if e.stopped.Swap(true) {
		return nil
	}
	// The worker returns nil as soon as it dequeues this marker, which
	// alone is enough for the tomb to transition to dead (it tracks a
	// single goroutine), closing Dying() only after STOP has been
	// processed in order behind anything already queued.
	e.cmds <- command{kind: kindStop, reply: make(chan any, 1)}
	return e.t.Wait()
}

// run is the worker loop: only this goroutine ever touches e.book, so no
// lock is required around book state. seq is assigned here, immediately
// before the book call, so (price, seq) priority equals ingestion order.
func (e *Engine) run() error {
	log.Info().Str("symbol", e.Symbol).Msg("engine worker starting")
	for {
		select {
		case <-e.t.Dying():
			return nil
		case cmd := <-e.cmds:
			if cmd.kind == kindStop {
				cmd.reply <- true
				return nil
			}
			e.apply(cmd)
		}
	}
}

func (e *Engine) apply(cmd command) {
	switch cmd.kind {
	case kindLimit:
		// Validate before allocating: id and seq are assigned on
		// acceptance (spec.md §3), so a rejected submission must not
		// consume either.
		if err := book.ValidateQuantity(cmd.limit.qty); err != nil {
			cmd.reply <- err
			return
		}
		if err := book.ValidatePrice(cmd.limit.price); err != nil {
			cmd.reply <- err
			return
		}

		order := &common.Order{
			ID:      e.allocOrderID(),
			Seq:     e.allocSeq(),
			Side:    cmd.limit.side,
			Type:    common.LimitOrder,
			Price:   cmd.limit.price,
			Qty:     cmd.limit.qty,
			UserRef: cmd.limit.userRef,
		}
		res, err := e.book.AddLimit(order)
		if err != nil {
			cmd.reply <- err
			return
		}
		cmd.reply <- LimitResult{OrderID: order.ID, Trades: res.Trades, Residual: res.Residual}

	case kindMarket:
		if err := book.ValidateQuantity(cmd.mkt.qty); err != nil {
			cmd.reply <- err
			return
		}

		order := &common.Order{
			ID:      e.allocOrderID(),
			Seq:     e.allocSeq(),
			Side:    cmd.mkt.side,
			Type:    common.MarketOrder,
			Qty:     cmd.mkt.qty,
			UserRef: cmd.mkt.userRef,
		}
		res, err := e.book.AddMarket(order)
		if err != nil {
			cmd.reply <- err
			return
		}
		var filled uint64
		for _, tr := range res.Trades {
			filled += tr.Quantity
		}
		cmd.reply <- MarketResult{OrderID: order.ID, Trades: res.Trades, FilledQty: filled}

	case kindCancel:
		cmd.reply <- e.book.Cancel(cmd.cancelID)

	case kindTOB:
		cmd.reply <- e.book.TopOfBook()

	case kindSnap:
		cmd.reply <- e.book.Snapshot(cmd.depth)
	}
}

func (e *Engine) allocOrderID() uint64 {
	e.nextOrderID++
	return e.nextOrderID
}

func (e *Engine) allocSeq() uint64 {
	e.nextSeq++
	return e.nextSeq
}
