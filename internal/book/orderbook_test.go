package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu/matchd/internal/book"
	"github.com/saiputravu/matchd/internal/common"
)

func limit(id, seq uint64, side common.Side, price common.Ticks, qty uint64) *common.Order {
	return &common.Order{ID: id, Seq: seq, Side: side, Type: common.LimitOrder, Price: price, Qty: qty}
}

func market(id, seq uint64, side common.Side, qty uint64) *common.Order {
	return &common.Order{ID: id, Seq: seq, Side: side, Type: common.MarketOrder, Qty: qty}
}

// S1 — Simple cross.
func TestAddLimit_SimpleCross(t *testing.T) {
	b := book.New()

	res, err := b.AddLimit(limit(1, 1, common.Buy, 100, 10))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, uint64(10), res.Residual)

	res, err = b.AddLimit(limit(2, 2, common.Sell, 100, 6))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, common.Trade{Price: 100, Quantity: 6, TakerID: 2, MakerID: 1, TakerSide: common.Sell}, stripTime(res.Trades[0]))
	assert.Equal(t, uint64(0), res.Residual)

	tob := b.TopOfBook()
	assert.True(t, tob.BidOK)
	assert.Equal(t, common.Ticks(100), tob.BidPrice)
	assert.Equal(t, uint64(4), tob.BidQty)
	assert.False(t, tob.AskOK)
}

// S2 — Price-time priority.
func TestAddLimit_PriceTimePriority(t *testing.T) {
	b := book.New()

	_, err := b.AddLimit(limit(1, 1, common.Sell, 101, 5))
	require.NoError(t, err)
	_, err = b.AddLimit(limit(2, 2, common.Sell, 101, 5))
	require.NoError(t, err)

	res, err := b.AddLimit(limit(3, 3, common.Buy, 101, 7))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, uint64(1), res.Trades[0].MakerID)
	assert.Equal(t, uint64(5), res.Trades[0].Quantity)
	assert.Equal(t, uint64(2), res.Trades[1].MakerID)
	assert.Equal(t, uint64(2), res.Trades[1].Quantity)
	assert.Equal(t, uint64(0), res.Residual)

	tob := b.TopOfBook()
	assert.False(t, tob.BidOK)
	assert.True(t, tob.AskOK)
	assert.Equal(t, common.Ticks(101), tob.AskPrice)
	assert.Equal(t, uint64(3), tob.AskQty)
}

// S3 — Market sweeps multiple levels.
func TestAddMarket_Sweeps(t *testing.T) {
	b := book.New()
	_, _ = b.AddLimit(limit(1, 1, common.Sell, 103, 8))
	_, _ = b.AddLimit(limit(2, 2, common.Sell, 104, 12))

	res, err := b.AddMarket(market(3, 3, common.Buy, 15))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, common.Ticks(103), res.Trades[0].Price)
	assert.Equal(t, uint64(8), res.Trades[0].Quantity)
	assert.Equal(t, common.Ticks(104), res.Trades[1].Price)
	assert.Equal(t, uint64(7), res.Trades[1].Quantity)

	tob := b.TopOfBook()
	assert.Equal(t, common.Ticks(104), tob.AskPrice)
	assert.Equal(t, uint64(5), tob.AskQty)
}

// S4 — Market exhausts empty opposite side: no trades, no error.
func TestAddMarket_EmptyBook(t *testing.T) {
	b := book.New()
	res, err := b.AddMarket(market(1, 1, common.Buy, 10))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
}

// S5 — Cancel then no-op.
func TestCancel_Idempotent(t *testing.T) {
	b := book.New()
	_, err := b.AddLimit(limit(1, 1, common.Buy, 99, 10))
	require.NoError(t, err)

	assert.True(t, b.Cancel(1))
	assert.False(t, b.Cancel(1))

	tob := b.TopOfBook()
	assert.False(t, tob.BidOK)
}

func TestAddLimit_RejectsInvalidQuantityAndPrice(t *testing.T) {
	b := book.New()
	_, err := b.AddLimit(limit(1, 1, common.Buy, 100, 0))
	assert.ErrorIs(t, err, book.ErrInvalidQuantity)

	_, err = b.AddLimit(limit(2, 2, common.Buy, 0, 10))
	assert.ErrorIs(t, err, book.ErrInvalidPrice)

	_, err = b.AddLimit(limit(3, 3, common.Buy, -5, 10))
	assert.ErrorIs(t, err, book.ErrInvalidPrice)
}

func TestAddLimit_NonCrossingRests(t *testing.T) {
	b := book.New()
	_, _ = b.AddLimit(limit(1, 1, common.Sell, 110, 10))

	res, err := b.AddLimit(limit(2, 2, common.Buy, 100, 5))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, uint64(5), res.Residual)
}

func TestSnapshot_AggregatesAndOrdersLevels(t *testing.T) {
	b := book.New()
	_, _ = b.AddLimit(limit(1, 1, common.Buy, 99, 100))
	_, _ = b.AddLimit(limit(2, 2, common.Buy, 99, 90))
	_, _ = b.AddLimit(limit(3, 3, common.Buy, 98, 50))
	_, _ = b.AddLimit(limit(4, 4, common.Sell, 101, 20))
	_, _ = b.AddLimit(limit(5, 5, common.Sell, 102, 30))

	snap := b.Snapshot(10)
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, book.LevelView{Price: 99, Qty: 190}, snap.Bids[0])
	assert.Equal(t, book.LevelView{Price: 98, Qty: 50}, snap.Bids[1])

	require.Len(t, snap.Asks, 2)
	assert.Equal(t, book.LevelView{Price: 101, Qty: 20}, snap.Asks[0])
	assert.Equal(t, book.LevelView{Price: 102, Qty: 30}, snap.Asks[1])
}

func TestSnapshot_TruncatesToDepth(t *testing.T) {
	b := book.New()
	_, _ = b.AddLimit(limit(1, 1, common.Buy, 99, 10))
	_, _ = b.AddLimit(limit(2, 2, common.Buy, 98, 10))
	_, _ = b.AddLimit(limit(3, 3, common.Buy, 97, 10))

	snap := b.Snapshot(2)
	assert.Len(t, snap.Bids, 2)
}

// Invariant: bids never price >= asks at rest, across an interleaving of
// crossing and non-crossing limits.
func TestInvariant_NoCrossAtRest(t *testing.T) {
	b := book.New()
	orders := []*common.Order{
		limit(1, 1, common.Buy, 100, 10),
		limit(2, 2, common.Sell, 105, 10),
		limit(3, 3, common.Buy, 106, 20),
		limit(4, 4, common.Sell, 101, 5),
		limit(5, 5, common.Buy, 99, 15),
	}
	for _, o := range orders {
		_, err := b.AddLimit(o)
		require.NoError(t, err)

		tob := b.TopOfBook()
		if tob.BidOK && tob.AskOK {
			assert.Less(t, tob.BidPrice, tob.AskPrice)
		}
	}
}

func stripTime(tr common.Trade) common.Trade {
	tr.Timestamp = tr.Timestamp.Truncate(0)
	var zero common.Trade
	tr.Timestamp = zero.Timestamp
	return tr
}
