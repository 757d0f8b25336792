// Package loop implements the CommandLoop: it pulls commands off the
// inbound stream, dispatches them to the right symbol's MatchingEngine,
// publishes ACK/TRADE*/BOOK events in order, and commits the inbound
// offset only once dispatch and emission have both succeeded.
//
// Grounded in the original Python source's engine.py run()/handle_command
// and the teacher's sessionHandler/handleConnection poll-dispatch-emit
// idiom, retargeted onto the abstract transport.Inbound/transport.Outbound
// interfaces instead of a raw TCP byte stream.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saiputravu/matchd/internal/common"
	"github.com/saiputravu/matchd/internal/dedup"
	"github.com/saiputravu/matchd/internal/engine"
	"github.com/saiputravu/matchd/internal/registry"
	"github.com/saiputravu/matchd/internal/transport"
)

// DefaultPollTimeout is the small timeout used to poll the inbound stream
// between driving the outbound transport's background work.
const DefaultPollTimeout = 500 * time.Millisecond

// CommandLoop is one replica of the command/event pump. The inbound stream
// is expected to be keyed by symbol, so each replica running against its
// own partition assignment sees one symbol's commands in order.
type CommandLoop struct {
	Inbound     transport.Inbound
	Outbound    transport.Outbound
	Registry    *registry.Registry
	Dedup       *dedup.Deduplicator
	PollTimeout time.Duration
}

// Run drives the loop until ctx is cancelled (graceful shutdown, returns
// nil) or a transport/engine-invariant error occurs (fatal, returned so the
// caller's supervisor can restart the process, per spec.md §7 item 4/5).
func (l *CommandLoop) Run(ctx context.Context) error {
	timeout := l.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := l.Inbound.Poll(ctx, timeout)
		if err != nil {
			return fmt.Errorf("inbound transport error: %w", err)
		}
		if msg == nil {
			if err := l.Outbound.Flush(ctx); err != nil {
				return fmt.Errorf("outbound transport error: %w", err)
			}
			continue
		}

		if err := l.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (l *CommandLoop) handle(ctx context.Context, msg *transport.InboundMessage) error {
	var cmd transport.Command
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		log.Error().Err(err).Str("symbol", msg.Symbol).Msg("malformed command")
		if err := l.emitAckError(ctx, msg.Symbol, "", "malformed command"); err != nil {
			return err
		}
		return l.commit(msg)
	}

	symbol := cmd.Symbol
	if symbol == "" {
		symbol = msg.Symbol
	}

	if l.Dedup.SeenOrRecord(symbol, cmd.CommandID) {
		log.Debug().Str("symbol", symbol).Str("command_id", cmd.CommandID).Msg("duplicate command dropped")
		return l.commit(msg)
	}

	eng := l.Registry.GetOrCreate(symbol)

	var dispatchErr error
	switch cmd.Type {
	case transport.CommandLimit:
		dispatchErr = l.handleLimit(ctx, symbol, eng, cmd)
	case transport.CommandMarket:
		dispatchErr = l.handleMarket(ctx, symbol, eng, cmd)
	case transport.CommandCancel:
		dispatchErr = l.handleCancel(ctx, symbol, eng, cmd)
	default:
		dispatchErr = l.emitAckError(ctx, symbol, cmd.CommandID, "unknown command")
	}
	if dispatchErr != nil {
		return dispatchErr
	}

	return l.commit(msg)
}

func (l *CommandLoop) handleLimit(ctx context.Context, symbol string, eng *engine.Engine, cmd transport.Command) error {
	side, ok := parseSide(cmd.Side)
	if !ok {
		return l.emitAckError(ctx, symbol, cmd.CommandID, "invalid or missing side for LIMIT")
	}
	if cmd.Price == nil {
		return l.emitAckError(ctx, symbol, cmd.CommandID, "missing price for LIMIT")
	}
	if cmd.Quantity == nil {
		return l.emitAckError(ctx, symbol, cmd.CommandID, "missing quantity for LIMIT")
	}
	ticks, err := transport.PriceToTicks(*cmd.Price)
	if err != nil {
		return l.emitAckError(ctx, symbol, cmd.CommandID, err.Error())
	}

	res, err := eng.SubmitLimit(side, ticks, uint64OrZero(*cmd.Quantity), cmd.UserRef)
	if err != nil {
		if errors.Is(err, engine.ErrStopped) {
			return err
		}
		return l.emitAckError(ctx, symbol, cmd.CommandID, err.Error())
	}

	if err := l.emit(ctx, symbol, transport.EventAck, transport.AckLimitPayload{
		CommandID: cmd.CommandID, Accepted: true, OrderID: res.OrderID, ResidualQty: res.Residual,
	}); err != nil {
		return err
	}
	if err := l.emitTrades(ctx, symbol, res.Trades); err != nil {
		return err
	}
	return l.emitBook(ctx, symbol, eng)
}

func (l *CommandLoop) handleMarket(ctx context.Context, symbol string, eng *engine.Engine, cmd transport.Command) error {
	side, ok := parseSide(cmd.Side)
	if !ok {
		return l.emitAckError(ctx, symbol, cmd.CommandID, "invalid or missing side for MARKET")
	}
	if cmd.Quantity == nil {
		return l.emitAckError(ctx, symbol, cmd.CommandID, "missing quantity for MARKET")
	}

	res, err := eng.SubmitMarket(side, uint64OrZero(*cmd.Quantity), cmd.UserRef)
	if err != nil {
		if errors.Is(err, engine.ErrStopped) {
			return err
		}
		return l.emitAckError(ctx, symbol, cmd.CommandID, err.Error())
	}

	if err := l.emit(ctx, symbol, transport.EventAck, transport.AckMarketPayload{
		CommandID: cmd.CommandID, Accepted: true, OrderID: res.OrderID, FilledQty: res.FilledQty,
	}); err != nil {
		return err
	}
	if err := l.emitTrades(ctx, symbol, res.Trades); err != nil {
		return err
	}
	return l.emitBook(ctx, symbol, eng)
}

func (l *CommandLoop) handleCancel(ctx context.Context, symbol string, eng *engine.Engine, cmd transport.Command) error {
	if cmd.OrderID == nil {
		return l.emitAckError(ctx, symbol, cmd.CommandID, "missing order_id for CANCEL")
	}

	ok, err := eng.Cancel(*cmd.OrderID)
	if err != nil {
		return err
	}

	if err := l.emit(ctx, symbol, transport.EventAck, transport.AckCancelPayload{
		CommandID: cmd.CommandID, Accepted: ok, OrderID: *cmd.OrderID,
	}); err != nil {
		return err
	}
	return l.emitBook(ctx, symbol, eng)
}

func (l *CommandLoop) emit(ctx context.Context, symbol string, kind transport.EventType, payload any) error {
	if err := l.Outbound.Emit(ctx, transport.NewEvent(symbol, kind, payload)); err != nil {
		return fmt.Errorf("outbound transport error: %w", err)
	}
	return nil
}

func (l *CommandLoop) emitAckError(ctx context.Context, symbol, commandID, reason string) error {
	return l.emit(ctx, symbol, transport.EventAck, transport.AckErrorPayload{
		CommandID: commandID, Accepted: false, Error: reason,
	})
}

func (l *CommandLoop) emitTrades(ctx context.Context, symbol string, trades []common.Trade) error {
	for _, tr := range trades {
		payload := transport.TradePayload{
			TakerID:  tr.TakerID,
			MakerID:  tr.MakerID,
			Price:    transport.TicksToPrice(tr.Price),
			Quantity: tr.Quantity,
		}
		if err := l.emit(ctx, symbol, transport.EventTrade, payload); err != nil {
			return err
		}
	}
	return nil
}

func (l *CommandLoop) emitBook(ctx context.Context, symbol string, eng *engine.Engine) error {
	tob, err := eng.TopOfBook()
	if err != nil {
		return err
	}
	payload := transport.NewBookPayload(
		tob.BidOK, transport.TicksToPrice(tob.BidPrice), tob.BidQty,
		tob.AskOK, transport.TicksToPrice(tob.AskPrice), tob.AskQty,
	)
	return l.emit(ctx, symbol, transport.EventBook, payload)
}

func (l *CommandLoop) commit(msg *transport.InboundMessage) error {
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("inbound commit error: %w", err)
	}
	return nil
}

func parseSide(s string) (common.Side, bool) {
	switch strings.ToUpper(s) {
	case "BUY":
		return common.Buy, true
	case "SELL":
		return common.Sell, true
	default:
		return 0, false
	}
}

func uint64OrZero(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
