// Package transport defines the abstract command/event bus spec.md models
// in §6: a self-describing JSON wire schema, and the Inbound/Outbound
// interfaces any durable, partitioned, ordered log can satisfy. Concrete
// adapters (internal/transport/kafka) implement these against a real
// broker; internal/loop depends only on the interfaces.
//
// The JSON field names mirror the original Python producer/engine
// (original_source/python) byte-for-byte, since spec.md's inbound/outbound
// record tables were distilled from that wire format.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// CommandType enumerates the inbound command's type field.
type CommandType string

const (
	CommandLimit  CommandType = "LIMIT"
	CommandMarket CommandType = "MARKET"
	CommandCancel CommandType = "CANCEL"
)

// Command is the inbound command record (spec.md §6). CommandID is the
// dedup key; an absent/empty CommandID disables dedup for this command.
type Command struct {
	CommandID string      `json:"command_id,omitempty"`
	Symbol    string      `json:"symbol"`
	Type      CommandType `json:"type"`
	Side      string      `json:"side,omitempty"`
	Price     *float64    `json:"price,omitempty"`
	Quantity  *int64      `json:"quantity,omitempty"`
	OrderID   *uint64     `json:"order_id,omitempty"`
	UserRef   string      `json:"user_ref,omitempty"`
	Timestamp float64     `json:"ts,omitempty"`
}

// EventType enumerates the outbound event's event field.
type EventType string

const (
	EventAck   EventType = "ACK"
	EventTrade EventType = "TRADE"
	EventBook  EventType = "BOOK"
)

// Event is the outbound event record (spec.md §6): one per emitted
// ACK/TRADE/BOOK, keyed by Symbol for partition/ordering.
type Event struct {
	Symbol    string    `json:"symbol"`
	Event     EventType `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp float64   `json:"ts"`
}

// NewEvent stamps an Event with the current wall-clock time, as spec.md's
// outbound record requires ("ts: wall-clock seconds at emit").
func NewEvent(symbol string, kind EventType, payload any) Event {
	return Event{Symbol: symbol, Event: kind, Payload: payload, Timestamp: float64(time.Now().UnixNano()) / 1e9}
}

// AckLimitPayload is the ACK payload for an accepted LIMIT.
type AckLimitPayload struct {
	CommandID   string `json:"command_id,omitempty"`
	Accepted    bool   `json:"accepted"`
	OrderID     uint64 `json:"order_id"`
	ResidualQty uint64 `json:"residual_qty"`
}

// AckMarketPayload is the ACK payload for an accepted MARKET.
type AckMarketPayload struct {
	CommandID string `json:"command_id,omitempty"`
	Accepted  bool   `json:"accepted"`
	OrderID   uint64 `json:"order_id"`
	FilledQty uint64 `json:"filled_qty"`
}

// AckCancelPayload is the ACK payload for a CANCEL.
type AckCancelPayload struct {
	CommandID string `json:"command_id,omitempty"`
	Accepted  bool   `json:"accepted"`
	OrderID   uint64 `json:"order_id"`
}

// AckErrorPayload is the ACK payload for a validation failure or unknown
// command type.
type AckErrorPayload struct {
	CommandID string `json:"command_id,omitempty"`
	Accepted  bool   `json:"accepted"`
	Error     string `json:"error"`
}

// TradePayload is the TRADE event payload.
type TradePayload struct {
	TakerID  uint64  `json:"taker_id"`
	MakerID  uint64  `json:"maker_id"`
	Price    float64 `json:"price"`
	Quantity uint64  `json:"quantity"`
}

// priceLevel is one side of a BOOK payload: the literal 2-element JSON
// array `[price, qty]` spec.md §6 specifies (mirroring the original
// Python source's `(bp, bq)` tuple, which json.dumps also serializes as a
// 2-element array), with price null when that side is empty.
type priceLevel struct {
	price *float64
	qty   uint64
}

// MarshalJSON encodes the level as `[price, qty]`, price null if absent.
func (l priceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{l.price, l.qty})
}

// BookPayload is the BOOK event payload.
type BookPayload struct {
	BestBid priceLevel `json:"best_bid"`
	BestAsk priceLevel `json:"best_ask"`
}

// NewBookPayload builds a BookPayload, encoding an empty side as
// [null, 0] per spec.md §6.
func NewBookPayload(bidOK bool, bidPrice float64, bidQty uint64, askOK bool, askPrice float64, askQty uint64) BookPayload {
	p := BookPayload{}
	if bidOK {
		p.BestBid = priceLevel{price: &bidPrice, qty: bidQty}
	}
	if askOK {
		p.BestAsk = priceLevel{price: &askPrice, qty: askQty}
	}
	return p
}

// InboundMessage is one raw message pulled off the inbound stream together
// with enough information for CommandLoop to commit it once the command it
// carries has been fully dispatched and its events emitted.
type InboundMessage struct {
	Symbol string
	Value  []byte

	// Ack is called by the Inbound implementation's owner (internal/loop)
	// to commit this message's offset. It must only be called after the
	// corresponding events have been durably emitted (spec.md §4.6/§7).
	Ack func() error
}

// Inbound is the abstract "command stream in". Poll returns (nil, nil) on a
// timeout with nothing to read, so the caller can drive background
// transport work and loop again.
type Inbound interface {
	Poll(ctx context.Context, timeout time.Duration) (*InboundMessage, error)
	Close() error
}

// Outbound is the abstract "event stream out". Emit must be safe to retry
// (the producer is idempotent, per spec.md §6) and Flush drives whatever
// background I/O the implementation batches.
type Outbound interface {
	Emit(ctx context.Context, event Event) error
	Flush(ctx context.Context) error
	Close() error
}
