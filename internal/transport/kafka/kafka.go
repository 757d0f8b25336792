// Package kafka adapts github.com/IBM/sarama to the transport.Inbound and
// transport.Outbound interfaces: a manual-commit consumer group for
// commands, and an idempotent synchronous producer for events.
//
// The teacher has no message-bus code of its own (its exchange is a raw TCP
// service); this adapter is grounded on the domain stack the rest of the
// example pack pulls in for the same concern (Altilar-Labs-matchingo's and
// wyfcoding-financialTrading's dependency on github.com/IBM/sarama), wired
// up against sarama's own published ConsumerGroupHandler/SyncProducer APIs.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/saiputravu/matchd/internal/transport"
)

// NewSaramaConfig builds the sarama.Config matching spec.md §6's producer
// idempotence requirement: Producer.Idempotent=true forces
// RequiredAcks=WaitForAll and Net.MaxOpenRequests=1, per sarama's own
// invariant for that mode.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0

	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 10
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Return.Successes = true

	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false

	return cfg
}

// Outbound implements transport.Outbound over a sarama.SyncProducer.
type Outbound struct {
	producer sarama.SyncProducer
	topic    string
}

// NewOutbound connects a synchronous, idempotent producer to brokers.
func NewOutbound(brokers []string, topic string, cfg *sarama.Config) (*Outbound, error) {
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: new producer: %w", err)
	}
	return &Outbound{producer: producer, topic: topic}, nil
}

// NewOutboundFromProducer wraps an already-constructed sarama.SyncProducer,
// letting tests substitute github.com/IBM/sarama/mocks.SyncProducer.
func NewOutboundFromProducer(producer sarama.SyncProducer, topic string) *Outbound {
	return &Outbound{producer: producer, topic: topic}
}

// Emit publishes one Event, keyed by symbol so a partition carries one
// symbol's events in order.
func (o *Outbound) Emit(ctx context.Context, event transport.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: o.topic,
		Key:   sarama.StringEncoder(event.Symbol),
		Value: sarama.ByteEncoder(body),
	}
	_, _, err = o.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka: send message: %w", err)
	}
	return nil
}

// Flush is a no-op: sarama's SyncProducer already blocks until the broker
// has acknowledged each SendMessage call, so there is no batched I/O to
// drain here.
func (o *Outbound) Flush(ctx context.Context) error { return nil }

func (o *Outbound) Close() error { return o.producer.Close() }

// Inbound implements transport.Inbound over a sarama.ConsumerGroup. Each
// claimed message is buffered onto a channel by the consumer-group session
// goroutine; Poll reads from that channel with a timeout so the caller can
// still drive periodic work (ctx cancellation, outbound flush) between
// messages, matching spec.md §4.6's poll-dispatch-emit-commit cycle.
type Inbound struct {
	group   sarama.ConsumerGroup
	topic   string
	cancel  context.CancelFunc
	errCh   chan error
	msgCh   chan *sarama.ConsumerMessage
	session struct {
		mu sync.Mutex
		s  sarama.ConsumerGroupSession
	}
	wg sync.WaitGroup
}

// NewInbound joins groupID's consumer group and begins consuming topic in
// the background; Poll surfaces claimed messages one at a time.
func NewInbound(ctx context.Context, brokers []string, groupID, topic string, cfg *sarama.Config) (*Inbound, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: new consumer group: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	in := &Inbound{
		group:  group,
		topic:  topic,
		cancel: cancel,
		errCh:  make(chan error, 1),
		msgCh:  make(chan *sarama.ConsumerMessage),
	}

	in.wg.Add(1)
	go in.consumeLoop(consumeCtx)

	return in, nil
}

func (in *Inbound) consumeLoop(ctx context.Context) {
	defer in.wg.Done()
	handler := &groupHandler{in: in}
	for {
		if err := in.group.Consume(ctx, []string{in.topic}, handler); err != nil {
			select {
			case in.errCh <- fmt.Errorf("kafka: consume: %w", err):
			default:
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Poll blocks until a message is available, timeout elapses (returns
// (nil, nil)), or the consumer group has failed fatally.
func (in *Inbound) Poll(ctx context.Context, timeout time.Duration) (*transport.InboundMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, nil
	case err := <-in.errCh:
		return nil, err
	case msg := <-in.msgCh:
		in.session.mu.Lock()
		sess := in.session.s
		in.session.mu.Unlock()
		return &transport.InboundMessage{
			Symbol: string(msg.Key),
			Value:  msg.Value,
			Ack: func() error {
				if sess == nil {
					return fmt.Errorf("kafka: no active session to commit offset")
				}
				sess.MarkMessage(msg, "")
				sess.Commit()
				return nil
			},
		}, nil
	case <-timer.C:
		return nil, nil
	}
}

func (in *Inbound) Close() error {
	in.cancel()
	err := in.group.Close()
	in.wg.Wait()
	return err
}

// groupHandler bridges sarama's per-partition claim loop onto Inbound's
// single msgCh, recording the active session so Poll's Ack closure can mark
// offsets for manual commit.
type groupHandler struct {
	in *Inbound
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.in.session.mu.Lock()
	h.in.session.s = sess
	h.in.session.mu.Unlock()
	log.Info().Msg("kafka consumer group session starting")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.in.session.mu.Lock()
	h.in.session.s = nil
	h.in.session.mu.Unlock()
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.in.msgCh <- msg:
			case <-sess.Context().Done():
				return nil
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}
