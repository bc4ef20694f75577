package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"VammLedger/internal/event"
	"VammLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes committed commands to NATS for downstream
// consumers. It is fed only after the event log write is durable.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.EventEnvelope
	log       zerolog.Logger
}

// PublishableEvent is the outbound wire form of a logged command.
type PublishableEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	MarketIndex    *uint16         `json:"market_index,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	Timestamp      int64           `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan *event.EventEnvelope) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			// downstream consumers can read the event log on failure
			if err := op.publish(ctx, env); err != nil {
				op.log.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

// LedgerSubject returns vamm.ledger.events.{event_type}[.{market_index}].
func LedgerSubject(env *event.EventEnvelope) string {
	subject := LedgerEventsPrefix + env.EventType.String()
	if env.MarketIndex != nil {
		subject += "." + strconv.Itoa(int(*env.MarketIndex))
	}
	return subject
}

func (op *OutboundPublisher) publish(ctx context.Context, env *event.EventEnvelope) error {
	data, err := json.Marshal(PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketIndex:    env.MarketIndex,
		Payload:        env.Payload,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// the sequence doubles as the message id, so republishing after a
	// restart is deduplicated by the stream
	_, err = op.js.Publish(ctx, LedgerSubject(env), data,
		jetstream.WithMsgID(strconv.FormatInt(env.Sequence, 10)))
	return err
}
