package ingestion

import (
	"context"
	"fmt"
	"time"

	"VammLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandStream      = "VAMM_COMMANDS"
	OracleStream       = "VAMM_ORACLE"
	LedgerEventsStream = "VAMM_LEDGER_EVENTS"

	OracleSubjectPrefix = "vamm.oracle."
	LedgerEventsPrefix  = "vamm.ledger.events."
)

// streams are the inputs (commands, oracle readings) and the durable
// output. Oracle readings are superseded quickly, so only a short tail is
// kept per market subject.
var streams = []jetstream.StreamConfig{
	{
		Name:      CommandStream,
		Subjects:  []string{CommandSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
	},
	{
		Name:              OracleStream,
		Subjects:          []string{OracleSubjectPrefix + ">"},
		Storage:           jetstream.FileStorage,
		Retention:         jetstream.LimitsPolicy,
		MaxAge:            24 * time.Hour,
		MaxMsgsPerSubject: 1024,
	},
	{
		Name:       LedgerEventsStream,
		Subjects:   []string{LedgerEventsPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
	},
}

// EnsureStreams creates or updates every stream the ledger reads or writes.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("nats")
	for _, cfg := range streams {
		cfg.Replicas = 1
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Strs("subjects", cfg.Subjects).Msg("stream ready")
	}
	return nil
}

// SubjectConfig binds a durable consumer to a filter subject.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
	// InFlight caps unacked deliveries; 1 keeps the stream's order.
	InFlight int
}

// DefaultSubjects consumes every command type through one consumer with a
// single message in flight, so commands reach the core in stream order.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{{
		Subject:      CommandSubjectPrefix + ">",
		ConsumerName: "ledger-commands",
		StreamName:   CommandStream,
		InFlight:     1,
	}}
}

// consume attaches handle to a durable explicit-ack consumer.
func consume(ctx context.Context, js jetstream.JetStream, cfg SubjectConfig, handle jetstream.MessageHandler) (jetstream.ConsumeContext, error) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: cfg.InFlight,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
	}
	cc, err := consumer.Consume(handle)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
	}
	return cc, nil
}

// rawFromMsg wraps a delivery so the dispatcher can settle it.
func rawFromMsg(subject string, data []byte, msg jetstream.Msg) RawEvent {
	return RawEvent{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() { _ = msg.Ack() },
		NakFunc:   func() { _ = msg.Nak() },
		TermFunc:  func() { _ = msg.Term() },
	}
}

// NATSSubscriber feeds command deliveries into the dispatcher channel.
type NATSSubscriber struct {
	js        jetstream.JetStream
	out       chan<- RawEvent
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewNATSSubscriber(js jetstream.JetStream, out chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{js: js, out: out, log: observability.NewLogger("nats-subscriber")}
}

// Subscribe starts one consumer per subject. A delivery still waiting for
// the dispatcher when ctx ends is nak'd for redelivery.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cc, err := consume(ctx, ns.js, cfg, func(msg jetstream.Msg) {
			if md, err := msg.Metadata(); err == nil && md.NumDelivered > 1 {
				ns.log.Debug().
					Str("subject", msg.Subject()).
					Uint64("stream_seq", md.Sequence.Stream).
					Uint64("delivered", md.NumDelivered).
					Msg("redelivery")
			}
			select {
			case ns.out <- rawFromMsg(msg.Subject(), msg.Data(), msg):
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return err
		}
		ns.consumers = append(ns.consumers, cc)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}
	return nil
}

func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Int("consumers", len(ns.consumers)).Msg("subscriber stopped")
}

// ConnectNATS dials with unlimited reconnects and opens JetStream.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.Name("vammledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("server", c.ConnectedUrlRedacted()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
