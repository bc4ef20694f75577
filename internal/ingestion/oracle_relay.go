package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"VammLedger/internal/event"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OracleReading is a price feed message published on
// vamm.oracle.{market_index}. Price is a decimal string.
type OracleReading struct {
	Price    string `json:"price"`
	Sequence int64  `json:"sequence"`
	Ts       int64  `json:"ts"`
}

// OracleRelay turns price feed messages into OraclePriceUpdate commands.
// Readings reach the core only as commands, so replay sees the same prices.
type OracleRelay struct {
	js  jetstream.JetStream
	out chan<- RawEvent
	cc  jetstream.ConsumeContext
	log zerolog.Logger
}

func NewOracleRelay(js jetstream.JetStream, out chan<- RawEvent) *OracleRelay {
	return &OracleRelay{js: js, out: out, log: observability.NewLogger("oracle-relay")}
}

// ParseOracleReading builds the command for a reading on subject.
func ParseOracleReading(subject string, data []byte) (*event.OraclePriceUpdate, error) {
	rest, ok := strings.CutPrefix(subject, OracleSubjectPrefix)
	if !ok {
		return nil, fmt.Errorf("subject %q is not an oracle subject", subject)
	}
	mi, err := strconv.ParseUint(rest, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("oracle subject %q: %w", subject, err)
	}
	var r OracleReading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse oracle reading: %w", err)
	}
	price, err := fpmath.ParseFixed(r.Price, fpmath.MarkPricePrecision)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("oracle price must be positive, got %s", r.Price)
	}
	if r.Sequence <= 0 {
		return nil, fmt.Errorf("oracle reading needs a positive sequence")
	}
	return &event.OraclePriceUpdate{
		MarketRef: event.MarketRef{Market: uint16(mi)},
		Price:     price,
		Sequence:  r.Sequence,
		Ts:        r.Ts,
	}, nil
}

// Start consumes the oracle stream and forwards each reading to the
// dispatcher as a command message, acking the feed message only once the
// dispatcher has acked the command.
func (r *OracleRelay) Start(ctx context.Context) error {
	cc, err := consume(ctx, r.js, SubjectConfig{
		Subject:      OracleSubjectPrefix + ">",
		ConsumerName: "ledger-oracle",
		StreamName:   OracleStream,
	}, func(msg jetstream.Msg) {
		upd, err := ParseOracleReading(msg.Subject(), msg.Data())
		if err != nil {
			r.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping oracle reading")
			_ = msg.Term()
			return
		}
		data, err := event.Encode(upd)
		if err != nil {
			_ = msg.Term()
			return
		}
		select {
		case r.out <- rawFromMsg(CommandSubject(event.EventTypeOraclePriceUpdate), data, msg):
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("oracle relay: %w", err)
	}
	r.cc = cc
	r.log.Info().Msg("oracle relay started")
	return nil
}

func (r *OracleRelay) Stop() {
	if r.cc != nil {
		r.cc.Stop()
	}
}
