package ingestion

import (
	"context"
	"time"

	"VammLedger/internal/core"
	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	"VammLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Processor applies one command. *core.Engine satisfies it.
type Processor interface {
	Process(ctx context.Context, evt event.Event) (*core.Result, error)
}

// Dispatcher drains the subscriber channel into the core. Messages are
// acked once the core has decided on them: committed, duplicate or
// rejected with a coded error. Anything else is redelivered.
type Dispatcher struct {
	proc    Processor
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewDispatcher(proc Processor, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		proc:    proc,
		metrics: metrics,
		log:     observability.NewLogger("dispatcher"),
	}
}

// Run processes messages until ctx is done or in is closed.
func (d *Dispatcher) Run(ctx context.Context, in <-chan RawEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-in:
			if !ok {
				return nil
			}
			d.handle(ctx, raw)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw RawEvent) {
	evt, err := ParseRawEvent(raw)
	if err != nil {
		d.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed command")
		call(raw.TermFunc)
		return
	}

	res, err := d.proc.Process(ctx, evt)
	switch {
	case err == nil:
		if d.metrics != nil {
			d.metrics.IngestToApply.WithLabelValues(evt.EventType().String()).
				Observe(time.Since(raw.Timestamp).Seconds())
		}
		if res.Duplicate {
			d.log.Debug().Str("key", evt.IdempotencyKey()).Msg("duplicate command")
		}
		call(raw.AckFunc)
	case errs.CodeOf(err) != errs.CodeUnknown:
		d.log.Info().Err(err).
			Str("event_type", evt.EventType().String()).
			Str("key", evt.IdempotencyKey()).
			Msg("command rejected")
		call(raw.AckFunc)
	default:
		d.log.Error().Err(err).Str("key", evt.IdempotencyKey()).Msg("command failed, redelivering")
		call(raw.NakFunc)
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}
