package ingestion

import (
	"context"

	"VammLedger/internal/core"
	"VammLedger/internal/errs"
)

// GRPCIngestService accepts single commands over gRPC for admin use and
// tooling. High-throughput producers publish to NATS instead.
type GRPCIngestService struct {
	proc Processor
}

func NewGRPCIngestService(proc Processor) *GRPCIngestService {
	return &GRPCIngestService{proc: proc}
}

// Submit parses a JSON command of the named type and applies it
// synchronously, returning the core's result or coded rejection.
func (s *GRPCIngestService) Submit(ctx context.Context, eventType string, payload []byte) (*core.Result, error) {
	evt, err := ParseCommand(eventType, payload)
	if err != nil {
		if errs.CodeOf(err) == errs.CodeUnknown {
			return nil, errs.Wrap(errs.CodeInvalidArgument, err, "parse command")
		}
		return nil, err
	}
	return s.proc.Process(ctx, evt)
}
