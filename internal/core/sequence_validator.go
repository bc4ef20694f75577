package core

import (
	"fmt"
	"sync"

	"VammLedger/internal/errs"
	"VammLedger/internal/observability"
)

// SequenceValidator validates producer sequences per partition. A partition
// is one market or the global stream. Commands without a source sequence are
// not ordered.
type SequenceValidator struct {
	mu              sync.Mutex
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	metrics         *SequenceMetrics
	prom            *observability.Metrics
}

func NewSequenceValidator(prom *observability.Metrics) *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         NewSequenceMetrics(),
		prom:            prom,
	}
}

// ValidateSequence checks source sequence ordering. The first sequence seen
// on a partition starts it.
func (sv *SequenceValidator) ValidateSequence(partition string, sourceSequence int64, isDuplicate bool) error {
	if sourceSequence <= 0 {
		return nil
	}
	sv.mu.Lock()
	defer sv.mu.Unlock()

	expected, started := sv.expectedNextSeq[partition]
	if !started {
		sv.expectedNextSeq[partition] = sourceSequence + 1
		return nil
	}

	if sourceSequence < expected {
		if isDuplicate {
			return nil
		}
		sv.metrics.RecordOutOfOrder(partition)
		if sv.prom != nil {
			sv.prom.EventOutOfOrder.WithLabelValues(partition).Inc()
		}
		return errs.New(errs.CodeInvalidArgument, "out-of-order command: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	sv.metrics.RecordGap(partition)
	if sv.prom != nil {
		sv.prom.EventSequenceGap.WithLabelValues(partition).Inc()
	}
	return errs.New(errs.CodeInvalidArgument, "sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ValidatePriceSequence accepts any oracle reading newer than the last one.
// Gaps are counted but tolerated.
func (sv *SequenceValidator) ValidatePriceSequence(marketIndex uint16, priceSequence int64) error {
	partition := fmt.Sprintf("oracle:%d", marketIndex)

	sv.mu.Lock()
	defer sv.mu.Unlock()

	expected, started := sv.expectedNextSeq[partition]
	if started && priceSequence < expected {
		return errs.New(errs.CodeStaleOracle, "market %d oracle sequence %d, already at %d",
			marketIndex, priceSequence, expected-1)
	}
	if started && priceSequence > expected {
		sv.metrics.RecordGap(partition)
		if sv.prom != nil {
			sv.prom.EventSequenceGap.WithLabelValues(partition).Inc()
		}
	}
	sv.expectedNextSeq[partition] = priceSequence + 1
	return nil
}

// GetExpectedSequence returns next expected sequence for a partition
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes expected sequence (used during recovery)
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.mu.Lock()
	sv.expectedNextSeq[partition] = seq
	sv.mu.Unlock()
}

// GetAllPartitions copies the expected sequence of every partition.
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

func (sv *SequenceValidator) Metrics() *SequenceMetrics {
	return sv.metrics
}

// --- Metrics ---

// SequenceMetrics tracks sequence validation stats. Guarded by the
// validator's lock.
type SequenceMetrics struct {
	gaps       map[string]int64 // partition -> gap count
	outOfOrder map[string]int64 // partition -> out-of-order count
}

func NewSequenceMetrics() *SequenceMetrics {
	return &SequenceMetrics{
		gaps:       make(map[string]int64),
		outOfOrder: make(map[string]int64),
	}
}

func (m *SequenceMetrics) RecordGap(partition string) {
	m.gaps[partition]++
}

func (m *SequenceMetrics) RecordOutOfOrder(partition string) {
	m.outOfOrder[partition]++
}

func (m *SequenceMetrics) GetGaps(partition string) int64 {
	return m.gaps[partition]
}

func (m *SequenceMetrics) GetOutOfOrder(partition string) int64 {
	return m.outOfOrder[partition]
}
