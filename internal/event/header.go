package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Header is the metadata shared by every command.
// Idempotency key: command_id (UUID from the producer).
type Header struct {
	CommandID uuid.UUID `json:"command_id"`
	// Optional upstream ordering key; zero disables sequence validation
	Sequence int64 `json:"sequence,omitempty"`
	// Unix seconds; zero means "stamp with the engine clock"
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (h *Header) IdempotencyKey() string {
	return h.CommandID.String()
}

func (h *Header) SourceSequence() int64 {
	return h.Sequence
}

func (h *Header) OccurredAt() int64 {
	return h.Timestamp
}

func (h *Header) Stamp(ts int64) {
	if h.Timestamp == 0 {
		h.Timestamp = ts
	}
}

// Global marks commands that touch no market.
type Global struct{}

func (Global) MarketIndex() *uint16 {
	return nil // Global event
}

// MarketRef scopes a command to one market.
type MarketRef struct {
	Market uint16 `json:"market_index"`
}

func (r MarketRef) MarketIndex() *uint16 {
	m := r.Market
	return &m
}

// New returns an empty command of type t, ready to be decoded into.
func New(t EventType) (Event, error) {
	switch t {
	case EventTypeInitializeUser:
		return &InitializeUser{}, nil
	case EventTypeInitializeMarket:
		return &InitializeMarket{}, nil
	case EventTypeUpdateMarketParams:
		return &UpdateMarketParams{}, nil
	case EventTypeDeposit:
		return &Deposit{}, nil
	case EventTypeWithdraw:
		return &Withdraw{}, nil
	case EventTypeOpenPosition:
		return &OpenPosition{}, nil
	case EventTypeClosePosition:
		return &ClosePosition{}, nil
	case EventTypePlaceOrder:
		return &PlaceOrder{}, nil
	case EventTypeCancelOrder:
		return &CancelOrder{}, nil
	case EventTypeFillOrder:
		return &FillOrder{}, nil
	case EventTypeAddLiquidity:
		return &AddLiquidity{}, nil
	case EventTypeRemoveLiquidity:
		return &RemoveLiquidity{}, nil
	case EventTypeSettleLP:
		return &SettleLP{}, nil
	case EventTypeSettlePnl:
		return &SettlePnl{}, nil
	case EventTypeOraclePriceUpdate:
		return &OraclePriceUpdate{}, nil
	case EventTypeUpdateFundingRate:
		return &UpdateFundingRate{}, nil
	case EventTypeRepegCurve:
		return &RepegCurve{}, nil
	case EventTypeUpdateK:
		return &UpdateK{}, nil
	case EventTypeWithdrawFromMarketToInsuranceVault:
		return &WithdrawFromMarketToInsuranceVault{}, nil
	case EventTypeWithdrawFromInsuranceVault:
		return &WithdrawFromInsuranceVault{}, nil
	case EventTypeWithdrawFromInsuranceVaultToMarket:
		return &WithdrawFromInsuranceVaultToMarket{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %d", t)
	}
}

// Encode serializes an event for the envelope payload.
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	return data, nil
}

// Decode rebuilds a typed event from an envelope payload.
func Decode(t EventType, data []byte) (Event, error) {
	evt, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return evt, nil
}
