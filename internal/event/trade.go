package event

import (
	"VammLedger/internal/amm"
	"VammLedger/internal/state"

	"github.com/google/uuid"
)

// OpenPosition trades base against the curve at the market.
type OpenPosition struct {
	Header
	MarketRef
	UserID          uuid.UUID     `json:"user_id"`
	Direction       amm.Direction `json:"direction"`
	BaseAssetAmount int64         `json:"base_asset_amount"` // Fixed-point: base precision, unsigned
	// Worst acceptable post-trade price; zero disables the check
	LimitPrice int64 `json:"limit_price,omitempty"`
}

func (e *OpenPosition) EventType() EventType { return EventTypeOpenPosition }

// ClosePosition trades the whole open base back to the curve.
type ClosePosition struct {
	Header
	MarketRef
	UserID     uuid.UUID `json:"user_id"`
	LimitPrice int64     `json:"limit_price,omitempty"`
}

func (e *ClosePosition) EventType() EventType { return EventTypeClosePosition }

// PlaceOrder records an order. Market orders execute immediately; limit
// orders rest until filled by FillOrder.
type PlaceOrder struct {
	Header
	MarketRef
	UserID          uuid.UUID       `json:"user_id"`
	OrderType       state.OrderType `json:"order_type"`
	Direction       amm.Direction   `json:"direction"`
	BaseAssetAmount int64           `json:"base_asset_amount"`
	Price           int64           `json:"price,omitempty"`
	ReduceOnly      bool            `json:"reduce_only,omitempty"`
}

func (e *PlaceOrder) EventType() EventType { return EventTypePlaceOrder }

// CancelOrder frees an open order slot.
type CancelOrder struct {
	Header
	Global
	UserID  uuid.UUID `json:"user_id"`
	OrderID uint64    `json:"order_id"`
}

func (e *CancelOrder) EventType() EventType { return EventTypeCancelOrder }

// FillOrder is the permissionless keeper call that executes a resting order
// as far as its limit price allows.
type FillOrder struct {
	Header
	MarketRef
	UserID  uuid.UUID `json:"user_id"`
	OrderID uint64    `json:"order_id"`
}

func (e *FillOrder) EventType() EventType { return EventTypeFillOrder }

// SettlePnl moves a position's unsettled pnl into the quote bank.
type SettlePnl struct {
	Header
	MarketRef
	UserID uuid.UUID `json:"user_id"`
}

func (e *SettlePnl) EventType() EventType { return EventTypeSettlePnl }
