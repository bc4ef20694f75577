package state

import (
	"fmt"

	"VammLedger/internal/amm"
)

type OrderStatus uint8

const (
	OrderStatusInit OrderStatus = iota
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInit:
		return "init"
	case OrderStatusOpen:
		return "open"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

func (t OrderType) String() string {
	if t == OrderTypeLimit {
		return "limit"
	}
	return "market"
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OrderType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "market":
		*t = OrderTypeMarket
	case "limit":
		*t = OrderTypeLimit
	default:
		return fmt.Errorf("unknown order type %q", b)
	}
	return nil
}

func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OrderStatus) UnmarshalText(b []byte) error {
	for _, st := range []OrderStatus{OrderStatusInit, OrderStatusOpen, OrderStatusFilled, OrderStatusCanceled} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown order status %q", b)
}

// MaxOpenOrders is the number of order slots per account.
const MaxOpenOrders = 32

// Order is a resting instruction executed against the curve. Price is a
// limit in mark precision, zero for market orders.
type Order struct {
	OrderID                uint64        `json:"order_id"`
	MarketIndex            uint16        `json:"market_index"`
	OrderType              OrderType     `json:"order_type"`
	Direction              amm.Direction `json:"direction"`
	BaseAssetAmount        int64         `json:"base_asset_amount"`
	BaseAssetAmountFilled  int64         `json:"base_asset_amount_filled"`
	QuoteAssetAmount       int64         `json:"quote_asset_amount"`
	QuoteAssetAmountFilled int64         `json:"quote_asset_amount_filled"`
	Fee                    int64         `json:"fee"`
	Price                  int64         `json:"price"`
	ReduceOnly             bool          `json:"reduce_only"`
	Status                 OrderStatus   `json:"status"`
	Timestamp              int64         `json:"timestamp"`
}

// RemainingBaseAssetAmount is the unfilled size.
func (o *Order) RemainingBaseAssetAmount() int64 {
	return o.BaseAssetAmount - o.BaseAssetAmountFilled
}

// RecordFill accumulates one execution and marks the order filled once
// nothing remains.
func (o *Order) RecordFill(base, quote, fee int64) {
	o.BaseAssetAmountFilled += base
	o.QuoteAssetAmountFilled += quote
	o.Fee += fee
	if o.RemainingBaseAssetAmount() <= 0 {
		o.Status = OrderStatusFilled
	}
}

func (o *Order) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80)
	buf = appendInt64LE(buf, int64(o.OrderID))
	buf = append(buf, byte(o.MarketIndex), byte(o.MarketIndex>>8), byte(o.OrderType), byte(o.Direction))
	buf = appendInt64sLE(buf,
		o.BaseAssetAmount,
		o.BaseAssetAmountFilled,
		o.QuoteAssetAmount,
		o.QuoteAssetAmountFilled,
		o.Fee,
		o.Price,
		o.Timestamp,
	)
	reduceOnly := byte(0)
	if o.ReduceOnly {
		reduceOnly = 1
	}
	return append(buf, reduceOnly, byte(o.Status))
}
