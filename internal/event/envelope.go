package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeInitializeUser
	EventTypeInitializeMarket
	EventTypeUpdateMarketParams
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeOpenPosition
	EventTypeClosePosition
	EventTypePlaceOrder
	EventTypeCancelOrder
	EventTypeFillOrder
	EventTypeAddLiquidity
	EventTypeRemoveLiquidity
	EventTypeSettleLP
	EventTypeSettlePnl
	EventTypeOraclePriceUpdate
	EventTypeUpdateFundingRate
	EventTypeRepegCurve
	EventTypeUpdateK
	EventTypeWithdrawFromMarketToInsuranceVault
	EventTypeWithdrawFromInsuranceVault
	EventTypeWithdrawFromInsuranceVaultToMarket
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nil for global events)
	MarketIndex *uint16

	// Command timestamp in unix seconds (NOT wall-clock at commit)
	Timestamp int64

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketIndex returns the market context (nil for global events)
	MarketIndex() *uint16

	// SourceSequence returns upstream ordering key, zero when unordered
	SourceSequence() int64

	// OccurredAt returns the command timestamp in unix seconds
	OccurredAt() int64

	// Stamp sets the timestamp if the producer left it empty
	Stamp(ts int64)
}

var eventTypeNames = map[EventType]string{
	EventTypeInitializeUser:                     "InitializeUser",
	EventTypeInitializeMarket:                   "InitializeMarket",
	EventTypeUpdateMarketParams:                 "UpdateMarketParams",
	EventTypeDeposit:                            "Deposit",
	EventTypeWithdraw:                           "Withdraw",
	EventTypeOpenPosition:                       "OpenPosition",
	EventTypeClosePosition:                      "ClosePosition",
	EventTypePlaceOrder:                         "PlaceOrder",
	EventTypeCancelOrder:                        "CancelOrder",
	EventTypeFillOrder:                          "FillOrder",
	EventTypeAddLiquidity:                       "AddLiquidity",
	EventTypeRemoveLiquidity:                    "RemoveLiquidity",
	EventTypeSettleLP:                           "SettleLP",
	EventTypeSettlePnl:                          "SettlePnl",
	EventTypeOraclePriceUpdate:                  "OraclePriceUpdate",
	EventTypeUpdateFundingRate:                  "UpdateFundingRate",
	EventTypeRepegCurve:                         "RepegCurve",
	EventTypeUpdateK:                            "UpdateK",
	EventTypeWithdrawFromMarketToInsuranceVault: "WithdrawFromMarketToInsuranceVault",
	EventTypeWithdrawFromInsuranceVault:         "WithdrawFromInsuranceVault",
	EventTypeWithdrawFromInsuranceVaultToMarket: "WithdrawFromInsuranceVaultToMarket",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// ParseEventType maps a name back to its discriminator.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range eventTypeNames {
		if n == name {
			return t, true
		}
	}
	return EventTypeUnknown, false
}

// EventTypes returns every known discriminator in declaration order.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(eventTypeNames))
	for t := EventTypeInitializeUser; t <= EventTypeWithdrawFromInsuranceVaultToMarket; t++ {
		out = append(out, t)
	}
	return out
}
