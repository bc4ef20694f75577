package event

import "github.com/google/uuid"

// AddLiquidity mints LP shares and deepens the curve by the same amount.
type AddLiquidity struct {
	Header
	MarketRef
	UserID uuid.UUID `json:"user_id"`
	Shares int64     `json:"shares"` // Fixed-point: reserve precision
}

func (e *AddLiquidity) EventType() EventType { return EventTypeAddLiquidity }

// RemoveLiquidity burns LP shares. Zero shares burns everything held.
type RemoveLiquidity struct {
	Header
	MarketRef
	UserID uuid.UUID `json:"user_id"`
	Shares int64     `json:"shares,omitempty"`
}

func (e *RemoveLiquidity) EventType() EventType { return EventTypeRemoveLiquidity }

// SettleLP folds an LP's accrued counter-flow into their position.
// Anyone may submit it for any user.
type SettleLP struct {
	Header
	MarketRef
	UserID uuid.UUID `json:"user_id"`
}

func (e *SettleLP) EventType() EventType { return EventTypeSettleLP }
