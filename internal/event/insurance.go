package event

// WithdrawFromMarketToInsuranceVault sweeps protocol fees of a market into
// the insurance vault. At most half the fee pool may ever be swept.
type WithdrawFromMarketToInsuranceVault struct {
	Header
	MarketRef
	Amount int64 `json:"amount"` // Fixed-point: quote precision
}

func (e *WithdrawFromMarketToInsuranceVault) EventType() EventType {
	return EventTypeWithdrawFromMarketToInsuranceVault
}

// WithdrawFromInsuranceVault pays vault funds out of the system.
type WithdrawFromInsuranceVault struct {
	Header
	Global
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
}

func (e *WithdrawFromInsuranceVault) EventType() EventType {
	return EventTypeWithdrawFromInsuranceVault
}

// WithdrawFromInsuranceVaultToMarket tops up a market's fee pool from the
// vault.
type WithdrawFromInsuranceVaultToMarket struct {
	Header
	MarketRef
	Amount int64 `json:"amount"`
}

func (e *WithdrawFromInsuranceVaultToMarket) EventType() EventType {
	return EventTypeWithdrawFromInsuranceVaultToMarket
}
