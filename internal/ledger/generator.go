package ledger

import (
	"github.com/google/uuid"
)

// JournalGenerator builds balanced batches for the cash movements of the
// engine. Positions and curve accounting are not cash and never appear
// here; only collateral entering, leaving or moving between user banks,
// market pnl pools and the insurance vault does.
type JournalGenerator struct {
	assetID AssetID
}

func NewJournalGenerator(assetID AssetID) *JournalGenerator {
	return &JournalGenerator{assetID: assetID}
}

func (jg *JournalGenerator) userCollateral(userID uuid.UUID) AccountKey {
	return NewUserAccountKey(userID, SubTypeCollateral, jg.assetID)
}

// Deposit moves funds: external:deposits → user:collateral
func (jg *JournalGenerator) Deposit(b *Batch, userID uuid.UUID, amount int64) {
	b.Transfer(
		jg.userCollateral(userID),
		NewExternalAccountKey(SubTypeExternalDeposits, jg.assetID),
		amount,
		JournalTypeDeposit,
	)
}

// Withdrawal moves funds: user:collateral → external:withdrawals
func (jg *JournalGenerator) Withdrawal(b *Batch, userID uuid.UUID, amount int64) {
	b.Transfer(
		NewExternalAccountKey(SubTypeExternalWithdrawals, jg.assetID),
		jg.userCollateral(userID),
		amount,
		JournalTypeWithdrawal,
	)
}

// PnlSettlement moves settled pnl between a market pool and a user. A
// positive amount pays the user, a negative one collects from them.
func (jg *JournalGenerator) PnlSettlement(b *Batch, userID uuid.UUID, marketIndex uint16, settled int64) {
	b.Transfer(
		jg.userCollateral(userID),
		NewPnlPoolAccountKey(marketIndex, jg.assetID),
		settled,
		JournalTypePnlSettle,
	)
}

// MarketToInsurance moves fees: market:pnl_pool → insurance_vault
func (jg *JournalGenerator) MarketToInsurance(b *Batch, marketIndex uint16, amount int64) {
	b.Transfer(
		NewInsuranceVaultAccountKey(jg.assetID),
		NewPnlPoolAccountKey(marketIndex, jg.assetID),
		amount,
		JournalTypeMarketToInsurance,
	)
}

// InsuranceWithdrawal moves funds: insurance_vault → external:withdrawals
func (jg *JournalGenerator) InsuranceWithdrawal(b *Batch, amount int64) {
	b.Transfer(
		NewExternalAccountKey(SubTypeExternalWithdrawals, jg.assetID),
		NewInsuranceVaultAccountKey(jg.assetID),
		amount,
		JournalTypeInsuranceWithdrawal,
	)
}

// InsuranceToMarket moves funds: insurance_vault → market:pnl_pool
func (jg *JournalGenerator) InsuranceToMarket(b *Batch, marketIndex uint16, amount int64) {
	b.Transfer(
		NewPnlPoolAccountKey(marketIndex, jg.assetID),
		NewInsuranceVaultAccountKey(jg.assetID),
		amount,
		JournalTypeInsuranceToMarket,
	)
}
