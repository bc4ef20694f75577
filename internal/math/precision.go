package math

// Fixed-point scales per dimension. Reserves, base amounts and LP shares share
// one scale so that sqrtK and share counts are directly comparable.
const (
	AmmReservePrecision  int64 = 10_000_000_000_000 // 1e13
	BaseAssetPrecision         = AmmReservePrecision
	LpSharePrecision           = AmmReservePrecision
	QuotePrecision       int64 = 1_000_000      // 1e6
	MarkPricePrecision   int64 = 10_000_000_000 // 1e10
	PegPrecision         int64 = 1_000          // 1e3
	MarginPrecision      int64 = 10_000         // 1e4
	SpreadPrecision      int64 = 1_000_000      // 1e6
	FundingPaymentScale  int64 = 1_000
	FundingRatePrecision       = MarkPricePrecision * FundingPaymentScale // 1e13

	// reserve * peg -> quote
	AmmTimesPegToQuotePrecisionRatio = AmmReservePrecision * PegPrecision / QuotePrecision // 1e10
	// base * mark price -> quote
	BaseTimesPriceToQuotePrecisionRatio = AmmReservePrecision / QuotePrecision * MarkPricePrecision // 1e17
	// mark price -> peg
	PriceToPegPrecisionRatio = MarkPricePrecision / PegPrecision // 1e7
	// quote -> mark price
	QuoteToPricePrecisionRatio = MarkPricePrecision / QuotePrecision // 1e4
	// base -> quote amount at unit price
	BaseToQuotePrecisionRatio = AmmReservePrecision / QuotePrecision // 1e7
)
