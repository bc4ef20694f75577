package math

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func decimalsOf(precision int64) int32 {
	var d int32
	for p := precision; p > 1; p /= 10 {
		d++
	}
	return d
}

// ToDecimal renders a fixed-point integer as an exact decimal.
func ToDecimal(v, precision int64) decimal.Decimal {
	return decimal.New(v, -decimalsOf(precision))
}

// FormatFixed renders v with every digit of its precision.
func FormatFixed(v, precision int64) string {
	d := decimalsOf(precision)
	return decimal.New(v, -d).StringFixed(d)
}

func FormatQuote(v int64) string { return FormatFixed(v, QuotePrecision) }
func FormatBase(v int64) string  { return FormatFixed(v, BaseAssetPrecision) }
func FormatPrice(v int64) string { return FormatFixed(v, MarkPricePrecision) }

// ParseFixed parses a human decimal string into fixed point. Digits beyond
// the precision are rejected rather than silently truncated.
func ParseFixed(s string, precision int64) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	scaled := d.Shift(decimalsOf(precision))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("parse %q: more than %d decimal places", s, decimalsOf(precision))
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("parse %q: out of range", s)
	}
	return bi.Int64(), nil
}
