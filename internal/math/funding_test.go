package math_test

import (
	"testing"

	fpmath "VammLedger/internal/math"
)

func TestComputeFundingRate(t *testing.T) {
	// mark 1.01, oracle 1.00, one hour: spread 0.01 paid over 24h
	mark := int64(10_100_000_000)
	oracle := int64(10_000_000_000)
	got, err := fpmath.ComputeFundingRate(mark, oracle, 3600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := int64(100_000_000) * fpmath.FundingPaymentScale / 24
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}

	neg, _ := fpmath.ComputeFundingRate(oracle, mark, 3600)
	if neg != -want {
		t.Errorf("inverted spread: got %d, want %d", neg, -want)
	}
}

func TestComputeFundingPayment_Direction(t *testing.T) {
	rate := int64(1_000_000_000_000) // 0.1 per base in price units
	one := fpmath.BaseAssetPrecision

	long, err := fpmath.ComputeFundingPayment(one, rate, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if long != -100_000 {
		t.Errorf("long pays: got %d, want -100000", long)
	}
	short, _ := fpmath.ComputeFundingPayment(-one, rate, 0)
	if short != 100_000 {
		t.Errorf("short receives: got %d, want 100000", short)
	}
}

func TestComputeFundingPayment_RoundsAgainstHolder(t *testing.T) {
	// tiny payment below one quote unit
	pay, _ := fpmath.ComputeFundingPayment(1, 1, 0)
	if pay != -1 {
		t.Errorf("owed dust rounds away from zero: got %d, want -1", pay)
	}
	recv, _ := fpmath.ComputeFundingPayment(-1, 1, 0)
	if recv != 0 {
		t.Errorf("received dust rounds toward zero: got %d, want 0", recv)
	}
}
