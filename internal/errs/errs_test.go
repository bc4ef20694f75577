package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"VammLedger/internal/errs"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := errs.New(errs.CodeSlippageExceeded, "price %d beyond limit %d", 10, 9)

	if !errors.Is(err, errs.ErrSlippageExceeded) {
		t.Error("coded error should match its sentinel")
	}
	if errors.Is(err, errs.ErrInsufficientMargin) {
		t.Error("coded error should not match a different sentinel")
	}
}

func TestError_IsThroughWrapping(t *testing.T) {
	base := errs.New(errs.CodeMarketNotFound, "market 7")
	wrapped := fmt.Errorf("open position: %w", base)

	if !errors.Is(wrapped, errs.ErrMarketNotFound) {
		t.Error("wrapped error should still match sentinel")
	}
	if got := errs.CodeOf(wrapped); got != errs.CodeMarketNotFound {
		t.Errorf("got %v, want %v", got, errs.CodeMarketNotFound)
	}
}

func TestCodeOf_Plain(t *testing.T) {
	if got := errs.CodeOf(errors.New("boom")); got != errs.CodeUnknown {
		t.Errorf("got %v, want %v", got, errs.CodeUnknown)
	}
}

func TestError_Message(t *testing.T) {
	err := errs.Wrap(errs.CodeCollateralTransferFailed, errors.New("timeout"), "credit")
	want := "collateral_transfer_failed: credit: timeout"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if errs.ErrCooldownNotElapsed.Error() != "cooldown_not_elapsed" {
		t.Errorf("got %q", errs.ErrCooldownNotElapsed.Error())
	}
}
