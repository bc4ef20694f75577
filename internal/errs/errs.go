package errs

import (
	"errors"
	"fmt"
)

// Code identifies a ledger rejection. Codes are stable and are persisted in
// rejection logs and surfaced to clients.
type Code uint16

const (
	CodeUnknown Code = iota
	CodeArithmeticOverflow
	CodeTradeSizeTooSmall
	CodeTradeSizeTooLarge
	CodeSlippageExceeded
	CodeInsufficientMargin
	CodeInsufficientCollateral
	CodeInsufficientLpShares
	CodeCooldownNotElapsed
	CodeInsufficientFeesAvailable
	CodeInsufficientVaultBalance
	CodeMarketNotFound
	CodeMarketAlreadyExists
	CodeUserAccountNotFound
	CodeUserAccountAlreadyExists
	CodeOrderDoesNotExist
	CodeOrderNotOpen
	CodeMaxNumberOfOrders
	CodeReduceOnlyIncreasedRisk
	CodeInvalidArgument
	CodeStaleOracle
	CodeCollateralTransferFailed
)

var codeNames = map[Code]string{
	CodeUnknown:                   "unknown",
	CodeArithmeticOverflow:        "arithmetic_overflow",
	CodeTradeSizeTooSmall:         "trade_size_too_small",
	CodeTradeSizeTooLarge:         "trade_size_too_large",
	CodeSlippageExceeded:          "slippage_exceeded",
	CodeInsufficientMargin:        "insufficient_margin",
	CodeInsufficientCollateral:    "insufficient_collateral",
	CodeInsufficientLpShares:      "insufficient_lp_shares",
	CodeCooldownNotElapsed:        "cooldown_not_elapsed",
	CodeInsufficientFeesAvailable: "insufficient_fees_available",
	CodeInsufficientVaultBalance:  "insufficient_vault_balance",
	CodeMarketNotFound:            "market_not_found",
	CodeMarketAlreadyExists:       "market_already_exists",
	CodeUserAccountNotFound:       "user_account_not_found",
	CodeUserAccountAlreadyExists:  "user_account_already_exists",
	CodeOrderDoesNotExist:         "order_does_not_exist",
	CodeOrderNotOpen:              "order_not_open",
	CodeMaxNumberOfOrders:         "max_number_of_orders",
	CodeReduceOnlyIncreasedRisk:   "reduce_only_increased_risk",
	CodeInvalidArgument:           "invalid_argument",
	CodeStaleOracle:               "stale_oracle",
	CodeCollateralTransferFailed:  "collateral_transfer_failed",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}

// Error is a typed rejection. Two errors match under errors.Is when their
// codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Code.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

var (
	ErrArithmeticOverflow        = &Error{Code: CodeArithmeticOverflow}
	ErrTradeSizeTooSmall         = &Error{Code: CodeTradeSizeTooSmall}
	ErrTradeSizeTooLarge         = &Error{Code: CodeTradeSizeTooLarge}
	ErrSlippageExceeded          = &Error{Code: CodeSlippageExceeded}
	ErrInsufficientMargin        = &Error{Code: CodeInsufficientMargin}
	ErrInsufficientCollateral    = &Error{Code: CodeInsufficientCollateral}
	ErrInsufficientLpShares      = &Error{Code: CodeInsufficientLpShares}
	ErrCooldownNotElapsed        = &Error{Code: CodeCooldownNotElapsed}
	ErrInsufficientFeesAvailable = &Error{Code: CodeInsufficientFeesAvailable}
	ErrInsufficientVaultBalance  = &Error{Code: CodeInsufficientVaultBalance}
	ErrMarketNotFound            = &Error{Code: CodeMarketNotFound}
	ErrMarketAlreadyExists       = &Error{Code: CodeMarketAlreadyExists}
	ErrUserAccountNotFound       = &Error{Code: CodeUserAccountNotFound}
	ErrUserAccountAlreadyExists  = &Error{Code: CodeUserAccountAlreadyExists}
	ErrOrderDoesNotExist         = &Error{Code: CodeOrderDoesNotExist}
	ErrOrderNotOpen              = &Error{Code: CodeOrderNotOpen}
	ErrMaxNumberOfOrders         = &Error{Code: CodeMaxNumberOfOrders}
	ErrReduceOnlyIncreasedRisk   = &Error{Code: CodeReduceOnlyIncreasedRisk}
	ErrInvalidArgument           = &Error{Code: CodeInvalidArgument}
	ErrStaleOracle               = &Error{Code: CodeStaleOracle}
	ErrCollateralTransferFailed  = &Error{Code: CodeCollateralTransferFailed}
)

// Overflow is shorthand used throughout the numeric kernel.
func Overflow(op string) *Error {
	return &Error{Code: CodeArithmeticOverflow, Msg: op}
}
