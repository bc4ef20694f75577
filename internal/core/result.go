package core

import (
	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	"VammLedger/internal/lp"
	"VammLedger/internal/state"
)

// Result is the outcome of one command. Only the fields relevant to the
// command are set.
type Result struct {
	Sequence  int64           `json:"sequence,omitempty"`
	EventType event.EventType `json:"-"`
	Duplicate bool            `json:"duplicate,omitempty"`
	StateHash [32]byte        `json:"-"`

	Swap         *amm.SwapResult       `json:"swap,omitempty"`
	Position     *state.PositionUpdate `json:"position,omitempty"`
	Liquidity    *lp.Change            `json:"liquidity,omitempty"`
	LpSettlement *lp.Settlement        `json:"lp_settlement,omitempty"`
	Pnl          *state.PnlSettlement  `json:"pnl,omitempty"`
	Funding      *state.FundingRecord  `json:"funding,omitempty"`
	Adjust       *amm.AdjustResult     `json:"adjust,omitempty"`
	Order        *state.Order          `json:"order,omitempty"`
	Margin       *state.MarginSummary  `json:"margin,omitempty"`
	Market       *state.Market         `json:"market,omitempty"`
	Account      *state.UserAccount    `json:"account,omitempty"`
	Vault        *state.InsuranceVault `json:"insurance_vault,omitempty"`
}

func errCode(err error) string {
	if code := errs.CodeOf(err); code != errs.CodeUnknown {
		return code.String()
	}
	return "internal"
}
