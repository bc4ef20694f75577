package core

import (
	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	"VammLedger/internal/state"
)

func (e *Engine) handleInitializeMarket(tx *txn, evt *event.InitializeMarket) (*Result, error) {
	if _, err := e.markets.Get(evt.Market); err == nil {
		return nil, errs.New(errs.CodeMarketAlreadyExists, "market %d", evt.Market)
	}
	m, err := state.NewMarket(evt.MarketConfig(), tx.now)
	if err != nil {
		return nil, err
	}
	tx.market = m
	tx.newMarket = true
	return &Result{EventType: evt.EventType(), Market: m}, nil
}

func (e *Engine) handleUpdateMarketParams(tx *txn, evt *event.UpdateMarketParams) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := state.ApplyMarketParams(tx.market, evt.Params); err != nil {
		return nil, err
	}
	return &Result{EventType: evt.EventType(), Market: tx.market}, nil
}

// handleOraclePriceUpdate records a reading on the curve and in the oracle
// cache, then rolls the mark TWAPs forward to the reading's timestamp.
func (e *Engine) handleOraclePriceUpdate(tx *txn, evt *event.OraclePriceUpdate) (*Result, error) {
	if evt.Price <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "oracle price must be positive")
	}
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	a := &tx.market.AMM
	if err := a.UpdateOracle(evt.Price, evt.Ts); err != nil {
		return nil, err
	}
	if err := a.UpdateMarkTwaps(evt.Ts); err != nil {
		return nil, err
	}
	reading := state.OraclePrice{Price: evt.Price, Ts: evt.Ts, Sequence: evt.Sequence}
	mi := evt.Market
	tx.onCommit = append(tx.onCommit, func() {
		_, _ = e.oracles.Update(mi, reading)
	})
	return &Result{EventType: evt.EventType(), Market: tx.market}, nil
}

// handleUpdateFundingRate is a no-op before the period elapses. With an
// oracle age limit configured it refuses to fund off a stale reading.
func (e *Engine) handleUpdateFundingRate(tx *txn, evt *event.UpdateFundingRate) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	a := &tx.market.AMM
	res := &Result{EventType: evt.EventType(), Market: tx.market}
	if !a.FundingDue(tx.now) {
		return res, nil
	}
	if e.oracleMaxAge > 0 {
		if _, err := e.oracles.Fresh(evt.Market, tx.now); err != nil {
			return nil, err
		}
	}

	upd, err := a.UpdateFundingRate(tx.now)
	if err != nil {
		return nil, err
	}
	if upd == nil {
		return res, nil
	}
	mi := evt.Market
	tx.onCommit = append(tx.onCommit, func() {
		rec := e.funding.Record(mi, *upd)
		res.Funding = &rec
	})
	return res, nil
}

// handleRepegCurve moves the peg to an explicit multiplier, to the peg that
// prices the curve at a target, or by default to the last oracle price.
func (e *Engine) handleRepegCurve(tx *txn, evt *event.RepegCurve) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	a := &tx.market.AMM
	peg := evt.PegMultiplier
	if peg == 0 {
		target := evt.TargetPrice
		if target == 0 {
			target = a.LastOraclePrice
		}
		var err error
		if peg, err = a.PegFromTargetPrice(target); err != nil {
			return nil, err
		}
	}
	adj, err := a.Repeg(peg)
	if err != nil {
		return nil, err
	}
	return &Result{EventType: evt.EventType(), Adjust: adj, Market: tx.market}, nil
}

func (e *Engine) handleUpdateK(tx *txn, evt *event.UpdateK) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	adj, err := tx.market.AMM.UpdateK(evt.SqrtK)
	if err != nil {
		return nil, err
	}
	return &Result{EventType: evt.EventType(), Adjust: adj, Market: tx.market}, nil
}
