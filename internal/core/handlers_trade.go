package core

import (
	"VammLedger/internal/amm"
	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"
)

// trade swaps against the locked market's curve and books the fill on the
// locked user's position. A reduce-only trade is clamped to the open base
// and refused when it would open or extend a position.
func (e *Engine) trade(tx *txn, dir amm.Direction, base, limit int64, reduceOnly bool) (*amm.SwapResult, state.PositionUpdate, error) {
	m, u := tx.market, tx.user

	before, err := state.CalculateMargin(u, tx.view())
	if err != nil {
		return nil, state.PositionUpdate{}, err
	}
	if err := m.AMM.UpdateMarkTwaps(tx.now); err != nil {
		return nil, state.PositionUpdate{}, err
	}

	pos := tx.position()
	if reduceOnly {
		open := pos.BaseAssetAmount
		if open == 0 || pos.Direction() == dir {
			return nil, state.PositionUpdate{}, errs.New(errs.CodeReduceOnlyIncreasedRisk,
				"reduce-only %s against open base %d", dir, open)
		}
		base = fpmath.Min(base, fpmath.Abs(open))
	}

	swap, err := m.AMM.SwapBase(dir, base, limit)
	if err != nil {
		return nil, state.PositionUpdate{}, err
	}
	upd, err := pos.ApplyTrade(&m.AMM, swap.BaseAssetAmount, swap.TraderQuoteDelta)
	if err != nil {
		return nil, state.PositionUpdate{}, err
	}
	fees, err := fpmath.CheckedAdd(u.TotalFeePaid, swap.Fee)
	if err != nil {
		return nil, state.PositionUpdate{}, err
	}
	u.TotalFeePaid = fees

	after, err := state.CalculateMargin(u, tx.view())
	if err != nil {
		return nil, state.PositionUpdate{}, err
	}
	if err := state.CheckTradeRisk(before, after, riskIncreasing(upd)); err != nil {
		return nil, state.PositionUpdate{}, err
	}
	return swap, upd, nil
}

// riskIncreasing is true when the trade grew the open base or flipped it.
func riskIncreasing(upd state.PositionUpdate) bool {
	if upd.BaseBefore != 0 && (upd.BaseBefore < 0) != (upd.BaseAfter < 0) && upd.BaseAfter != 0 {
		return true
	}
	return fpmath.Abs(upd.BaseAfter) > fpmath.Abs(upd.BaseBefore)
}

func (e *Engine) handleOpenPosition(tx *txn, evt *event.OpenPosition) (*Result, error) {
	if evt.BaseAssetAmount <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "base asset amount must be positive")
	}
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	swap, upd, err := e.trade(tx, evt.Direction, evt.BaseAssetAmount, evt.LimitPrice, false)
	if err != nil {
		return nil, err
	}
	return &Result{EventType: evt.EventType(), Swap: swap, Position: &upd, Market: tx.market, Account: tx.user}, nil
}

func (e *Engine) handleClosePosition(tx *txn, evt *event.ClosePosition) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	pos := tx.user.Position(evt.Market)
	if pos == nil || pos.BaseAssetAmount == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "user %s has no open base in market %d", evt.UserID, evt.Market)
	}
	dir, base := pos.Direction().Opposite(), fpmath.Abs(pos.BaseAssetAmount)

	swap, upd, err := e.trade(tx, dir, base, evt.LimitPrice, true)
	if err != nil {
		return nil, err
	}
	e.prune(tx)
	return &Result{EventType: evt.EventType(), Swap: swap, Position: &upd, Market: tx.market, Account: tx.user}, nil
}

// handlePlaceOrder executes market orders at once and rests limit orders.
// A market order never rests: whatever the curve cannot fill is canceled.
func (e *Engine) handlePlaceOrder(tx *txn, evt *event.PlaceOrder) (*Result, error) {
	if evt.BaseAssetAmount <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "base asset amount must be positive")
	}
	if evt.OrderType == state.OrderTypeLimit && evt.Price <= 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "limit order needs a price")
	}
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	if tx.user.Position(evt.Market) == nil {
		tx.position()
	}
	o, err := tx.user.AddOrder(state.Order{
		MarketIndex:     evt.Market,
		OrderType:       evt.OrderType,
		Direction:       evt.Direction,
		BaseAssetAmount: evt.BaseAssetAmount,
		Price:           evt.Price,
		ReduceOnly:      evt.ReduceOnly,
		Timestamp:       tx.now,
	})
	if err != nil {
		return nil, err
	}
	res := &Result{EventType: evt.EventType(), Market: tx.market, Account: tx.user}
	if evt.OrderType == state.OrderTypeLimit {
		placed := *o
		res.Order = &placed
		return res, nil
	}

	orderID := o.OrderID
	if err := e.fill(tx, orderID, res); err != nil {
		return nil, err
	}
	if o, err := tx.user.Order(orderID); err == nil {
		o.Status = state.OrderStatusCanceled
		final := tx.user.RemoveOrder(orderID)
		res.Order = &final
	}
	e.prune(tx)
	return res, nil
}

func (e *Engine) handleCancelOrder(tx *txn, evt *event.CancelOrder) (*Result, error) {
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	o, err := tx.user.CancelOrder(evt.OrderID)
	if err != nil {
		return nil, err
	}
	return &Result{EventType: evt.EventType(), Order: &o, Account: tx.user}, nil
}

// handleFillOrder is the keeper path for resting orders.
func (e *Engine) handleFillOrder(tx *txn, evt *event.FillOrder) (*Result, error) {
	if err := tx.lockMarket(evt.Market); err != nil {
		return nil, err
	}
	if err := tx.lockUser(evt.UserID); err != nil {
		return nil, err
	}
	o, err := tx.user.Order(evt.OrderID)
	if err != nil {
		return nil, err
	}
	if o.MarketIndex != evt.Market {
		return nil, errs.New(errs.CodeInvalidArgument, "order %d is in market %d", evt.OrderID, o.MarketIndex)
	}
	res := &Result{EventType: evt.EventType(), Market: tx.market, Account: tx.user}
	if err := e.fill(tx, evt.OrderID, res); err != nil {
		return nil, err
	}
	e.prune(tx)
	return res, nil
}

// fill executes as much of an open order as its limit allows and frees the
// slot once the order is done. The order is written to res.
func (e *Engine) fill(tx *txn, orderID uint64, res *Result) error {
	m := tx.market
	o, err := tx.user.Order(orderID)
	if err != nil {
		return err
	}
	if o.Status != state.OrderStatusOpen {
		return errs.New(errs.CodeOrderNotOpen, "order %d is %s", orderID, o.Status)
	}

	amount := o.RemainingBaseAssetAmount()
	if o.OrderType == state.OrderTypeLimit {
		reach, err := m.AMM.BaseAssetAmountToPrice(o.Direction, o.Price)
		if err != nil {
			return err
		}
		if reach == 0 {
			return errs.New(errs.CodeSlippageExceeded, "order %d limit %d not reachable", orderID, o.Price)
		}
		amount = fpmath.Min(amount, reach)
	}
	dir, limit, reduceOnly := o.Direction, o.Price, o.ReduceOnly

	swap, upd, err := e.trade(tx, dir, amount, limit, reduceOnly)
	if err != nil {
		return err
	}
	// trade may have inserted a position; look the order up again
	if o, err = tx.user.Order(orderID); err != nil {
		return err
	}
	o.RecordFill(fpmath.Abs(swap.BaseAssetAmount), swap.QuoteAssetAmount, swap.Fee)
	if o.RemainingBaseAssetAmount() < m.AMM.BaseAssetAmountStepSize {
		o.Status = state.OrderStatusFilled
	}
	if reduceOnly && upd.BaseAfter == 0 {
		o.Status = state.OrderStatusFilled
	}

	snapshot := *o
	if o.Status != state.OrderStatusOpen {
		snapshot = tx.user.RemoveOrder(orderID)
	}
	res.Swap = swap
	res.Position = &upd
	res.Order = &snapshot
	return nil
}
