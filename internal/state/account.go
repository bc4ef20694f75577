package state

import (
	"sort"

	"VammLedger/internal/errs"

	"github.com/google/uuid"
)

// QuoteBankIndex is the bank that holds quote collateral.
const QuoteBankIndex uint16 = 0

// UserAccount is everything one user holds: bank balances, per-market
// positions and resting orders. Positions and balances are kept sorted by
// index so iteration and hashing are deterministic.
type UserAccount struct {
	UserID       uuid.UUID      `json:"user_id"`
	Name         string         `json:"name,omitempty"`
	BankBalances []BankBalance  `json:"bank_balances"`
	Positions    []UserPosition `json:"positions"`
	Orders       []Order        `json:"orders"`
	NextOrderID  uint64         `json:"next_order_id"`

	TotalDeposits    int64 `json:"total_deposits"`
	TotalWithdrawals int64 `json:"total_withdrawals"`
	TotalFeePaid     int64 `json:"total_fee_paid"`
	CreatedAt        int64 `json:"created_at"`
}

func NewUserAccount(userID uuid.UUID, name string, now int64) *UserAccount {
	return &UserAccount{
		UserID:      userID,
		Name:        name,
		NextOrderID: 1,
		CreatedAt:   now,
	}
}

// Clone returns a deep copy safe to mutate.
func (u *UserAccount) Clone() *UserAccount {
	c := *u
	c.BankBalances = append([]BankBalance(nil), u.BankBalances...)
	c.Positions = append([]UserPosition(nil), u.Positions...)
	c.Orders = append([]Order(nil), u.Orders...)
	return &c
}

// Position returns the position in marketIndex or nil.
func (u *UserAccount) Position(marketIndex uint16) *UserPosition {
	i := sort.Search(len(u.Positions), func(i int) bool {
		return u.Positions[i].MarketIndex >= marketIndex
	})
	if i < len(u.Positions) && u.Positions[i].MarketIndex == marketIndex {
		return &u.Positions[i]
	}
	return nil
}

// GetOrCreatePosition returns the position in marketIndex, adding an empty
// one on first touch. Pointers from earlier calls are invalidated by an
// insert.
func (u *UserAccount) GetOrCreatePosition(marketIndex uint16) *UserPosition {
	i := sort.Search(len(u.Positions), func(i int) bool {
		return u.Positions[i].MarketIndex >= marketIndex
	})
	if i < len(u.Positions) && u.Positions[i].MarketIndex == marketIndex {
		return &u.Positions[i]
	}
	u.Positions = append(u.Positions, UserPosition{})
	copy(u.Positions[i+1:], u.Positions[i:])
	u.Positions[i] = UserPosition{MarketIndex: marketIndex}
	return &u.Positions[i]
}

// PrunePositions drops positions that hold nothing.
func (u *UserAccount) PrunePositions() {
	kept := u.Positions[:0]
	for _, p := range u.Positions {
		if !p.IsAvailable() {
			kept = append(kept, p)
		}
	}
	u.Positions = kept
}

// RemovePosition drops the position in marketIndex if it holds nothing and
// reports whether it did.
func (u *UserAccount) RemovePosition(marketIndex uint16) bool {
	for i := range u.Positions {
		if u.Positions[i].MarketIndex == marketIndex && u.Positions[i].IsAvailable() {
			u.Positions = append(u.Positions[:i], u.Positions[i+1:]...)
			return true
		}
	}
	return false
}

// Bank returns the balance for bankIndex, creating an empty deposit.
func (u *UserAccount) Bank(bankIndex uint16) *BankBalance {
	i := sort.Search(len(u.BankBalances), func(i int) bool {
		return u.BankBalances[i].BankIndex >= bankIndex
	})
	if i < len(u.BankBalances) && u.BankBalances[i].BankIndex == bankIndex {
		return &u.BankBalances[i]
	}
	u.BankBalances = append(u.BankBalances, BankBalance{})
	copy(u.BankBalances[i+1:], u.BankBalances[i:])
	u.BankBalances[i] = BankBalance{BankIndex: bankIndex}
	return &u.BankBalances[i]
}

// CollateralValue is deposits minus borrows in the quote bank.
func (u *UserAccount) CollateralValue() int64 {
	for i := range u.BankBalances {
		if u.BankBalances[i].BankIndex == QuoteBankIndex {
			return u.BankBalances[i].Signed()
		}
	}
	return 0
}

// ApplyCollateral moves the quote bank balance by a signed delta.
func (u *UserAccount) ApplyCollateral(delta int64) error {
	return u.Bank(QuoteBankIndex).Apply(delta)
}

// ============================================================================
// Orders
// ============================================================================

// AddOrder assigns an id, opens the order and counts it on its position.
func (u *UserAccount) AddOrder(o Order) (*Order, error) {
	if len(u.Orders) >= MaxOpenOrders {
		return nil, errs.New(errs.CodeMaxNumberOfOrders, "account holds %d orders", len(u.Orders))
	}
	if u.NextOrderID == 0 {
		u.NextOrderID = 1
	}
	o.OrderID = u.NextOrderID
	o.Status = OrderStatusOpen
	u.NextOrderID++

	pos := u.GetOrCreatePosition(o.MarketIndex)
	pos.OpenOrders++
	u.Orders = append(u.Orders, o)
	return &u.Orders[len(u.Orders)-1], nil
}

// Order returns the resting order with orderID.
func (u *UserAccount) Order(orderID uint64) (*Order, error) {
	for i := range u.Orders {
		if u.Orders[i].OrderID == orderID {
			return &u.Orders[i], nil
		}
	}
	return nil, errs.New(errs.CodeOrderDoesNotExist, "order %d", orderID)
}

// CancelOrder closes an open order and frees its slot.
func (u *UserAccount) CancelOrder(orderID uint64) (Order, error) {
	o, err := u.Order(orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status != OrderStatusOpen {
		return Order{}, errs.New(errs.CodeOrderNotOpen, "order %d is %s", orderID, o.Status)
	}
	o.Status = OrderStatusCanceled
	return u.RemoveOrder(orderID), nil
}

// RemoveOrder frees the slot of a filled or canceled order and returns it.
func (u *UserAccount) RemoveOrder(orderID uint64) Order {
	for i := range u.Orders {
		if u.Orders[i].OrderID != orderID {
			continue
		}
		o := u.Orders[i]
		u.Orders = append(u.Orders[:i], u.Orders[i+1:]...)
		if pos := u.Position(o.MarketIndex); pos != nil && pos.OpenOrders > 0 {
			pos.OpenOrders--
		}
		return o
	}
	return Order{}
}

// CanonicalBytes for deterministic hashing
func (u *UserAccount) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, u.UserID[:]...)
	buf = appendInt64sLE(buf,
		int64(u.NextOrderID),
		u.TotalDeposits,
		u.TotalWithdrawals,
		u.TotalFeePaid,
		int64(len(u.BankBalances)),
	)
	for i := range u.BankBalances {
		buf = append(buf, u.BankBalances[i].CanonicalBytes()...)
	}
	buf = appendInt64LE(buf, int64(len(u.Positions)))
	for i := range u.Positions {
		buf = append(buf, u.Positions[i].CanonicalBytes()...)
	}
	buf = appendInt64LE(buf, int64(len(u.Orders)))
	for i := range u.Orders {
		buf = append(buf, u.Orders[i].CanonicalBytes()...)
	}
	return buf
}
