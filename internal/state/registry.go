package state

import (
	"sort"
	"sync"
	"sync/atomic"

	"VammLedger/internal/errs"

	"github.com/google/uuid"
)

// ============================================================================
// Markets
// ============================================================================

// MarketSlot guards one market. Mutations hold the slot lock and swap in a
// fully computed copy with Commit. The risk view is published for lock-free
// margin checks from other markets.
type MarketSlot struct {
	mu     sync.Mutex
	market *Market
	risk   atomic.Pointer[MarketRisk]
}

func (s *MarketSlot) Lock()   { s.mu.Lock() }
func (s *MarketSlot) Unlock() { s.mu.Unlock() }

// Market returns the committed market. The caller must hold the lock and
// must not mutate it.
func (s *MarketSlot) Market() *Market { return s.market }

// Commit installs m and republishes its risk view.
func (s *MarketSlot) Commit(m *Market) error {
	risk, err := m.Risk()
	if err != nil {
		return err
	}
	s.market = m
	s.risk.Store(&risk)
	return nil
}

// Snapshot returns a copy of the committed market.
func (s *MarketSlot) Snapshot() Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.market
}

// Risk returns the last published risk view.
func (s *MarketSlot) Risk() MarketRisk {
	if r := s.risk.Load(); r != nil {
		return *r
	}
	return MarketRisk{}
}

// MarketManager is the set of markets by index.
type MarketManager struct {
	mu    sync.RWMutex
	slots map[uint16]*MarketSlot
}

func NewMarketManager() *MarketManager {
	return &MarketManager{slots: make(map[uint16]*MarketSlot)}
}

func (mm *MarketManager) Get(marketIndex uint16) (*MarketSlot, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	s, ok := mm.slots[marketIndex]
	if !ok {
		return nil, errs.New(errs.CodeMarketNotFound, "market %d", marketIndex)
	}
	return s, nil
}

// Create registers a new market. The index must be unused.
func (mm *MarketManager) Create(m *Market) (*MarketSlot, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.slots[m.MarketIndex]; ok {
		return nil, errs.New(errs.CodeMarketAlreadyExists, "market %d", m.MarketIndex)
	}
	s := &MarketSlot{}
	if err := s.Commit(m); err != nil {
		return nil, err
	}
	mm.slots[m.MarketIndex] = s
	return s, nil
}

// Restore replaces or adds a market (used for snapshot restore)
func (mm *MarketManager) Restore(m *Market) error {
	s := &MarketSlot{}
	if err := s.Commit(m); err != nil {
		return err
	}
	mm.mu.Lock()
	mm.slots[m.MarketIndex] = s
	mm.mu.Unlock()
	return nil
}

// Indices returns every market index, ascending.
func (mm *MarketManager) Indices() []uint16 {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	out := make([]uint16, 0, len(mm.slots))
	for k := range mm.slots {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarketRisk implements MarketView over the published risk views.
func (mm *MarketManager) MarketRisk(marketIndex uint16) (MarketRisk, error) {
	s, err := mm.Get(marketIndex)
	if err != nil {
		return MarketRisk{}, err
	}
	return s.Risk(), nil
}

// ============================================================================
// Accounts
// ============================================================================

// AccountSlot guards one user account.
type AccountSlot struct {
	mu      sync.Mutex
	account *UserAccount
}

func (s *AccountSlot) Lock()   { s.mu.Lock() }
func (s *AccountSlot) Unlock() { s.mu.Unlock() }

// Account returns the committed account. The caller must hold the lock and
// must not mutate it.
func (s *AccountSlot) Account() *UserAccount { return s.account }

func (s *AccountSlot) Commit(a *UserAccount) { s.account = a }

// Snapshot returns a deep copy of the committed account.
func (s *AccountSlot) Snapshot() *UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.Clone()
}

// AccountManager is the set of user accounts by id.
type AccountManager struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*AccountSlot
}

func NewAccountManager() *AccountManager {
	return &AccountManager{accounts: make(map[uuid.UUID]*AccountSlot)}
}

func (am *AccountManager) Get(userID uuid.UUID) (*AccountSlot, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()
	s, ok := am.accounts[userID]
	if !ok {
		return nil, errs.New(errs.CodeUserAccountNotFound, "user %s", userID)
	}
	return s, nil
}

// Create registers a new account. The id must be unused.
func (am *AccountManager) Create(a *UserAccount) (*AccountSlot, error) {
	am.mu.Lock()
	defer am.mu.Unlock()
	if _, ok := am.accounts[a.UserID]; ok {
		return nil, errs.New(errs.CodeUserAccountAlreadyExists, "user %s", a.UserID)
	}
	s := &AccountSlot{account: a}
	am.accounts[a.UserID] = s
	return s, nil
}

// Restore replaces or adds an account (used for snapshot restore)
func (am *AccountManager) Restore(a *UserAccount) {
	am.mu.Lock()
	am.accounts[a.UserID] = &AccountSlot{account: a}
	am.mu.Unlock()
}

// IDs returns every user id in byte order.
func (am *AccountManager) IDs() []uuid.UUID {
	am.mu.RLock()
	defer am.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(am.accounts))
	for k := range am.accounts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i][:]) < string(out[j][:])
	})
	return out
}

func (am *AccountManager) Len() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.accounts)
}
