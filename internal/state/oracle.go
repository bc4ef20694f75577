package state

import (
	"sort"
	"sync"

	"VammLedger/internal/errs"
)

// OraclePrice is the latest external price reading for a market.
type OraclePrice struct {
	Price    int64 `json:"price"`
	Ts       int64 `json:"ts"`
	Sequence int64 `json:"sequence"`
}

// OracleCache keeps the latest oracle reading per market. Stale or
// duplicate sequences are ignored.
type OracleCache struct {
	mu     sync.RWMutex
	prices map[uint16]OraclePrice
	maxAge int64
}

// NewOracleCache builds a cache. A reading older than maxAge seconds is
// stale; zero disables the check.
func NewOracleCache(maxAge int64) *OracleCache {
	return &OracleCache{
		prices: make(map[uint16]OraclePrice),
		maxAge: maxAge,
	}
}

// Update stores p unless a reading with an equal or later sequence is
// already held. It reports whether p was accepted.
func (c *OracleCache) Update(marketIndex uint16, p OraclePrice) (bool, error) {
	if p.Price <= 0 {
		return false, errs.New(errs.CodeInvalidArgument, "oracle price must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.prices[marketIndex]; ok && p.Sequence <= cur.Sequence {
		return false, nil
	}
	c.prices[marketIndex] = p
	return true, nil
}

// OraclePrice returns the latest reading for a market.
func (c *OracleCache) OraclePrice(marketIndex uint16) (OraclePrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[marketIndex]
	return p, ok
}

// Fresh returns the latest reading, failing when it is missing or older
// than the configured age at now.
func (c *OracleCache) Fresh(marketIndex uint16, now int64) (OraclePrice, error) {
	p, ok := c.OraclePrice(marketIndex)
	if !ok {
		return OraclePrice{}, errs.New(errs.CodeStaleOracle, "no oracle price for market %d", marketIndex)
	}
	if c.maxAge > 0 && now-p.Ts > c.maxAge {
		return OraclePrice{}, errs.New(errs.CodeStaleOracle, "oracle for market %d is %ds old", marketIndex, now-p.Ts)
	}
	return p, nil
}

// Restore sets a reading directly (used for snapshot restore)
func (c *OracleCache) Restore(marketIndex uint16, p OraclePrice) {
	c.mu.Lock()
	c.prices[marketIndex] = p
	c.mu.Unlock()
}

// All returns a copy of every reading (for snapshot creation)
func (c *OracleCache) All() map[uint16]OraclePrice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint16]OraclePrice, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// Markets returns the indices with a reading, ascending.
func (c *OracleCache) Markets() []uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uint16, 0, len(c.prices))
	for k := range c.prices {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
