// Package returns computes per-bin period returns from the NAV delta
// between the current and previous account snapshots.
package returns

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
)

// Manager stores period returns keyed by bin timestamp.
type Manager struct {
	mu      sync.RWMutex
	account model.AccountManager
	series  map[time.Time]decimal.Decimal
}

// New creates a Manager reading NAV from the given account manager.
func New(acct model.AccountManager) *Manager {
	return &Manager{
		account: acct,
		series:  make(map[time.Time]decimal.Decimal),
	}
}

// ComputeReturns records the period return for the bin at ts:
// NAV / previousNAV - 1. The first bin has no previous NAV (zero), so
// nothing is recorded for it.
func (m *Manager) ComputeReturns(ts time.Time) error {
	prev := m.account.PreviousNAV()
	if prev.IsZero() {
		return nil
	}
	r := m.account.NAV().Div(prev).Sub(decimal.NewFromInt(1))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[ts] = r
	return nil
}

// Return returns the recorded period return for a bin timestamp, if any.
func (m *Manager) Return(ts time.Time) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.series[ts]
	return r, ok
}

// Len returns the number of recorded periods.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.series)
}
