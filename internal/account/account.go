// Package account tracks one tenant's balances and NAV. Account types
// are a closed enum so an invalid type is a compile-time error, not a
// runtime string mismatch.
package account

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
)

// Type identifies a balance bucket.
type Type int

const (
	Cash Type = iota
	Credit
	ShortCredit
	Margin
)

var typeNames = map[Type]string{
	Cash:        "CASH",
	Credit:      "CREDIT",
	ShortCredit: "SHORT_CREDIT",
	Margin:      "MARGIN",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Manager owns one tenant's balances and NAV. NAV is balances plus the
// portfolio's mark-to-market valuation, so RecomputeNAV must run after
// the portfolio update of the same bin.
type Manager struct {
	mu       sync.RWMutex
	balances map[Type]decimal.Decimal
	nav      decimal.Decimal

	prevBalances map[Type]decimal.Decimal
	prevNAV      decimal.Decimal

	portfolio model.PortfolioManager
}

// New creates a Manager drawing valuation from the given portfolio.
func New(pf model.PortfolioManager) *Manager {
	return &Manager{
		balances:     make(map[Type]decimal.Decimal),
		prevBalances: make(map[Type]decimal.Decimal),
		portfolio:    pf,
	}
}

// Deposit adds to a balance bucket.
func (m *Manager) Deposit(t Type, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[t] = m.balances[t].Add(amount)
}

// Balance returns one bucket's balance.
func (m *Manager) Balance(t Type) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[t]
}

// RecomputeNAV recalculates NAV as total balances plus portfolio
// valuation. Credit buckets add, short-credit subtracts.
func (m *Manager) RecomputeNAV() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nav := decimal.Zero
	for t, bal := range m.balances {
		if t == ShortCredit {
			nav = nav.Sub(bal)
		} else {
			nav = nav.Add(bal)
		}
	}
	if m.portfolio != nil {
		nav = nav.Add(m.portfolio.Valuation())
	}
	m.nav = nav
	return nil
}

// NAV returns the most recently computed NAV.
func (m *Manager) NAV() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nav
}

// PreviousNAV returns the NAV archived by the last SavePrevious.
func (m *Manager) PreviousNAV() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prevNAV
}

// SavePrevious archives current balances and NAV as the previous state.
func (m *Manager) SavePrevious() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prevBalances = make(map[Type]decimal.Decimal, len(m.balances))
	for t, bal := range m.balances {
		m.prevBalances[t] = bal
	}
	m.prevNAV = m.nav
}
