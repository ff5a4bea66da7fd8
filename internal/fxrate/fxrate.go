// Package fxrate holds a tenant's currency-pair rate table.
package fxrate

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
)

// Manager stores the latest rate per currency pair plus the previous
// bin's archived table.
type Manager struct {
	mu       sync.RWMutex
	rates    map[string]model.FXRate
	previous map[string]model.FXRate
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{
		rates:    make(map[string]model.FXRate),
		previous: make(map[string]model.FXRate),
	}
}

// UpdateRates ingests a batch of rates, replacing per-pair latest values.
func (m *Manager) UpdateRates(rates []model.FXRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rates {
		m.rates[r.Pair()] = r
	}
}

// Rate returns the latest rate for a pair, if known.
func (m *Manager) Rate(base, quote string) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rates[base+"/"+quote]
	if !ok {
		return decimal.Zero, false
	}
	return r.Rate, true
}

// Convert converts an amount between currencies using the latest rate.
// Identity conversion needs no rate; otherwise an unknown pair errors.
func (m *Manager) Convert(amount decimal.Decimal, base, quote string) (decimal.Decimal, error) {
	if base == quote {
		return amount, nil
	}
	rate, ok := m.Rate(base, quote)
	if !ok {
		return decimal.Zero, fmt.Errorf("fxrate: no rate for %s/%s", base, quote)
	}
	return amount.Mul(rate), nil
}

// SavePrevious archives the current rate table for next-bin deltas.
func (m *Manager) SavePrevious() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous = make(map[string]model.FXRate, len(m.rates))
	for pair, r := range m.rates {
		m.previous[pair] = r
	}
}

// PreviousRate returns the archived rate for a pair, if any.
func (m *Manager) PreviousRate(base, quote string) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.previous[base+"/"+quote]
	if !ok {
		return decimal.Zero, false
	}
	return r.Rate, true
}
