// Package portfolio tracks one tenant's positions and mark-to-market
// valuation.
//
// It maintains the tenant's open positions, revalues them against the
// latest bin close prices, and archives a previous-state snapshot at the
// end of each bin for next-bin delta calculations.
package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Position represents a single instrument position.
type Position struct {
	Symbol   string          `json:"symbol"`
	Qty      int64           `json:"qty"`       // positive = long, negative = short
	AvgPrice decimal.Decimal `json:"avg_price"` // average entry price
	LastPx   decimal.Decimal `json:"last_px"`   // latest mark price
}

// MarketValue returns the position's current mark-to-market value.
func (p *Position) MarketValue() decimal.Decimal {
	return p.LastPx.Mul(decimal.NewFromInt(p.Qty))
}

// UnrealizedPnL returns the unrealized P&L against the entry price.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.LastPx.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Qty))
}

// Manager tracks all open positions for one tenant.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*Position
	previous  map[string]Position // state archived at last SavePrevious
}

// New creates a new empty Manager.
func New() *Manager {
	return &Manager{
		positions: make(map[string]*Position),
		previous:  make(map[string]Position),
	}
}

// SetPosition creates or replaces a position (onboarding/test seeding).
func (m *Manager) SetPosition(symbol string, qty int64, avgPrice decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = &Position{
		Symbol:   symbol,
		Qty:      qty,
		AvgPrice: avgPrice,
		LastPx:   avgPrice,
	}
}

// MarkToMarket updates each held position's mark price from the
// symbol→close mapping. Symbols absent from the mapping keep their last
// mark (not every bin carries every symbol).
func (m *Manager) MarkToMarket(prices map[string]decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, pos := range m.positions {
		if px, ok := prices[symbol]; ok {
			pos.LastPx = px
		}
	}
	return nil
}

// Valuation returns the total mark-to-market value of all positions.
func (m *Manager) Valuation() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, pos := range m.positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

// Positions returns a snapshot of all current positions.
func (m *Manager) Positions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		result = append(result, *pos)
	}
	return result
}

// SavePrevious archives the current positions as the previous state.
func (m *Manager) SavePrevious() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous = make(map[string]Position, len(m.positions))
	for symbol, pos := range m.positions {
		m.previous[symbol] = *pos
	}
}

// PreviousPosition returns the archived state for a symbol, if any.
func (m *Manager) PreviousPosition(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.previous[symbol]
	return pos, ok
}
