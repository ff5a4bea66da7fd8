// Package orders tracks a tenant's resting orders and advances their
// progress against the latest exchange prices. Sides and order types are
// closed enums.
package orders

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
)

// Side is the order direction.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Status is the order lifecycle state.
type Status int

const (
	Open Status = iota
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Order is a resting limit order.
type Order struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Qty      int64           `json:"qty"`
	LimitPx  decimal.Decimal `json:"limit_px"`
	Status   Status          `json:"status"`
	FilledPx decimal.Decimal `json:"filled_px"`
	FilledAt time.Time       `json:"filled_at"`
}

// Manager holds the tenant's resting orders and checks them against the
// exchange book after each bin's prices land.
type Manager struct {
	mu       sync.Mutex
	exchange model.ExchangeManager
	orders   map[string]*Order
}

// New creates a Manager reading prices from the given exchange.
func New(ex model.ExchangeManager) *Manager {
	return &Manager{
		exchange: ex,
		orders:   make(map[string]*Order),
	}
}

// Place adds a resting order.
func (m *Manager) Place(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Status = Open
	m.orders[o.ID] = &o
}

// Cancel marks an open order cancelled.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok && o.Status == Open {
		o.Status = Cancelled
	}
}

// Get returns a copy of an order, if known.
func (m *Manager) Get(id string) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// AdvanceProgress fills any open order whose limit is crossed by the
// latest price: buys fill at price <= limit, sells at price >= limit.
// Runs after the exchange update of the same bin.
func (m *Manager) AdvanceProgress(ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.Status != Open {
			continue
		}
		px, ok := m.exchange.Price(o.Symbol)
		if !ok {
			continue
		}
		crossed := (o.Side == Buy && px.LessThanOrEqual(o.LimitPx)) ||
			(o.Side == Sell && px.GreaterThanOrEqual(o.LimitPx))
		if !crossed {
			continue
		}
		o.Status = Filled
		o.FilledPx = px
		o.FilledAt = ts
		log.Printf("[orders] order %s filled: %s %d %s @ %s",
			o.ID, o.Side, o.Qty, o.Symbol, px)
	}
	return nil
}

// OpenCount returns the number of resting open orders.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Status == Open {
			n++
		}
	}
	return n
}
