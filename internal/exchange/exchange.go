// Package exchange is a tenant's exchange-facing price book: the sink
// for normalized market-data records and the source of latest prices for
// order progression and valuation.
package exchange

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
)

// Book holds the latest market-data record per symbol.
type Book struct {
	mu      sync.RWMutex
	records map[string]model.MarketDataRecord
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{
		records: make(map[string]model.MarketDataRecord),
	}
}

// PushMarketData ingests one record, replacing the symbol's latest.
// A record with an empty symbol is rejected.
func (b *Book) PushMarketData(rec model.MarketDataRecord) error {
	if rec.Symbol == "" {
		return fmt.Errorf("exchange: record with empty symbol at %s", rec.TS)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.Symbol] = rec
	return nil
}

// Price returns the latest price (VWAP) for a symbol, if known.
func (b *Book) Price(symbol string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return rec.Price, true
}

// Record returns the full latest record for a symbol, if known.
func (b *Book) Record(symbol string) (model.MarketDataRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[symbol]
	return rec, ok
}

// Symbols returns all symbols with a known record.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.records))
	for symbol := range b.records {
		out = append(out, symbol)
	}
	return out
}
