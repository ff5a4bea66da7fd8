package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EquityBar represents one symbol's OHLCV+VWAP bar for one minute.
// Prices are decimal (fixed-point) to avoid floating-point drift.
// Immutable once received from the upstream feed.
type EquityBar struct {
	Symbol   string          `json:"symbol"`
	TS       time.Time       `json:"ts"` // UTC, minute-aligned
	Currency string          `json:"currency"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	VWAP     decimal.Decimal `json:"vwap"`
	VWAS     decimal.Decimal `json:"vwas"`
	VWAV     decimal.Decimal `json:"vwav"`
	Volume   int64           `json:"volume"`
	Count    int             `json:"count"`
}

// FXRate is a currency-pair rate valid at a point in time.
type FXRate struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Rate  decimal.Decimal `json:"rate"`
	TS    time.Time       `json:"ts"`
}

// Pair returns the canonical pair key, e.g. "USD/JPY".
func (r *FXRate) Pair() string {
	return r.Base + "/" + r.Quote
}

// Bin is one minute-granularity market-data update cycle for an exchange
// group: a batch of equity bars plus optional FX rates, all stamped with
// the same minute timestamp.
type Bin struct {
	TS   time.Time   `json:"ts"`
	Bars []EquityBar `json:"bars"`
	FX   []FXRate    `json:"fx,omitempty"`
}

// JSON returns the JSON-encoded bin (ignoring errors for hot-path usage).
func (b *Bin) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// MarketDataRecord is the normalized record pushed to an exchange manager
// for one bar. Price carries the VWAP, matching what the order-progress
// and snapshot paths consume.
type MarketDataRecord struct {
	Symbol   string          `json:"symbol"`
	TS       time.Time       `json:"ts"`
	Currency string          `json:"currency"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	VWAP     decimal.Decimal `json:"vwap"`
	VWAS     decimal.Decimal `json:"vwas"`
	VWAV     decimal.Decimal `json:"vwav"`
	Price    decimal.Decimal `json:"price"`
	Volume   int64           `json:"volume"`
	Count    int             `json:"count"`
}

// NewMarketDataRecord builds the exchange-facing record from a bar.
func NewMarketDataRecord(bar EquityBar) MarketDataRecord {
	return MarketDataRecord{
		Symbol:   bar.Symbol,
		TS:       bar.TS,
		Currency: bar.Currency,
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		VWAP:     bar.VWAP,
		VWAS:     bar.VWAS,
		VWAV:     bar.VWAV,
		Price:    bar.VWAP,
		Volume:   bar.Volume,
		Count:    bar.Count,
	}
}

// ClosePrices builds the symbol→close mapping consumed by portfolio
// mark-to-market.
func ClosePrices(bars []EquityBar) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(bars))
	for _, bar := range bars {
		prices[bar.Symbol] = bar.Close
	}
	return prices
}
