package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewMarketDataRecord_PriceCarriesVWAP(t *testing.T) {
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	bar := EquityBar{
		Symbol:   "AAPL",
		TS:       ts,
		Currency: "USD",
		Close:    decimal.NewFromInt(150),
		VWAP:     decimal.NewFromFloat(149.8),
		Volume:   1200,
	}

	rec := NewMarketDataRecord(bar)
	if rec.Symbol != "AAPL" || !rec.TS.Equal(ts) {
		t.Errorf("record identity %+v", rec)
	}
	if !rec.Price.Equal(bar.VWAP) {
		t.Errorf("record price %s, want VWAP %s", rec.Price, bar.VWAP)
	}
	if !rec.Close.Equal(bar.Close) {
		t.Errorf("record close %s, want %s", rec.Close, bar.Close)
	}
}

func TestClosePrices(t *testing.T) {
	bars := []EquityBar{
		{Symbol: "AAPL", Close: decimal.NewFromInt(150)},
		{Symbol: "MSFT", Close: decimal.NewFromInt(300)},
	}
	prices := ClosePrices(bars)
	if len(prices) != 2 {
		t.Fatalf("prices %d, want 2", len(prices))
	}
	if !prices["AAPL"].Equal(decimal.NewFromInt(150)) {
		t.Errorf("AAPL close %s, want 150", prices["AAPL"])
	}
}

func TestFXRatePair(t *testing.T) {
	r := FXRate{Base: "USD", Quote: "JPY"}
	if r.Pair() != "USD/JPY" {
		t.Errorf("pair %s, want USD/JPY", r.Pair())
	}
}

func TestBinJSON_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	bin := Bin{
		TS: ts,
		Bars: []EquityBar{{
			Symbol: "AAPL", TS: ts, Currency: "USD",
			Close: decimal.NewFromFloat(150.25), VWAP: decimal.NewFromFloat(149.8),
			Volume: 1200, Count: 42,
		}},
		FX: []FXRate{{Base: "EUR", Quote: "USD", Rate: decimal.NewFromFloat(1.08), TS: ts}},
	}

	var got Bin
	if err := json.Unmarshal(bin.JSON(), &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !got.TS.Equal(ts) || len(got.Bars) != 1 || len(got.FX) != 1 {
		t.Fatalf("round trip %+v", got)
	}
	if !got.Bars[0].Close.Equal(decimal.NewFromFloat(150.25)) {
		t.Errorf("close %s, want 150.25", got.Bars[0].Close)
	}
	if !got.FX[0].Rate.Equal(decimal.NewFromFloat(1.08)) {
		t.Errorf("fx rate %s, want 1.08", got.FX[0].Rate)
	}
}
