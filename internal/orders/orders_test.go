package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/exchange"
	"exchange-simv1/internal/model"
)

func push(t *testing.T, book *exchange.Book, symbol string, px int64, ts time.Time) {
	t.Helper()
	p := decimal.NewFromInt(px)
	err := book.PushMarketData(model.MarketDataRecord{Symbol: symbol, TS: ts, Price: p, VWAP: p, Close: p})
	if err != nil {
		t.Fatalf("push %s failed: %v", symbol, err)
	}
}

func TestAdvanceProgress_FillsCrossedOrders(t *testing.T) {
	book := exchange.NewBook()
	m := New(book)
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

	m.Place(Order{ID: "b1", Symbol: "AAPL", Side: Buy, Qty: 10, LimitPx: decimal.NewFromInt(150)})
	m.Place(Order{ID: "s1", Symbol: "AAPL", Side: Sell, Qty: 10, LimitPx: decimal.NewFromInt(155)})

	// Price at 152: neither limit is crossed.
	push(t, book, "AAPL", 152, ts)
	if err := m.AdvanceProgress(ts); err != nil {
		t.Fatalf("AdvanceProgress failed: %v", err)
	}
	if m.OpenCount() != 2 {
		t.Errorf("open orders %d, want 2", m.OpenCount())
	}

	// Price drops to 149: the buy fills, the sell stays open.
	ts = ts.Add(time.Minute)
	push(t, book, "AAPL", 149, ts)
	if err := m.AdvanceProgress(ts); err != nil {
		t.Fatalf("AdvanceProgress failed: %v", err)
	}

	buy, _ := m.Get("b1")
	if buy.Status != Filled || !buy.FilledPx.Equal(decimal.NewFromInt(149)) || !buy.FilledAt.Equal(ts) {
		t.Errorf("buy order %+v, want filled at 149", buy)
	}
	if sell, _ := m.Get("s1"); sell.Status != Open {
		t.Errorf("sell order status %s, want OPEN", sell.Status)
	}

	// Price jumps to 156: the sell fills.
	ts = ts.Add(time.Minute)
	push(t, book, "AAPL", 156, ts)
	m.AdvanceProgress(ts)
	if sell, _ := m.Get("s1"); sell.Status != Filled {
		t.Errorf("sell order status %s, want FILLED", sell.Status)
	}
	if m.OpenCount() != 0 {
		t.Errorf("open orders %d, want 0", m.OpenCount())
	}
}

func TestAdvanceProgress_UnknownSymbolStaysOpen(t *testing.T) {
	m := New(exchange.NewBook())
	m.Place(Order{ID: "b1", Symbol: "TSLA", Side: Buy, Qty: 1, LimitPx: decimal.NewFromInt(100)})

	if err := m.AdvanceProgress(time.Now()); err != nil {
		t.Fatalf("AdvanceProgress failed: %v", err)
	}
	if o, _ := m.Get("b1"); o.Status != Open {
		t.Errorf("order without a price filled: %+v", o)
	}
}

func TestCancel(t *testing.T) {
	book := exchange.NewBook()
	m := New(book)
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

	m.Place(Order{ID: "b1", Symbol: "AAPL", Side: Buy, Qty: 1, LimitPx: decimal.NewFromInt(150)})
	m.Cancel("b1")

	// A crossing price must not fill a cancelled order.
	push(t, book, "AAPL", 140, ts)
	m.AdvanceProgress(ts)
	if o, _ := m.Get("b1"); o.Status != Cancelled {
		t.Errorf("order status %s, want CANCELLED", o.Status)
	}
}

func TestEnumStrings(t *testing.T) {
	if Buy.String() != "BUY" || Sell.String() != "SELL" {
		t.Errorf("side strings: %s, %s", Buy, Sell)
	}
	if Open.String() != "OPEN" || Filled.String() != "FILLED" || Cancelled.String() != "CANCELLED" {
		t.Errorf("status strings: %s, %s, %s", Open, Filled, Cancelled)
	}
}
