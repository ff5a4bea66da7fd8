package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
	"exchange-simv1/internal/tenant"
)

// recorder implements every manager port and appends each call to a
// shared trace so step ordering can be asserted.
type recorder struct {
	trace   *[]string
	navErr  error
	pushErr error
}

func (r *recorder) log(s string) { *r.trace = append(*r.trace, s) }

func (r *recorder) UpdateRates([]model.FXRate) { r.log("fx.update") }

func (r *recorder) PushMarketData(model.MarketDataRecord) error {
	r.log("exchange.push")
	return r.pushErr
}
func (r *recorder) Price(string) (decimal.Decimal, bool) { return decimal.Zero, false }

func (r *recorder) MarkToMarket(map[string]decimal.Decimal) error {
	r.log("portfolio.mark")
	return nil
}
func (r *recorder) Valuation() decimal.Decimal { return decimal.Zero }

func (r *recorder) RecomputeNAV() error {
	r.log("account.nav")
	return r.navErr
}
func (r *recorder) NAV() decimal.Decimal         { return decimal.Zero }
func (r *recorder) PreviousNAV() decimal.Decimal { return decimal.Zero }

func (r *recorder) ComputeReturns(time.Time) error {
	r.log("returns.compute")
	return nil
}

func (r *recorder) AdvanceProgress(time.Time) error {
	r.log("orders.advance")
	return nil
}

func (r *recorder) Clear() { r.log("cashflow.clear") }

// SavePrevious is shared by the FX, portfolio, and account ports; the
// single trace entry per call is enough for ordering assertions.
func (r *recorder) SavePrevious() { r.log("save_previous") }

func testBin(ts time.Time) model.Bin {
	return model.Bin{
		TS: ts,
		Bars: []model.EquityBar{{
			Symbol:   "AAPL",
			TS:       ts,
			Currency: "USD",
			Close:    decimal.NewFromInt(150),
			VWAP:     decimal.NewFromInt(150),
			Volume:   1000,
		}},
		FX: []model.FXRate{{Base: "EUR", Quote: "USD", Rate: decimal.NewFromFloat(1.08), TS: ts}},
	}
}

func fullManagers(rec *recorder) tenant.Managers {
	return tenant.Managers{
		FX:        rec,
		Exchange:  rec,
		Portfolio: rec,
		Account:   rec,
		Returns:   rec,
		Orders:    rec,
		CashFlow:  rec,
	}
}

func TestApply_RunsStepsInOrder(t *testing.T) {
	var trace []string
	rec := &recorder{trace: &trace}
	tc := tenant.NewContext("u1", fullManagers(rec))
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	tc.MarkFirstData(ts)

	p := New()
	if err := p.Apply(context.Background(), tc, testBin(ts)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := []string{
		"fx.update",
		"exchange.push",
		"portfolio.mark",
		"account.nav",
		"returns.compute",
		"orders.advance",
		"save_previous", // fx
		"save_previous", // account
		"save_previous", // portfolio
		"cashflow.clear",
	}
	if len(trace) != len(want) {
		t.Fatalf("trace %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %s, want %s", i, trace[i], want[i])
		}
	}

	// The cursor advanced exactly once, after the state mutation steps.
	seq, cur := tc.CurrentBin()
	if seq != 1 || !cur.Equal(ts.Add(time.Minute)) {
		t.Errorf("cursor after Apply: (%d, %s), want (1, %s)", seq, cur, ts.Add(time.Minute))
	}
}

func TestApply_MissingRequiredManagersFatal(t *testing.T) {
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		strip   func(*tenant.Managers)
		wantErr error
	}{
		{"no exchange", func(m *tenant.Managers) { m.Exchange = nil }, ErrNoExchangeManager},
		{"no portfolio", func(m *tenant.Managers) { m.Portfolio = nil }, ErrNoPortfolioManager},
		{"no account", func(m *tenant.Managers) { m.Account = nil }, ErrNoAccountManager},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var trace []string
			mgrs := fullManagers(&recorder{trace: &trace})
			c.strip(&mgrs)
			tc := tenant.NewContext("u1", mgrs)
			tc.MarkFirstData(ts)

			err := New().Apply(context.Background(), tc, testBin(ts))
			if !errors.Is(err, c.wantErr) {
				t.Errorf("Apply error %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestApply_OptionalManagersSkipped(t *testing.T) {
	var trace []string
	rec := &recorder{trace: &trace}
	tc := tenant.NewContext("u1", tenant.Managers{
		Exchange:  rec,
		Portfolio: rec,
		Account:   rec,
	})
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	tc.MarkFirstData(ts)

	if err := New().Apply(context.Background(), tc, testBin(ts)); err != nil {
		t.Fatalf("Apply with optional managers missing failed: %v", err)
	}

	for _, step := range trace {
		switch step {
		case "fx.update", "returns.compute", "orders.advance", "cashflow.clear":
			t.Errorf("optional step %s ran without its manager", step)
		}
	}
}

func TestApply_StepErrorNamesStep(t *testing.T) {
	var trace []string
	rec := &recorder{trace: &trace, navErr: errors.New("balance table locked")}
	tc := tenant.NewContext("u1", fullManagers(rec))
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	tc.MarkFirstData(ts)

	err := New().Apply(context.Background(), tc, testBin(ts))
	if err == nil {
		t.Fatal("expected error from accounts step")
	}
	if got := err.Error(); got != "pipeline: accounts_update: balance table locked" {
		t.Errorf("error = %q", got)
	}

	// Later steps must not have run.
	for _, step := range trace {
		if step == "returns.compute" || step == "orders.advance" {
			t.Errorf("step %s ran after a fatal accounts error", step)
		}
	}
	// The cursor must not have advanced.
	if seq, _ := tc.CurrentBin(); seq != 0 {
		t.Errorf("cursor advanced to %d after a fatal error", seq)
	}
}

func TestApply_CancelledContext(t *testing.T) {
	var trace []string
	tc := tenant.NewContext("u1", fullManagers(&recorder{trace: &trace}))
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	tc.MarkFirstData(ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Apply(ctx, tc, testBin(ts))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Apply error %v, want context.Canceled", err)
	}
	if len(trace) != 0 {
		t.Errorf("steps ran under a cancelled context: %v", trace)
	}
}

func TestApply_StepDurationHook(t *testing.T) {
	var trace []string
	tc := tenant.NewContext("u1", fullManagers(&recorder{trace: &trace}))
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	tc.MarkFirstData(ts)

	p := New()
	var steps []string
	p.OnStepDuration = func(step string, _ time.Duration) { steps = append(steps, step) }

	if err := p.Apply(context.Background(), tc, testBin(ts)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(steps) != 8 {
		t.Errorf("hook fired for %d steps, want 8: %v", len(steps), steps)
	}
}
