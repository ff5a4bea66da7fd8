// Package pipeline applies one market-data bin to one tenant's state.
//
// The eight steps run strictly in order: FX rates, exchange prices,
// portfolio revaluation, account/NAV recompute, returns, order progress,
// bin-cursor advance, previous-state snapshot. Portfolio valuation needs
// the prices written by the exchange step; NAV needs the revalued
// portfolio; returns and order progress need the fully-updated account
// and portfolio; the cursor advances only after all state mutation so
// "current timestamp" queries during the steps still refer to the bin
// being processed; the previous-state snapshot runs last so it captures
// the fully-updated state for the next bin's delta calculations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"exchange-simv1/internal/model"
	"exchange-simv1/internal/tenant"
)

// Errors for missing required managers. Exchange, portfolio, and account
// updates cannot be skipped; a tenant without them fails the bin.
var (
	ErrNoExchangeManager  = errors.New("exchange not available for market data update")
	ErrNoPortfolioManager = errors.New("portfolio manager not available for revaluation")
	ErrNoAccountManager   = errors.New("account manager not available for NAV recompute")
)

// Pipeline runs the per-tenant processing steps for one bin.
// Stateless apart from hooks; safe to share across tenants.
type Pipeline struct {
	// OnStepDuration is called after each completed step (optional).
	OnStepDuration func(step string, d time.Duration)
}

// New creates a Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Apply runs all steps for one tenant against one bin. The error names
// the failing step. The tenant's state is owned exclusively by this call
// for its duration; nothing outside tc is mutated.
func (p *Pipeline) Apply(ctx context.Context, tc *tenant.Context, bin model.Bin) error {
	steps := []struct {
		name string
		run  func(*tenant.Context, model.Bin) error
	}{
		{"fx_rates", p.processFXRates},
		{"exchange_update", p.processExchangeUpdate},
		{"portfolio_update", p.processPortfolioUpdate},
		{"accounts_update", p.processAccountsUpdate},
		{"returns_update", p.processReturnsUpdate},
		{"order_progress_update", p.processOrderProgressUpdate},
		{"advance_market_bin", p.advanceMarketBin},
		{"save_previous_states", p.savePreviousStates},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: before %s: %w", step.name, err)
		}
		start := time.Now()
		if err := step.run(tc, bin); err != nil {
			return fmt.Errorf("pipeline: %s: %w", step.name, err)
		}
		if p.OnStepDuration != nil {
			p.OnStepDuration(step.name, time.Since(start))
		}
	}
	return nil
}

// processFXRates updates the tenant's FX table. Never fails the pipeline:
// both a missing manager and an empty rate batch are logged no-ops.
func (p *Pipeline) processFXRates(tc *tenant.Context, bin model.Bin) error {
	if tc.Managers.FX == nil {
		log.Printf("[pipeline] tenant %s: no fx manager, skipping fx update", tc.ID)
		return nil
	}
	if len(bin.FX) == 0 {
		return nil
	}
	tc.Managers.FX.UpdateRates(bin.FX)
	return nil
}

// processExchangeUpdate pushes every bar's normalized record to the
// tenant's exchange. Fatal if no exchange manager is configured.
func (p *Pipeline) processExchangeUpdate(tc *tenant.Context, bin model.Bin) error {
	if tc.Managers.Exchange == nil {
		return ErrNoExchangeManager
	}
	for _, bar := range bin.Bars {
		if err := tc.Managers.Exchange.PushMarketData(model.NewMarketDataRecord(bar)); err != nil {
			return fmt.Errorf("push %s: %w", bar.Symbol, err)
		}
	}
	return nil
}

// processPortfolioUpdate marks positions to market against the bin's
// close prices. Fatal if no portfolio manager is configured — portfolio
// revaluation is as critical as the exchange update.
func (p *Pipeline) processPortfolioUpdate(tc *tenant.Context, bin model.Bin) error {
	if tc.Managers.Portfolio == nil {
		return ErrNoPortfolioManager
	}
	return tc.Managers.Portfolio.MarkToMarket(model.ClosePrices(bin.Bars))
}

// processAccountsUpdate recomputes balances and NAV. Depends on the
// exchange and portfolio steps of this same run. Fatal if absent.
func (p *Pipeline) processAccountsUpdate(tc *tenant.Context, _ model.Bin) error {
	if tc.Managers.Account == nil {
		return ErrNoAccountManager
	}
	return tc.Managers.Account.RecomputeNAV()
}

// processReturnsUpdate computes period returns keyed by the bin's
// timestamp. Skippable: warn and continue when no returns manager.
func (p *Pipeline) processReturnsUpdate(tc *tenant.Context, bin model.Bin) error {
	if tc.Managers.Returns == nil {
		log.Printf("[pipeline] tenant %s: no returns manager, skipping returns update", tc.ID)
		return nil
	}
	return tc.Managers.Returns.ComputeReturns(bin.TS)
}

// processOrderProgressUpdate advances resting-order progress against the
// new prices. Skippable when no order manager.
func (p *Pipeline) processOrderProgressUpdate(tc *tenant.Context, bin model.Bin) error {
	if tc.Managers.Orders == nil {
		return nil
	}
	return tc.Managers.Orders.AdvanceProgress(bin.TS)
}

// advanceMarketBin moves the tenant's bin cursor forward one slot.
func (p *Pipeline) advanceMarketBin(tc *tenant.Context, bin model.Bin) error {
	tc.AdvanceBin(bin.TS)
	return nil
}

// savePreviousStates snapshots each manager's current state into
// "previous". The cash-flow ledger is cleared rather than archived.
func (p *Pipeline) savePreviousStates(tc *tenant.Context, _ model.Bin) error {
	if tc.Managers.FX != nil {
		tc.Managers.FX.SavePrevious()
	}
	if tc.Managers.Account != nil {
		tc.Managers.Account.SavePrevious()
	}
	if tc.Managers.Portfolio != nil {
		tc.Managers.Portfolio.SavePrevious()
	}
	if tc.Managers.CashFlow != nil {
		tc.Managers.CashFlow.Clear()
	}
	return nil
}
