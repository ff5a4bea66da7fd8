package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ── Manager Port Interfaces ──
// These interfaces decouple the per-tenant processing pipeline from concrete
// manager implementations. A tenant context carries a typed bundle of these;
// optional capabilities are modeled as nil fields, not runtime probing.

// FXManager holds currency-pair rates for one tenant.
type FXManager interface {
	// UpdateRates ingests a batch of FX rates.
	UpdateRates(rates []FXRate)

	// SavePrevious archives the current rate table for next-bin deltas.
	SavePrevious()
}

// ExchangeManager receives normalized market-data records and serves
// latest prices back to order progression and valuation.
type ExchangeManager interface {
	// PushMarketData ingests one record, replacing the symbol's latest.
	PushMarketData(rec MarketDataRecord) error

	// Price returns the latest price for a symbol, if known.
	Price(symbol string) (decimal.Decimal, bool)
}

// PortfolioManager owns one tenant's positions.
type PortfolioManager interface {
	// MarkToMarket revalues positions against a symbol→close mapping.
	MarkToMarket(prices map[string]decimal.Decimal) error

	// Valuation returns the current mark-to-market portfolio value.
	Valuation() decimal.Decimal

	// SavePrevious archives current position state for next-bin deltas.
	SavePrevious()
}

// AccountManager owns one tenant's balances and NAV.
type AccountManager interface {
	// RecomputeNAV recalculates NAV from balances plus portfolio valuation.
	// Depends on the exchange and portfolio updates of the same bin.
	RecomputeNAV() error

	// NAV returns the most recently computed NAV.
	NAV() decimal.Decimal

	// PreviousNAV returns the NAV archived by the last SavePrevious.
	PreviousNAV() decimal.Decimal

	// SavePrevious archives current balances and NAV.
	SavePrevious()
}

// ReturnsManager computes period returns keyed by bin timestamp.
type ReturnsManager interface {
	ComputeReturns(ts time.Time) error
}

// OrderManager advances resting-order progress against latest prices.
type OrderManager interface {
	AdvanceProgress(ts time.Time) error
}

// CashFlowManager records intra-bin cash flows. The ledger is cleared
// (not archived) at the end of each bin.
type CashFlowManager interface {
	Clear()
}

// ── Group-Level Ports ──

// WatermarkStore persists the group's last fully-processed bin timestamp.
type WatermarkStore interface {
	// LastSnapTime loads the watermark. Returns the zero time if none is set.
	LastSnapTime(ctx context.Context, group string) (time.Time, error)

	// SetLastSnapTime persists the watermark.
	SetLastSnapTime(ctx context.Context, group string, ts time.Time) error
}

// ReplayCoordinator owns the group's replay/backfill state. While a replay
// is active, live bins are queued instead of processed inline.
type ReplayCoordinator interface {
	// InReplayMode reports whether a replay is currently active.
	InReplayMode() bool

	// ActivateReplay starts backfilling the (start, end) gap and takes
	// ownership of the triggering live bin. Returns false if the gap
	// cannot be filled (no archive coverage, replay already running).
	ActivateReplay(start, end time.Time, live Bin) bool

	// QueueLive enqueues a live bin that arrived mid-replay. Returns false
	// if replay is no longer active (caller should process inline).
	QueueLive(b Bin) bool
}

// ── Storage Ports ──

// BinWriter archives processed bins.
type BinWriter interface {
	// Run reads bins from binCh and writes them.
	// Blocks until ctx is cancelled or binCh is closed.
	Run(ctx context.Context, binCh <-chan Bin)

	// Close releases underlying resources.
	Close() error
}

// BinReader reads archived bins for backfill and replay.
type BinReader interface {
	// ReadBins returns archived bins with from <= ts <= to,
	// ordered by timestamp ascending.
	ReadBins(from, to time.Time) ([]Bin, error)

	// Close releases underlying resources.
	Close() error
}
