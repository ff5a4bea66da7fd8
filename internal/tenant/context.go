// Package tenant holds the isolated per-tenant application state for an
// exchange group. A tenant is a user or a book; each owns its own manager
// bundle and bin cursor, and is never mutated while another tenant is
// being processed. The context is threaded explicitly through the
// pipeline — there is no process-global "current tenant" pointer.
package tenant

import (
	"time"

	"exchange-simv1/internal/model"
)

// Managers bundles the capability interfaces a tenant's pipeline consumes.
// Exchange, Portfolio, and Account are required for a tenant to process a
// bin; the rest are optional and skipped when nil.
type Managers struct {
	FX        model.FXManager
	Exchange  model.ExchangeManager
	Portfolio model.PortfolioManager
	Account   model.AccountManager
	Returns   model.ReturnsManager
	Orders    model.OrderManager
	CashFlow  model.CashFlowManager
}

// Context is one tenant's isolated state bundle. Created when the tenant
// is onboarded to the exchange group, destroyed when it is removed.
// Not safe for concurrent use; the engine processes tenants sequentially.
type Context struct {
	ID       string
	Managers Managers

	// Bin/timestamp cursor. Current refers to the bin being processed
	// during pipeline steps; Next is the subsequent minute slot.
	currentBin int64
	nextBin    int64
	currentTS  time.Time
	nextTS     time.Time

	receivedFirstData bool
	firstDataTS       time.Time

	// Timestamp of the bin the cursor was last advanced for.
	// Guards against accidental double-advance within one bin.
	lastAdvancedFor time.Time
}

// NewContext creates a tenant context with the given manager bundle.
func NewContext(id string, mgrs Managers) *Context {
	return &Context{ID: id, Managers: mgrs}
}

// ReceivedFirstData reports whether this tenant has ever seen a bin.
func (c *Context) ReceivedFirstData() bool {
	return c.receivedFirstData
}

// MarkFirstData records the first bin timestamp ever seen by this tenant
// and seeds the bin cursor. Only the first call has any effect.
func (c *Context) MarkFirstData(ts time.Time) {
	if c.receivedFirstData {
		return
	}
	c.receivedFirstData = true
	c.firstDataTS = ts
	c.currentTS = ts
	c.nextTS = ts.Add(time.Minute)
	c.nextBin = c.currentBin + 1
}

// FirstDataTS returns the timestamp of the first bin this tenant saw.
func (c *Context) FirstDataTS() time.Time { return c.firstDataTS }

// CurrentBin returns the cursor's current bin sequence and timestamp.
func (c *Context) CurrentBin() (int64, time.Time) {
	return c.currentBin, c.currentTS
}

// NextBin returns the cursor's next bin sequence and timestamp.
func (c *Context) NextBin() (int64, time.Time) {
	return c.nextBin, c.nextTS
}

// AdvanceBin moves the cursor forward exactly one slot: current ← next,
// next ← the subsequent minute. processedTS is the timestamp of the bin
// that was just applied; calling AdvanceBin twice for the same bin is a
// logged-free no-op so re-entry cannot double-advance the cursor.
func (c *Context) AdvanceBin(processedTS time.Time) {
	if c.lastAdvancedFor.Equal(processedTS) && !processedTS.IsZero() {
		return
	}
	c.lastAdvancedFor = processedTS

	c.currentBin = c.nextBin
	c.currentTS = c.nextTS
	c.nextBin++
	c.nextTS = c.nextTS.Add(time.Minute)
}
