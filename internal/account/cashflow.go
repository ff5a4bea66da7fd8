package account

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CashFlow is one intra-bin cash movement (fee, dividend, settlement).
type CashFlow struct {
	TS     time.Time       `json:"ts"`
	Reason string          `json:"reason"`
	Amount decimal.Decimal `json:"amount"`
}

// CashFlowLedger records the cash flows of the current bin. Unlike the
// other managers it is cleared at the end of each bin, not archived.
type CashFlowLedger struct {
	mu    sync.Mutex
	flows []CashFlow
}

// NewCashFlowLedger creates an empty ledger.
func NewCashFlowLedger() *CashFlowLedger {
	return &CashFlowLedger{}
}

// Record appends a cash flow.
func (l *CashFlowLedger) Record(f CashFlow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flows = append(l.flows, f)
}

// Flows returns a copy of the current bin's flows.
func (l *CashFlowLedger) Flows() []CashFlow {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CashFlow, len(l.flows))
	copy(out, l.flows)
	return out
}

// Clear drops all recorded flows.
func (l *CashFlowLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flows = l.flows[:0]
}
