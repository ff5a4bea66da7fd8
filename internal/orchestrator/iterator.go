package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"exchange-simv1/internal/model"
)

// ErrNoTenantContext is recorded as a tenant's outcome when its context
// is missing from the registry (e.g. removed mid-batch).
var ErrNoTenantContext = errors.New("tenant context not found")

// TenantOutcome is the per-tenant result of one bin. Err is nil on
// success; failures never abort the rest of the batch.
type TenantOutcome struct {
	ID  string
	Err error
}

// BatchError aggregates per-tenant failures for one bin. It is returned
// only after every tenant has been attempted and after callback
// notification for the tenants that did succeed.
type BatchError struct {
	Failed   int
	Total    int
	Outcomes []TenantOutcome
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d/%d tenants failed", e.Failed, e.Total)
}

// processTenants applies the pipeline to every tenant sequentially,
// isolating failures: one tenant's error is tallied and the batch moves
// on. Tenants share nothing but the group watermark and the listener
// registry, and neither is touched here.
func (e *Engine) processTenants(ctx context.Context, bin model.Bin) []TenantOutcome {
	ids := e.Registry.IDs()
	outcomes := make([]TenantOutcome, 0, len(ids))

	for _, id := range ids {
		outcomes = append(outcomes, TenantOutcome{ID: id, Err: e.processOne(ctx, id, bin)})
	}
	return outcomes
}

// processOne runs the full pipeline for a single tenant, under the
// per-tenant deadline when one is configured. A deadline overrun counts
// as that tenant's failure, same as any pipeline error.
func (e *Engine) processOne(ctx context.Context, id string, bin model.Bin) error {
	tc := e.Registry.Get(id)
	if tc == nil {
		log.Printf("[orchestrator] tenant %s: context missing, counting as failed", id)
		return ErrNoTenantContext
	}

	// First bin ever seen by this tenant: record the first-data timestamp
	// once for the life of the context, before the pipeline runs.
	if !tc.ReceivedFirstData() {
		tc.MarkFirstData(bin.TS)
		log.Printf("[orchestrator] tenant %s received first market data at %s",
			id, bin.TS.Format(time.RFC3339))
	}

	tctx := ctx
	if e.TenantDeadline > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, e.TenantDeadline)
		defer cancel()
	}

	if err := e.Pipeline.Apply(tctx, tc, bin); err != nil {
		log.Printf("[orchestrator] tenant %s failed for bin %s: %v",
			id, bin.TS.Format(time.RFC3339), err)
		if e.OnTenantFailure != nil {
			e.OnTenantFailure(id)
		}
		return err
	}
	return nil
}

// notifyListeners fires the snapshot callbacks exactly once per bin,
// strictly after every tenant has been attempted. Skipped silently
// (warn-level for observability) when no downstream bridge is connected.
func (e *Engine) notifyListeners(bin model.Bin) {
	if e.Equity.ListenerCount() == 0 {
		log.Printf("[orchestrator] no snapshot listeners registered, skipping notification for bin %s",
			bin.TS.Format(time.RFC3339))
		return
	}
	e.Equity.NotifyCallbacks(e.Equity.PrepareSnapshot(bin))
	if e.OnCallbackNotified != nil {
		e.OnCallbackNotified()
	}
}
