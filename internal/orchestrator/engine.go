// Package orchestrator is the market-data orchestration engine for one
// exchange group: the per-bin entry point, replay-mode gating, gap
// detection, sequential tenant fan-out with failure isolation, watermark
// advancement, and snapshot callback triggering.
//
// The engine is single-owner: exactly one bin is in flight per group at
// any time, and ProcessBin must not be invoked concurrently for the same
// group. Run serializes everything behind one goroutine consuming the
// bin channel.
package orchestrator

import (
	"context"
	"log"
	"time"

	"exchange-simv1/internal/equity"
	"exchange-simv1/internal/marketdata/gapdetect"
	"exchange-simv1/internal/model"
	"exchange-simv1/internal/pipeline"
	"exchange-simv1/internal/tenant"
)

// Engine orchestrates bin processing for one exchange group.
type Engine struct {
	Group    string
	Registry *tenant.Registry
	Pipeline *pipeline.Pipeline
	Equity   *equity.Manager
	Detector *gapdetect.Detector

	// Replay is the group's replay coordinator; nil disables replay
	// gating entirely (bins still gap-check, gaps just go unhandled).
	Replay model.ReplayCoordinator

	// Watermark persists last_snap_time. Required.
	Watermark model.WatermarkStore

	// TenantDeadline caps one tenant's pipeline run so a stuck tenant
	// cannot block the whole group. Zero disables the deadline.
	TenantDeadline time.Duration

	// lastSnap is the in-memory watermark: timestamp of the most recent
	// fully-processed bin. Mutated only on the happy path.
	lastSnap time.Time

	// Metrics hooks (optional, set externally).
	OnBinProcessed     func()
	OnBinQueued        func()
	OnTenantFailure    func(id string)
	OnCallbackNotified func()
	OnBatchError       func(berr *BatchError, ts time.Time)
}

// New creates an Engine and loads the persisted watermark.
func New(ctx context.Context, group string, reg *tenant.Registry, pl *pipeline.Pipeline,
	eq *equity.Manager, replay model.ReplayCoordinator, wm model.WatermarkStore) (*Engine, error) {
	e := &Engine{
		Group:     group,
		Registry:  reg,
		Pipeline:  pl,
		Equity:    eq,
		Replay:    replay,
		Watermark: wm,
	}
	e.Detector = gapdetect.New(replay)

	last, err := wm.LastSnapTime(ctx, group)
	if err != nil {
		return nil, err
	}
	e.lastSnap = last
	if !last.IsZero() {
		log.Printf("[orchestrator] group %s resuming from watermark %s",
			group, last.Format(time.RFC3339))
	}
	return e, nil
}

// LastSnapTime returns the in-memory watermark (zero if no bin has ever
// been fully processed).
func (e *Engine) LastSnapTime() time.Time { return e.lastSnap }

// ProcessBin is the single entry point invoked once per incoming bin.
//
// bypassReplayDetection is set for backfill/replay-driven calls: the
// replay-mode and gap checks are skipped and the tenants are processed
// directly. On the live path, a bin arriving mid-replay is handed to the
// coordinator's queue and a detected gap activates replay instead of
// inline processing — neither mutates any state here.
//
// The watermark advances only after the whole batch succeeds; any error
// propagates with the watermark untouched, so the caller can redeliver
// the same bin (at-least-once recovery).
func (e *Engine) ProcessBin(ctx context.Context, bin model.Bin, bypassReplayDetection bool) error {
	if e.Registry.Len() == 0 {
		log.Printf("[orchestrator] group %s has no tenants, ignoring bin %s",
			e.Group, bin.TS.Format(time.RFC3339))
		return nil
	}
	if len(bin.Bars) == 0 {
		// Expected off-hours heartbeat, not an error.
		log.Printf("[orchestrator] group %s: empty bin %s, skipping",
			e.Group, bin.TS.Format(time.RFC3339))
		return nil
	}

	if !bypassReplayDetection {
		if e.Replay != nil && e.Replay.InReplayMode() {
			if e.Replay.QueueLive(bin) {
				if e.OnBinQueued != nil {
					e.OnBinQueued()
				}
				return nil
			}
			// Replay finished between the check and the enqueue; fall
			// through and process this bin inline.
		} else if gap, handled := e.Detector.HandleLiveBin(e.lastSnap, bin); gap {
			if !handled {
				log.Printf("[orchestrator] group %s: gap not handled, bin %s dropped",
					e.Group, bin.TS.Format(time.RFC3339))
			}
			return nil
		}
	}

	outcomes := e.processTenants(ctx, bin)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}

	// Callbacks fire before the aggregate failure is surfaced so partial
	// progress still reaches downstream listeners.
	if failed < len(outcomes) {
		e.notifyListeners(bin)
	}

	if failed > 0 {
		berr := &BatchError{Failed: failed, Total: len(outcomes), Outcomes: outcomes}
		if e.OnBatchError != nil {
			e.OnBatchError(berr, bin.TS)
		}
		return berr
	}

	// Last mutation on the happy path: persist, then advance in memory.
	// A persist failure propagates with the in-memory watermark
	// unchanged, keeping redelivery safe.
	if err := e.Watermark.SetLastSnapTime(ctx, e.Group, bin.TS); err != nil {
		return err
	}
	e.lastSnap = bin.TS

	if e.OnBinProcessed != nil {
		e.OnBinProcessed()
	}
	return nil
}

// Run consumes bins from binCh and processes them one at a time.
// Errors are logged and the loop continues: the unadvanced watermark is
// the recovery mechanism, not loop termination. Blocks until ctx is
// cancelled or binCh is closed.
func (e *Engine) Run(ctx context.Context, binCh <-chan model.Bin) {
	for {
		select {
		case <-ctx.Done():
			return
		case bin, ok := <-binCh:
			if !ok {
				return
			}
			if err := e.ProcessBin(ctx, bin, false); err != nil {
				log.Printf("[orchestrator] group %s: bin %s failed: %v",
					e.Group, bin.TS.Format(time.RFC3339), err)
			}
		}
	}
}
