// Package replay owns an exchange group's replay/backfill state. When a
// timeline gap is detected, the coordinator reads the missing bins from
// the archive and runs them through the orchestrator in bypass mode,
// while live bins arriving mid-replay are queued and drained afterwards.
package replay

import (
	"context"
	"log"
	"sync"
	"time"

	"exchange-simv1/internal/model"
	"exchange-simv1/internal/ringbuf"
)

// ProcessFunc runs one bin through the orchestrator. bypass must be true
// for replay-driven calls so the gap check is skipped.
type ProcessFunc func(ctx context.Context, bin model.Bin, bypass bool) error

// Coordinator implements model.ReplayCoordinator for one group.
//
// Mode transitions: ActivateReplay flips to replaying and starts a
// backfill goroutine; the goroutine flips back to normal after the
// archived bins, the triggering live bin, and the queued live bins have
// all been processed. The engine goroutine only ever queues while
// replaying, so bin processing stays single-owner.
type Coordinator struct {
	reader  model.BinReader
	process ProcessFunc

	// baseCtx bounds the backfill goroutine's lifetime (engine shutdown).
	baseCtx context.Context

	mu        sync.Mutex // guards replaying + queue handoff
	replaying bool
	queue     *ringbuf.Ring

	// Hooks (optional, set externally).
	OnBackfilledBin func()
	OnComplete      func(processed int)
}

// New creates a Coordinator reading gap bins from the given archive.
// queueCap bounds how many live bins can pile up during one replay.
func New(ctx context.Context, reader model.BinReader, queueCap int) *Coordinator {
	return &Coordinator{
		reader:  reader,
		baseCtx: ctx,
		queue:   ringbuf.New(queueCap),
	}
}

// SetProcessor wires the orchestrator entry point. Must be called before
// the first ActivateReplay (the engine is constructed after the
// coordinator, so this breaks the cycle).
func (c *Coordinator) SetProcessor(fn ProcessFunc) {
	c.process = fn
}

// QueueLen returns the number of live bins currently queued.
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// InReplayMode reports whether a backfill is currently in flight.
func (c *Coordinator) InReplayMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaying
}

// QueueLive enqueues a live bin that arrived mid-replay. Returns false
// when replay is no longer active; the caller processes the bin inline.
// A full queue drops the bin — the unadvanced watermark will re-flag the
// hole and a follow-up replay fills it.
func (c *Coordinator) QueueLive(b model.Bin) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.replaying {
		return false
	}
	if !c.queue.Push(b) {
		log.Printf("[replay] live queue full, dropping bin %s", b.TS.Format(time.RFC3339))
	}
	return true
}

// ActivateReplay reads the gap's interior bins (start and end exclusive)
// from the archive and starts the backfill. Returns false — gap not
// handled — when a replay is already running, the processor is unwired,
// or the archive has no coverage for the gap.
func (c *Coordinator) ActivateReplay(start, end time.Time, live model.Bin) bool {
	if c.process == nil || c.reader == nil {
		return false
	}

	c.mu.Lock()
	if c.replaying {
		c.mu.Unlock()
		return false
	}

	bins, err := c.reader.ReadBins(start.Add(time.Minute), end.Add(-time.Minute))
	if err != nil {
		c.mu.Unlock()
		log.Printf("[replay] archive read failed for gap %s..%s: %v",
			start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		return false
	}
	if len(bins) == 0 {
		c.mu.Unlock()
		log.Printf("[replay] no archived bins for gap %s..%s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
		return false
	}

	c.replaying = true
	c.mu.Unlock()

	log.Printf("[replay] activated: backfilling %d bins for gap %s..%s",
		len(bins), start.Format(time.RFC3339), end.Format(time.RFC3339))
	go c.run(bins, live)
	return true
}

// run processes the archived bins, the live bin that triggered the gap,
// and any live bins queued meanwhile, then exits replay mode. Per-bin
// failures are logged and skipped; their watermarks stay unadvanced and
// a later replay can retry them.
func (c *Coordinator) run(bins []model.Bin, live model.Bin) {
	processed := 0

	replayOne := func(b model.Bin) {
		if err := c.process(c.baseCtx, b, true); err != nil {
			log.Printf("[replay] backfill bin %s failed: %v", b.TS.Format(time.RFC3339), err)
			return
		}
		processed++
		if c.OnBackfilledBin != nil {
			c.OnBackfilledBin()
		}
	}

	for _, b := range bins {
		if c.baseCtx.Err() != nil {
			break
		}
		replayOne(b)
	}
	replayOne(live)

	// Drain live bins queued during the backfill. The mode flips back to
	// normal under the same lock that guards the final emptiness check,
	// so the engine can never queue into a dead replay.
	for {
		c.mu.Lock()
		b, ok := c.queue.Pop()
		if !ok {
			c.replaying = false
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()
		replayOne(b)
	}

	log.Printf("[replay] completed: %d bins processed", processed)
	if c.OnComplete != nil {
		c.OnComplete(processed)
	}
}
