package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exchange-simv1/internal/model"
)

// memReader serves archived bins from memory.
type memReader struct {
	bins    []model.Bin
	readErr error
}

func (r *memReader) ReadBins(from, to time.Time) ([]model.Bin, error) {
	if r.readErr != nil {
		return nil, r.readErr
	}
	var out []model.Bin
	for _, b := range r.bins {
		if !b.TS.Before(from) && !b.TS.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memReader) Close() error { return nil }

// processLog records every bin handed to the processor.
type processLog struct {
	mu     sync.Mutex
	bins   []model.Bin
	bypass []bool
}

func (p *processLog) fn(_ context.Context, bin model.Bin, bypass bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bins = append(p.bins, bin)
	p.bypass = append(p.bypass, bypass)
	return nil
}

func (p *processLog) snapshot() []model.Bin {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Bin, len(p.bins))
	copy(out, p.bins)
	return out
}

func archiveBins(start time.Time, n int) []model.Bin {
	bins := make([]model.Bin, n)
	for i := range bins {
		bins[i] = model.Bin{
			TS:   start.Add(time.Duration(i) * time.Minute),
			Bars: []model.EquityBar{{Symbol: "AAPL", TS: start.Add(time.Duration(i) * time.Minute)}},
		}
	}
	return bins
}

func waitForReplayDone(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.InReplayMode() {
		if time.Now().After(deadline) {
			t.Fatal("replay did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestActivateReplay_BackfillsGapInteriorThenLiveBin(t *testing.T) {
	gapStart := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	gapEnd := gapStart.Add(31 * time.Minute)

	// Archive covers the whole morning; the replay must read only the
	// gap interior (14:01 .. 14:30).
	reader := &memReader{bins: archiveBins(gapStart.Add(-time.Hour), 120)}
	plog := &processLog{}

	done := make(chan int, 1)
	c := New(context.Background(), reader, 16)
	c.SetProcessor(plog.fn)
	c.OnComplete = func(n int) { done <- n }

	live := model.Bin{TS: gapEnd, Bars: []model.EquityBar{{Symbol: "AAPL", TS: gapEnd}}}
	if !c.ActivateReplay(gapStart, gapEnd, live) {
		t.Fatal("ActivateReplay returned false")
	}

	var total int
	select {
	case total = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not complete")
	}

	// 30 interior bins plus the triggering live bin.
	if total != 31 {
		t.Errorf("processed %d bins, want 31", total)
	}

	bins := plog.snapshot()
	if len(bins) != 31 {
		t.Fatalf("processor saw %d bins, want 31", len(bins))
	}
	if want := gapStart.Add(time.Minute); !bins[0].TS.Equal(want) {
		t.Errorf("first backfilled bin %s, want %s", bins[0].TS, want)
	}
	if !bins[30].TS.Equal(gapEnd) {
		t.Errorf("last bin %s, want live bin %s", bins[30].TS, gapEnd)
	}
	for i, bypass := range plog.bypass {
		if !bypass {
			t.Errorf("bin %d processed without bypass", i)
		}
	}
	if c.InReplayMode() {
		t.Error("still in replay mode after completion")
	}
}

func TestActivateReplay_RefusalCases(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	live := model.Bin{TS: end}

	t.Run("no processor wired", func(t *testing.T) {
		c := New(context.Background(), &memReader{bins: archiveBins(start, 10)}, 16)
		if c.ActivateReplay(start, end, live) {
			t.Error("activated without a processor")
		}
	})

	t.Run("archive read error", func(t *testing.T) {
		c := New(context.Background(), &memReader{readErr: errors.New("db locked")}, 16)
		c.SetProcessor((&processLog{}).fn)
		if c.ActivateReplay(start, end, live) {
			t.Error("activated despite read error")
		}
	})

	t.Run("no archive coverage", func(t *testing.T) {
		c := New(context.Background(), &memReader{}, 16)
		c.SetProcessor((&processLog{}).fn)
		if c.ActivateReplay(start, end, live) {
			t.Error("activated with an empty archive window")
		}
		if c.InReplayMode() {
			t.Error("in replay mode after refused activation")
		}
	})
}

func TestQueueLive_OnlyWhileReplaying(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	c := New(context.Background(), &memReader{}, 16)

	// Not replaying: the caller must process inline.
	if c.QueueLive(model.Bin{TS: start}) {
		t.Error("QueueLive accepted a bin outside replay mode")
	}
	if c.QueueLen() != 0 {
		t.Errorf("queue len %d, want 0", c.QueueLen())
	}
}

func TestReplay_DrainsQueuedLiveBins(t *testing.T) {
	gapStart := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	gapEnd := gapStart.Add(3 * time.Minute)

	reader := &memReader{bins: archiveBins(gapStart, 10)}

	// Block the processor until the live bins are queued, so the queue
	// drain is actually exercised.
	release := make(chan struct{})
	var once sync.Once
	plog := &processLog{}
	blocking := func(ctx context.Context, bin model.Bin, bypass bool) error {
		once.Do(func() { <-release })
		return plog.fn(ctx, bin, bypass)
	}

	c := New(context.Background(), reader, 16)
	c.SetProcessor(blocking)

	live := model.Bin{TS: gapEnd, Bars: []model.EquityBar{{Symbol: "AAPL", TS: gapEnd}}}
	if !c.ActivateReplay(gapStart, gapEnd, live) {
		t.Fatal("ActivateReplay returned false")
	}

	q1 := model.Bin{TS: gapEnd.Add(time.Minute), Bars: []model.EquityBar{{Symbol: "AAPL"}}}
	q2 := model.Bin{TS: gapEnd.Add(2 * time.Minute), Bars: []model.EquityBar{{Symbol: "AAPL"}}}
	if !c.QueueLive(q1) || !c.QueueLive(q2) {
		t.Fatal("QueueLive rejected bins during replay")
	}
	close(release)

	waitForReplayDone(t, c)

	bins := plog.snapshot()
	if len(bins) == 0 {
		t.Fatal("no bins processed")
	}
	// The queued live bins come last, in arrival order.
	if !bins[len(bins)-2].TS.Equal(q1.TS) || !bins[len(bins)-1].TS.Equal(q2.TS) {
		t.Errorf("tail bins %s, %s; want %s, %s",
			bins[len(bins)-2].TS, bins[len(bins)-1].TS, q1.TS, q2.TS)
	}
	if c.QueueLen() != 0 {
		t.Errorf("queue len %d after drain, want 0", c.QueueLen())
	}
}

func TestActivateReplay_RejectedWhileReplaying(t *testing.T) {
	gapStart := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	gapEnd := gapStart.Add(3 * time.Minute)

	release := make(chan struct{})
	var once sync.Once
	blocking := func(context.Context, model.Bin, bool) error {
		once.Do(func() { <-release })
		return nil
	}

	c := New(context.Background(), &memReader{bins: archiveBins(gapStart, 10)}, 16)
	c.SetProcessor(blocking)

	if !c.ActivateReplay(gapStart, gapEnd, model.Bin{TS: gapEnd}) {
		t.Fatal("first activation failed")
	}
	if c.ActivateReplay(gapStart, gapEnd, model.Bin{TS: gapEnd}) {
		t.Error("second activation accepted while replay in flight")
	}
	close(release)
	waitForReplayDone(t, c)
}
