// Package gapdetect detects market-data timeline gaps. A group's bins
// arrive on a strict one-minute grid: the incoming bin must be stamped
// exactly one minute after the last fully-processed bin. Any deviation —
// earlier, later, non-contiguous — is uniformly a gap; there is no
// tolerance window and no distinction between small and large gaps.
package gapdetect

import (
	"log"
	"time"

	"exchange-simv1/internal/model"
)

// Result describes the outcome of a contiguity check.
type Result struct {
	Gap   bool
	Start time.Time // last processed bin (gap start), zero when Gap is false
	End   time.Time // incoming bin (gap end), zero when Gap is false
}

// Check compares the incoming bin timestamp against the group watermark.
// A zero lastSnap (no bin ever processed) never flags a gap.
func Check(lastSnap, incoming time.Time) Result {
	if lastSnap.IsZero() {
		return Result{}
	}
	if incoming.Equal(lastSnap.Add(time.Minute)) {
		return Result{}
	}
	return Result{Gap: true, Start: lastSnap, End: incoming}
}

// Detector checks incoming live bins for gaps and delegates gap handling
// to the group's replay coordinator. The REPLAY→NORMAL transition is
// owned by the coordinator, not the detector; callers are expected to
// consult InReplayMode before gap-checking live bins at all.
type Detector struct {
	Coordinator model.ReplayCoordinator

	// OnGap is called when a gap is flagged (optional metrics hook).
	OnGap func(start, end time.Time)
}

// New creates a Detector delegating to the given coordinator.
func New(coordinator model.ReplayCoordinator) *Detector {
	return &Detector{Coordinator: coordinator}
}

// HandleLiveBin gap-checks one live bin. Returns (gap, handled):
// gap=false means normal processing should proceed for this bin;
// gap=true, handled=true means replay was activated and the bin is now
// owned by the coordinator; gap=true, handled=false means replay
// activation failed — the gap cannot be filled, and the caller decides
// what to do next (the bin is not processed either way).
func (d *Detector) HandleLiveBin(lastSnap time.Time, bin model.Bin) (gap, handled bool) {
	res := Check(lastSnap, bin.TS)
	if !res.Gap {
		return false, false
	}

	log.Printf("[gapdetect] gap detected: last=%s incoming=%s",
		res.Start.Format(time.RFC3339), res.End.Format(time.RFC3339))
	if d.OnGap != nil {
		d.OnGap(res.Start, res.End)
	}

	if d.Coordinator == nil || !d.Coordinator.ActivateReplay(res.Start, res.End, bin) {
		log.Printf("[gapdetect] replay activation failed — gap %s..%s cannot be filled",
			res.Start.Format(time.RFC3339), res.End.Format(time.RFC3339))
		return true, false
	}
	return true, true
}
