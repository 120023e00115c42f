// Package bisect implements the Bisector (Phase 5): the delta-debug-like
// binary search in schedule space, per spec.md §4.7.
package bisect

import (
	"context"
	"fmt"

	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/preempt"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/schedule"
	"github.com/kornnell/hermit-analyze/workspace"
)

// CriticalSchedule is the bisector's output: a triple identifying the
// adjacent-pair reordering that toggles the criterion, per spec.md §3.
type CriticalSchedule struct {
	FailingSchedule     schedule.Schedule
	PassingSchedule     schedule.Schedule
	CriticalEventIndex int
}

// Bisector narrows the divergence window between a matching ("failing",
// per the domain's convention of naming runs for the bug they reproduce)
// schedule and a non-matching ("passing") schedule. ProbeIndex is an
// explicit field rather than a counter captured by a predicate closure, so
// the probe method can be called directly and tested without constructing
// a closure.
type Bisector struct {
	Runner    *runner.Runner
	Workspace *workspace.Workspace
	Base      runopts.Options

	// ProbeIndex is the monotonically increasing id used to name each
	// probe's artifacts. It advances by one on every call to probe.
	ProbeIndex int
}

// probe replays schedule s and reports whether it matched. A replay that
// diverges from the requested schedule (the runtime refused or deviated at
// an unreachable event) is treated conservatively as a non-match, per
// spec.md §4.7, so a deviating probe can never be mistaken for the
// matching endpoint.
func (b *Bisector) probe(ctx context.Context, s schedule.Schedule) (bool, error) {
	runName := fmt.Sprintf("bisect_probe_%03d", b.ProbeIndex)
	b.ProbeIndex++

	path := b.Workspace.Path(runName, workspace.ExtEvents)
	if err := schedule.WriteTrace(path, s); err != nil {
		return false, err
	}

	recordedPath := b.Workspace.Path(runName, workspace.ExtPreempts)
	opts := b.Base
	opts.Replay = runopts.Schedule(path)
	opts.RecordPreemptions = true
	opts.RecordPreemptionsTo = recordedPath

	result, err := b.Runner.Launch(ctx, runName, &opts)
	if err != nil {
		return false, cerrors.Wrap(err, cerrors.ErrConvergence, "bisect probe "+runName)
	}
	if !result.Matches {
		return false, nil
	}

	recorded, err := preempt.Load(recordedPath)
	if err != nil {
		return false, err
	}
	if !preemptionsDeviated(s, recorded) {
		return true, nil
	}
	// The replay diverged from the requested hybrid; treat the deviation
	// conservatively as a non-match rather than trust a schedule the
	// runtime did not honor.
	return false, nil
}

// preemptionsDeviated reports whether recorded (the runtime's own account
// of where it switched threads) diverges from requested's preemption
// directives. Both sides are reduced to the sparse, thread-switch-only
// representation before comparing: --record-preemptions-to writes one
// entry per forced context switch, not one event per scheduling decision,
// so comparing recorded against requested directly (schedule granularity
// against preemption-directive granularity) would flag every honest replay
// as a deviation.
func preemptionsDeviated(requested schedule.Schedule, recorded *preempt.Record) bool {
	expected := preempt.FromSchedEvents(requested).Normalize()
	return !expected.Equal(recorded.Normalize())
}

// splice builds the hybrid H = F[0:mid] ++ P[mid:], the probe schedule the
// bisector evaluates at each step.
func splice(f, p schedule.Schedule, mid int) schedule.Schedule {
	out := make(schedule.Schedule, 0, len(f[:mid])+len(p[mid:]))
	out = append(out, f[:mid]...)
	if mid < len(p) {
		out = append(out, p[mid:]...)
	}
	return out
}

// Run narrows target (a known match) and baseline (a known non-match) to a
// CriticalSchedule. It assumes len(target) == len(baseline); the driver is
// responsible for producing comparably-shaped endpoints (see spec.md
// §4.6's requirement that the baseline schedule be recorded from a replay
// of the same program).
func (b *Bisector) Run(ctx context.Context, target, baseline schedule.Schedule) (*CriticalSchedule, error) {
	n := len(target)
	if n == 0 || len(baseline) == 0 {
		return nil, cerrors.Wrap(nil, cerrors.ErrConvergence, "bisect: empty schedule")
	}
	if n > len(baseline) {
		n = len(baseline)
	}

	lo, hi := 0, n
	f, p := target, baseline

	for hi-lo > 1 {
		mid := lo + (hi-lo)/2 // lowest viable mid for the current window, per the tie-break policy

		select {
		case <-ctx.Done():
			return nil, cerrors.Wrap(ctx.Err(), cerrors.ErrConvergence, "bisect cancelled")
		default:
		}

		h := splice(f, p, mid)
		matches, err := b.probe(ctx, h)
		if err != nil {
			return nil, err
		}
		// h keeps F's prefix up to mid and switches to P's continuation
		// from mid onward. If it still matches, every event that can
		// trigger the failure lies in [0, mid), so the boundary is at or
		// before mid: narrow hi down to mid and keep h as the new
		// (tighter) failing witness. Otherwise the boundary is beyond
		// mid: narrow lo up to mid and keep h as the new passing witness.
		if matches {
			hi = mid
			f = h
		} else {
			lo = mid
			p = h
		}
	}

	return &CriticalSchedule{
		FailingSchedule:     f,
		PassingSchedule:     p,
		CriticalEventIndex: hi,
	}, nil
}
