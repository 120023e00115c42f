// Package baseline implements the Baseline Chooser (Phase 4): deriving a
// non-matching schedule lying close to the matching target, per spec.md
// §4.6.
package baseline

import (
	"context"

	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/preempt"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/schedule"
	"github.com/kornnell/hermit-analyze/workspace"
)

// Inputs bundles the four branches spec.md §4.6 distinguishes. At most one
// of Run2Seed, Run2Preemptions should be set; when neither is set the
// chooser falls back to knockout-from-minimized (when Minimized is
// non-nil) or strip-contents-from-target.
type Inputs struct {
	Run2Seed        *uint64
	Run2Preemptions string

	// Minimized is the minimizer's output, present only when minimization
	// ran this analysis.
	Minimized *preempt.Record

	// Target is the (possibly unminimized) matching record, used by the
	// strip-contents fallback when nothing else is available.
	Target *preempt.Record
}

// Result is the chosen baseline: its preemption record and the schedule
// recorded while replaying it.
type Result struct {
	Record   *preempt.Record
	Schedule schedule.Schedule
}

// Choose implements all four branches atomically. The knockout-loop branch
// (spec.md §4.6's third bullet) returns the first truncated record whose
// replay does NOT match, paired with the schedule recorded from that same
// replay — it never reassigns a loop variable that could alias the
// still-matching record.
func Choose(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, in Inputs) (*Result, error) {
	switch {
	case in.Run2Seed != nil:
		return chooseFromSeed(ctx, r, ws, base, *in.Run2Seed)
	case in.Run2Preemptions != "":
		return chooseFromFile(ctx, r, ws, base, in.Run2Preemptions)
	case in.Minimized != nil:
		return chooseByKnockout(ctx, r, ws, base, in.Minimized)
	default:
		return chooseByStripping(ctx, r, ws, base, in.Target)
	}
}

const baselineRun = "final_baseline"

func recordSchedule(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, driver runopts.ReplayDriver) (*Result, error) {
	schedPath := ws.Named("final_baseline.events")
	opts := base
	opts.Replay = driver
	opts.RecordPreemptions = true
	opts.RecordPreemptionsTo = ws.Path(baselineRun, workspace.ExtPreempts)

	if _, err := r.Launch(ctx, baselineRun, &opts); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrConvergence, "baseline replay")
	}

	rec, err := preempt.Load(opts.RecordPreemptionsTo)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	sched := rec.ToSchedule()
	if err := schedule.WriteTrace(schedPath, sched); err != nil {
		return nil, err
	}

	return &Result{Record: rec, Schedule: sched}, nil
}

// chooseFromSeed launches once with run2_seed and accepts the result
// unconditionally, per spec.md: "accept the result unconditionally as the
// baseline" — no match check applies here, I2 is the caller's
// responsibility to have chosen a genuinely distinct seed.
func chooseFromSeed(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, seed uint64) (*Result, error) {
	base.Chaos = true
	return recordSchedule(ctx, r, ws, base, runopts.Chaos(seed))
}

func chooseFromFile(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, path string) (*Result, error) {
	rec, err := preempt.Load(path)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return recordSchedule(ctx, r, ws, base, runopts.Preemptions(path))
}

// chooseByKnockout iteratively drops the latest preemption from the
// minimized record, replaying each truncation, until one finally fails to
// match. That truncation is the baseline: after minimization every
// surviving preemption is load-bearing, so dropping the last one produces
// the smallest reachable deviation from the target.
func chooseByKnockout(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, minimized *preempt.Record) (*Result, error) {
	current := minimized

	for round := 0; ; round++ {
		if current.Len() == 0 {
			return chooseByStripping(ctx, r, ws, base, minimized)
		}
		current = current.WithLatestPreemptRemoved()

		candidatePath := ws.Path("knockout_round", workspace.ExtPreempts)
		if err := current.Save(candidatePath); err != nil {
			return nil, err
		}

		opts := base
		opts.Replay = runopts.Preemptions(candidatePath)
		opts.RecordPreemptions = true
		opts.RecordPreemptionsTo = ws.Path("knockout_round", workspace.ExtEvents)

		result, err := r.Launch(ctx, "knockout_round", &opts)
		if err != nil {
			return nil, cerrors.Wrap(err, cerrors.ErrConvergence, "baseline knockout replay")
		}

		if !result.Matches {
			rec, err := preempt.Load(opts.RecordPreemptionsTo)
			if err != nil {
				return nil, err
			}
			if err := rec.Validate(); err != nil {
				return nil, err
			}
			sched := rec.ToSchedule()
			if err := schedule.WriteTrace(ws.Named("final_baseline.events"), sched); err != nil {
				return nil, err
			}
			return &Result{Record: rec, Schedule: sched}, nil
		}
	}
}

// chooseByStripping is the last-resort fallback: the target record with its
// contents emptied, re-recorded to capture the schedule that empty set of
// preemptions actually produces on replay.
func chooseByStripping(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, target *preempt.Record) (*Result, error) {
	stripped := target.StripContents()
	path := ws.Path("stripped_baseline", workspace.ExtPreempts)
	if err := stripped.Save(path); err != nil {
		return nil, err
	}
	return recordSchedule(ctx, r, ws, base, runopts.Preemptions(path))
}
