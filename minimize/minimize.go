// Package minimize implements the Minimizer: shrinking a matching
// preemption record to local minimality, per spec.md §4.5.
package minimize

import (
	"context"
	"fmt"

	"github.com/kornnell/hermit-analyze/diagnostic"
	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/preempt"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/workspace"
)

// Run takes a matching preemption record and returns a record that (a)
// still matches the criterion on replay (I1/P1) and (b) is locally minimal:
// no single entry can be dropped from it without losing the match.
//
// The operator tries removing each entry from the current record in turn,
// keeping the first removal whose replay still matches and restarting the
// sweep from there; it reaches a fixed point when a full sweep removes
// nothing. This is weaker than an interval-halving ddmin but is safe to
// apply to the coarse, order-sensitive preemption directives this pipeline
// carries: removing one directive never changes the meaning of another.
func Run(ctx context.Context, r *runner.Runner, base runopts.Options, matching *preempt.Record, printer *diagnostic.Printer) (*preempt.Record, error) {
	if err := matching.Validate(); err != nil {
		return nil, err
	}

	current := matching.Clone()
	round := 0

	for {
		shrunk := false
		for i := 0; i < current.Len(); i++ {
			candidate := withEntryRemoved(current, i)

			runName := fmt.Sprintf("minimize_round_%03d", round)
			round++

			ok, err := replayMatches(ctx, r, base, candidate, runName)
			if err != nil {
				return nil, err
			}
			if ok {
				printer.Verbosef("minimize: dropped entry %d, still matches (%d entries remain)", i, candidate.Len())
				current = candidate
				shrunk = true
				break
			}
		}
		if !shrunk {
			break
		}
	}

	if err := requireMatch(ctx, r, base, current, "minimize_final"); err != nil {
		return nil, err
	}

	return current, nil
}

func withEntryRemoved(r *preempt.Record, index int) *preempt.Record {
	out := r.Clone()
	out.Entries = append(out.Entries[:index:index], out.Entries[index+1:]...)
	return out
}

func replayMatches(ctx context.Context, r *runner.Runner, base runopts.Options, rec *preempt.Record, runName string) (bool, error) {
	path := r.Workspace.Path(runName, workspace.ExtPreempts)
	if err := rec.Save(path); err != nil {
		return false, err
	}
	opts := base
	opts.Replay = runopts.Preemptions(path)
	opts.RecordPreemptions = false
	opts.RecordPreemptionsTo = ""

	result, err := r.Launch(ctx, runName, &opts)
	if err != nil {
		return false, cerrors.Wrap(err, cerrors.ErrConvergence, "minimize replay "+runName)
	}
	return result.Matches, nil
}

func requireMatch(ctx context.Context, r *runner.Runner, base runopts.Options, rec *preempt.Record, runName string) error {
	ok, err := replayMatches(ctx, r, base, rec, runName)
	if err != nil {
		return err
	}
	if !ok {
		return cerrors.ErrTargetInvariantBroken
	}
	return nil
}
