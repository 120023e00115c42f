// Package search implements the Searcher: finding an initial chaos seed
// whose run matches the criterion, per spec.md §4.4.
package search

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/kornnell/hermit-analyze/diagnostic"
	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/workspace"
)

// Result reports the seed and preemption artifact of the first matching
// round found.
type Result struct {
	SchedSeed    uint64
	PreemptsPath string
}

// Run iterates chaos seeds drawn from a PCG sequence seeded by analyzeSeed
// (or system entropy, when analyzeSeed is nil) and launches successive
// rounds in chaos mode with preemption recording on, until one matches.
// There is no bounded retry count: the spec requires the search to run
// until it succeeds, printing progress per round.
func Run(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, analyzeSeed *uint64, impreciseSearch bool, printer *diagnostic.Printer) (*Result, error) {
	var seed1, seed2 uint64
	if analyzeSeed != nil {
		seed1, seed2 = *analyzeSeed, *analyzeSeed^0x9e3779b97f4a7c15
	} else {
		seed1, seed2 = rand.Uint64(), rand.Uint64()
	}
	printer.Noticef("Failure search using RNG seed %d", seed1)
	src := rand.NewPCG(seed1, seed2)
	rng := rand.New(src)

	for round := 0; ; round++ {
		select {
		case <-ctx.Done():
			return nil, cerrors.Wrap(ctx.Err(), cerrors.ErrConvergence, "search cancelled")
		default:
		}

		schedSeed := rng.Uint64()
		printer.Noticef("Searching (round %d) for a failing execution, chaos --sched-seed=%d", round, schedSeed)

		runName := fmt.Sprintf("search_round_%03d", round)
		preemptsPath := ws.Path(runName, workspace.ExtPreempts)

		opts := base
		opts.Chaos = true
		opts.SchedSeed = &schedSeed
		opts.RecordPreemptions = true
		opts.RecordPreemptionsTo = preemptsPath
		if impreciseSearch {
			opts.ImpreciseTimers = true
		}

		result, err := r.Launch(ctx, runName, &opts)
		if err != nil {
			return nil, cerrors.Wrap(err, cerrors.ErrConvergence, "search round "+runName)
		}
		if result.Matches {
			printer.Noticef("Search successfully found a failing run (round %d, sched-seed=%d)", round, schedSeed)
			return &Result{SchedSeed: schedSeed, PreemptsPath: preemptsPath}, nil
		}
	}
}
