// Package driver implements the Driver: sequencing phases 1 through 6 and
// threading artifacts between them, per spec.md §4.9.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kornnell/hermit-analyze/baseline"
	"github.com/kornnell/hermit-analyze/bisect"
	"github.com/kornnell/hermit-analyze/criterion"
	"github.com/kornnell/hermit-analyze/diagnostic"
	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/logging"
	"github.com/kornnell/hermit-analyze/minimize"
	"github.com/kornnell/hermit-analyze/preempt"
	"github.com/kornnell/hermit-analyze/report"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/schedule"
	"github.com/kornnell/hermit-analyze/search"
	"github.com/kornnell/hermit-analyze/workspace"
)

// Config is every flag spec.md §6 exposes, already parsed and validated by
// the CLI layer.
type Config struct {
	Binary      string
	ProgramArgs []string

	Criterion criterion.Criterion

	Search          bool
	Minimize        bool
	Selfcheck       bool
	Verbose         bool
	ImpreciseSearch bool

	Run1Seed        *uint64
	Run1Preemptions string

	Run2Seed        *uint64
	Run2Preemptions string

	AnalyzeSeed *uint64

	ReportFile      string
	SuccessExitCode *int
	Bind            []string
}

// Driver sequences phases 1-6, threading a RunnerContext-shaped pair of
// (workspace, runner) through every phase instead of stashing them on
// process-wide state (Design Note 2).
type Driver struct {
	Printer *diagnostic.Printer
}

func (cfg *Config) baseOptions(ws *workspace.Workspace) runopts.Options {
	return runopts.Options{
		SequentializeThreads: true,
		Bind:                 append([]string{ws.Dir()}, cfg.Bind...),
	}
}

// Run executes the full pipeline and returns the process exit code to use.
func (d *Driver) Run(ctx context.Context, cfg *Config) (int, error) {
	if cfg.Criterion.IsUnconstrained() {
		d.Printer.Warnf("run without any target-stdout/target-stderr/target-exit-code, so accepting ALL runs. This is probably not what you wanted.")
	}

	ws, err := workspace.New("hermit_analyze")
	if err != nil {
		return 1, err
	}
	d.Printer.Infof("Temp workspace: %s", ws.Dir())

	r := &runner.Runner{Workspace: ws, Criterion: cfg.Criterion, Binary: cfg.Binary, ProgramArgs: cfg.ProgramArgs}
	base := cfg.baseOptions(ws)

	logging.Info("starting analysis", "workspace", ws.Dir())

	// Phase 1: establish the target run.
	logging.WithPhase(logging.Default(), "phase1").Debug("establishing target run")
	targetRecord, err := d.phase1(ctx, r, ws, base, cfg)
	if err != nil {
		return 1, err
	}

	// Phase 2: minimize (optional).
	matching := targetRecord
	if cfg.Minimize {
		logging.WithPhase(logging.Default(), "phase2").Debug("minimizing preemption record")
		matching, err = minimize.Run(ctx, r, base, targetRecord, d.Printer)
		if err != nil {
			return 1, err
		}
		d.Printer.Noticef("Successfully minimized to these critical interventions:")
		d.Printer.Infof("%s", diagnostic.Truncate(1000, mustJSON(matching)))
	}

	// Phase 3: self-check (optional).
	if cfg.Selfcheck {
		logging.WithPhase(logging.Default(), "phase3").Debug("verifying self-check replay")
		if err := d.phase3(ctx, r, base, matching); err != nil {
			return 1, err
		}
	}

	normalized := matching.Normalize().PreemptionsOnly()
	normalizedPath := ws.Named("final.preempts")
	if err := normalized.Save(normalizedPath); err != nil {
		return 1, err
	}
	d.Printer.Noticef("Normalized, that preemption record becomes:")
	d.Printer.Infof("%s", diagnostic.Truncate(1000, mustJSON(normalized)))

	// Target schedule artifact — deliberately distinct from the baseline
	// schedule artifact (Design Note / Open Question 2).
	targetSchedPath := ws.Named("first_matching.events")
	targetSched, err := recordSchedule(ctx, r, base, normalizedPath, targetSchedPath)
	if err != nil {
		return 1, err
	}

	// Phase 4: choose baseline.
	logging.WithPhase(logging.Default(), "phase4").Debug("choosing baseline schedule")
	bres, err := baseline.Choose(ctx, r, ws, base, baseline.Inputs{
		Run2Seed:        cfg.Run2Seed,
		Run2Preemptions: cfg.Run2Preemptions,
		Minimized:       minimizedOrNil(cfg.Minimize, normalized),
		Target:          normalized,
	})
	if err != nil {
		return 1, err
	}

	// Phase 5: bisect.
	logging.WithPhase(logging.Default(), "phase5").Debug("bisecting schedule space")
	b := &bisect.Bisector{Runner: r, Workspace: ws, Base: base}
	crit, err := b.Run(ctx, targetSched, bres.Schedule)
	if err != nil {
		return 1, err
	}
	d.Printer.Noticef("Critical event of final on-target schedule is %d", crit.CriticalEventIndex)

	// Phase 6: report.
	logging.WithPhase(logging.Default(), "phase6").Debug("generating report")
	rep, err := report.Generate(ctx, r, ws, base, crit, d.Printer)
	if err != nil {
		return 1, err
	}

	fmt.Println("\n------------------------------ hermit analyze report ------------------------------")
	fmt.Println(rep.Header)
	fmt.Println(rep.Stack1)
	fmt.Println(rep.Stack2)
	d.Printer.Noticef("Completed analysis successfully.")

	if cfg.ReportFile != "" {
		if err := report.WriteFile(rep, cfg.ReportFile); err != nil {
			return 1, err
		}
		d.Printer.Noticef("Final analysis report written to: %s", cfg.ReportFile)
	}

	if cfg.SuccessExitCode != nil {
		return *cfg.SuccessExitCode, nil
	}
	return 0, nil
}

// phase1 establishes the target run: run1, or search for one, and returns
// its preemption record.
func (d *Driver) phase1(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, cfg *Config) (*preempt.Record, error) {
	const runName = "phase1_target"
	preemptsPath := ws.Path(runName, workspace.ExtPreempts)

	var matches bool
	var rec *preempt.Record

	phaseLog := logging.WithPhase(logging.Default(), "phase1")

	if cfg.Run1Preemptions != "" {
		logging.WithOperation(phaseLog, "trust_input").Debug("trusting supplied run1 preemptions", "path", cfg.Run1Preemptions)
		data, err := os.ReadFile(cfg.Run1Preemptions)
		if err != nil {
			return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "copy run1 preemptions", cfg.Run1Preemptions)
		}
		if err := os.WriteFile(preemptsPath, data, 0o644); err != nil {
			return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "copy run1 preemptions", preemptsPath)
		}
		rec, err = preempt.Load(preemptsPath)
		if err != nil {
			return nil, err
		}
		matches = true
	} else {
		opts := base
		if cfg.Run1Seed != nil {
			opts.Replay = runopts.Chaos(*cfg.Run1Seed)
			opts.Chaos = true
		}
		opts.RecordPreemptions = true
		opts.RecordPreemptionsTo = preemptsPath

		logging.WithOperation(phaseLog, "launch_and_record").Debug("launching target run", "run", runName)
		d.Printer.Noticef("Studying execution: %s", cfg.Criterion.Describe())
		result, err := r.Launch(ctx, runName, &opts)
		if err != nil {
			return nil, err
		}
		matches = result.Matches
		rec, err = preempt.Load(preemptsPath)
		if err != nil {
			return nil, err
		}
	}

	if !matches {
		if !cfg.Search {
			return nil, cerrors.New(cerrors.ErrConvergence, "phase1 establish target", "the run did not match the target criteria; try enabling --search")
		}
		logging.WithOperation(phaseLog, "search_for_match").Debug("first run did not match; searching")
		d.Printer.Warnf("First run did not match target criteria; now searching for a matching run...")
		sres, err := search.Run(ctx, r, ws, base, cfg.AnalyzeSeed, cfg.ImpreciseSearch, d.Printer)
		if err != nil {
			return nil, err
		}
		rec, err = preempt.Load(sres.PreemptsPath)
		if err != nil {
			return nil, err
		}
	} else if !cfg.Criterion.IsUnconstrained() {
		d.Printer.Noticef("First run matched target criteria (%s).", cfg.Criterion.Describe())
	}

	return rec, nil
}

// phase3 re-runs the target under preemption replay (I4). It requires the
// replay to match the criterion and the re-recorded preemption record to
// equal the input record once both are normalized. It does not compare the
// two record files byte for byte, and it does not compare run logs.
func (d *Driver) phase3(ctx context.Context, r *runner.Runner, base runopts.Options, matching *preempt.Record) error {
	d.Printer.Noticef("[selfcheck] Verifying target run preserved under preemption-replay")
	logging.WithOperation(logging.WithPhase(logging.Default(), "phase3"), "replay_selfcheck").Debug("replaying target under preemption record")

	const runName = "run1b_selfcheck"
	path := r.Workspace.Path(runName, workspace.ExtPreempts)
	if err := matching.Save(r.Workspace.Path("selfcheck_input", workspace.ExtPreempts)); err != nil {
		return err
	}

	opts := base
	opts.Replay = runopts.Preemptions(r.Workspace.Path("selfcheck_input", workspace.ExtPreempts))
	opts.RecordPreemptions = true
	opts.RecordPreemptionsTo = path

	result, err := r.Launch(ctx, runName, &opts)
	if err != nil {
		return err
	}
	if !result.Matches {
		return cerrors.New(cerrors.ErrInvariant, "phase3 selfcheck", "first run matched criteria but the self-check replay did not")
	}

	replayed, err := preempt.Load(path)
	if err != nil {
		return err
	}
	if !matching.Normalize().Equal(replayed.Normalize()) {
		return cerrors.ErrNoFixedPoint
	}

	d.Printer.Noticef("Identical executions confirmed between target run and its preemption-based replay.")
	return nil
}

func minimizedOrNil(didMinimize bool, normalized *preempt.Record) *preempt.Record {
	if !didMinimize {
		return nil
	}
	return normalized
}

func recordSchedule(ctx context.Context, r *runner.Runner, base runopts.Options, preemptsPath, schedPath string) (schedule.Schedule, error) {
	const runName = "save_target_sched_events"
	recordedPath := r.Workspace.Path(runName, workspace.ExtPreempts)

	opts := base
	opts.Replay = runopts.Preemptions(preemptsPath)
	opts.RecordPreemptions = true
	opts.RecordPreemptionsTo = recordedPath

	if _, err := r.Launch(ctx, runName, &opts); err != nil {
		return nil, err
	}

	rec, err := preempt.Load(recordedPath)
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
	return sched, nil
}

func mustJSON(r *preempt.Record) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("<error rendering record: %v>", err)
	}
	return string(data)
}
