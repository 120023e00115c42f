// Package report implements the Reporter (Phase 6): persisting the
// bisector's endpoints, capturing stack traces at the critical event pair,
// and emitting the final diagnosis, per spec.md §4.8.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kornnell/hermit-analyze/bisect"
	"github.com/kornnell/hermit-analyze/diagnostic"
	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/schedule"
	"github.com/kornnell/hermit-analyze/workspace"
)

// Report is the JSON-serializable final diagnosis, per spec.md §6.
type Report struct {
	Header string `json:"header"`
	Stack1 string `json:"stack1"`
	Stack2 string `json:"stack2"`
}

const finalFailingRun = "final_target_for_stacktraces"

// Generate writes both bisector endpoints as .events files, re-runs the
// failing schedule with stack capture at the critical event and its
// predecessor, and assembles the report. It asserts the rerun still
// matches — if it does not, I1 has broken between bisection and reporting,
// an analyzer bug or a runtime nondeterminism leak, and Generate returns
// ErrReportInvariantBroken rather than a best-effort report.
func Generate(ctx context.Context, r *runner.Runner, ws *workspace.Workspace, base runopts.Options, crit *bisect.CriticalSchedule, printer *diagnostic.Printer) (*Report, error) {
	failingPath := ws.Path(finalFailingRun, workspace.ExtEvents)
	if err := schedule.WriteTrace(failingPath, crit.FailingSchedule); err != nil {
		return nil, err
	}
	printer.Noticef("Wrote final on-target schedule to %s", failingPath)

	baselinePath := ws.Named("final_baseline.events")
	if err := schedule.WriteTrace(baselinePath, crit.PassingSchedule); err != nil {
		return nil, err
	}
	printer.Noticef("Wrote final baseline (off-target) schedule to %s", baselinePath)

	stack1Path := ws.Path(finalFailingRun, workspace.ExtStack1)
	stack2Path := ws.Path(finalFailingRun, workspace.ExtStack2)

	opts := base
	opts.Replay = runopts.Schedule(failingPath)
	opts.StacktraceEvents = []runopts.StacktraceEvent{
		{EventIndex: crit.CriticalEventIndex - 1, Path: stack1Path},
		{EventIndex: crit.CriticalEventIndex, Path: stack2Path},
	}

	printer.Noticef("Final run to print stack traces. Repro command:")
	printer.Infof("%s", opts.ReproCommand("hermit", nil))

	result, err := r.Launch(ctx, finalFailingRun, &opts)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrInvariant, "final stacktrace run")
	}
	if !result.Matches {
		return nil, cerrors.ErrReportInvariantBroken
	}

	stack1, err := os.ReadFile(stack1Path)
	if err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "read stack1", stack1Path)
	}
	stack2, err := os.ReadFile(stack2Path)
	if err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "read stack2", stack2Path)
	}

	header := fmt.Sprintf(
		"These two operations, on different threads, are racing with each other.\n"+
			"The current order of events %d and %d is causing a failure.\n"+
			"Add synchronization to prevent these operations from racing, or give them a different order.\n",
		crit.CriticalEventIndex-1, crit.CriticalEventIndex,
	)

	return &Report{Header: header, Stack1: string(stack1), Stack2: string(stack2)}, nil
}

// WriteFile persists rep to path as JSON, the optional --report-file
// output.
func WriteFile(rep *Report, path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrInternal, "marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "write report file", path)
	}
	return nil
}
