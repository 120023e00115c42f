package cmd

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/kornnell/hermit-analyze/criterion"
	"github.com/kornnell/hermit-analyze/diagnostic"
	"github.com/kornnell/hermit-analyze/driver"
	cerrors "github.com/kornnell/hermit-analyze/errors"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] -- <program> [program-args...]",
	Short: "Reduce an intermittent failure to its minimal racing events",
	Long: `analyze runs the program under the deterministic runtime repeatedly,
first to find a run matching the target failure, then to shrink, bisect, and
report the two racing events responsible.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeRuntime     string
	analyzeTargetOut   string
	analyzeTargetErr   string
	analyzeTargetCode  string
	analyzeSearch      bool
	analyzeMinimize    bool
	analyzeSelfcheck   bool
	analyzeVerbose     bool
	analyzeImprecise   bool
	analyzeRun1Seed    uint64
	analyzeRun1SeedSet bool
	analyzeRun1Preempt string
	analyzeRun2Seed    uint64
	analyzeRun2SeedSet bool
	analyzeRun2Preempt string
	analyzeSeed        uint64
	analyzeSeedSet     bool
	analyzeReportFile  string
	analyzeSuccessCode int
	analyzeSuccessSet  bool
	analyzeBind        []string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	f := analyzeCmd.Flags()
	f.StringVar(&analyzeRuntime, "runtime", "hermit", "path to the deterministic runtime binary")

	f.StringVar(&analyzeTargetOut, "target-stdout", "", "regular expression the target run's stdout must match")
	f.StringVar(&analyzeTargetErr, "target-stderr", "", "regular expression the target run's stderr must match")
	f.StringVar(&analyzeTargetCode, "target-exit-code", "", `target exit code: "any", "nonzero", or an exact integer`)

	f.BoolVar(&analyzeSearch, "search", false, "search for a matching run if the first one does not match")
	f.BoolVar(&analyzeMinimize, "minimize", false, "minimize the matching run's preemption record before bisecting")
	f.BoolVar(&analyzeSelfcheck, "selfcheck", false, "verify the target run reproduces under preemption replay before proceeding")
	f.BoolVarP(&analyzeVerbose, "verbose", "v", false, "print verbose run-configuration diagnostics")
	f.BoolVar(&analyzeImprecise, "imprecise-search", false, "allow imprecise timers while searching for a matching run")

	f.Uint64Var(&analyzeRun1Seed, "run1-seed", 0, "chaos seed for the first (target) run")
	f.StringVar(&analyzeRun1Preempt, "run1-preemptions", "", "preemption record file to trust as the target run, skipping run 1")
	f.Uint64Var(&analyzeRun2Seed, "run2-seed", 0, "chaos seed for the second (baseline) run")
	f.StringVar(&analyzeRun2Preempt, "run2-preemptions", "", "preemption record file to use directly as the baseline")
	f.Uint64Var(&analyzeSeed, "analyze-seed", 0, "seed for the analyzer's own internal search randomness")

	f.StringVar(&analyzeReportFile, "report-file", "", "path to write the final JSON report to")
	f.IntVar(&analyzeSuccessCode, "success-exit-code", 0, "exit code to return on a successful analysis (default: 0)")
	f.StringArrayVar(&analyzeBind, "bind", nil, "additional directory to bind into the runtime's sandbox")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	analyzeRun1SeedSet = f.Changed("run1-seed")
	analyzeRun2SeedSet = f.Changed("run2-seed")
	analyzeSeedSet = f.Changed("analyze-seed")
	analyzeSuccessSet = f.Changed("success-exit-code")

	crit, err := buildCriterion()
	if err != nil {
		return err
	}

	if err := checkReplayConflicts(); err != nil {
		return err
	}

	cfg := &driver.Config{
		Binary:          analyzeRuntime,
		ProgramArgs:     args,
		Criterion:       crit,
		Search:          analyzeSearch,
		Minimize:        analyzeMinimize,
		Selfcheck:       analyzeSelfcheck,
		Verbose:         analyzeVerbose,
		ImpreciseSearch: analyzeImprecise,
		Run1Preemptions: analyzeRun1Preempt,
		Run2Preemptions: analyzeRun2Preempt,
		ReportFile:      analyzeReportFile,
		Bind:            analyzeBind,
	}
	if analyzeRun1SeedSet {
		cfg.Run1Seed = &analyzeRun1Seed
	}
	if analyzeRun2SeedSet {
		cfg.Run2Seed = &analyzeRun2Seed
	}
	if analyzeSeedSet {
		cfg.AnalyzeSeed = &analyzeSeed
	}
	if analyzeSuccessSet {
		cfg.SuccessExitCode = &analyzeSuccessCode
	}

	d := &driver.Driver{Printer: diagnostic.NewStderrPrinter(analyzeVerbose)}
	code, err := d.Run(GetContext(), cfg)
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// buildCriterion translates the --target-* flags into a criterion.Criterion.
// Supplying none of them is not an error here: the result is an
// unconstrained criterion, which driver.Run warns about (spec.md §7: an
// unconstrained criterion is a user-input warning, not an abort).
func buildCriterion() (criterion.Criterion, error) {
	var c criterion.Criterion

	if analyzeTargetOut != "" {
		re, err := regexp.Compile(analyzeTargetOut)
		if err != nil {
			return c, cerrors.WrapWithDetail(err, cerrors.ErrUserInput, "compile --target-stdout", analyzeTargetOut)
		}
		c.Stdout = re
	}
	if analyzeTargetErr != "" {
		re, err := regexp.Compile(analyzeTargetErr)
		if err != nil {
			return c, cerrors.WrapWithDetail(err, cerrors.ErrUserInput, "compile --target-stderr", analyzeTargetErr)
		}
		c.Stderr = re
	}

	switch analyzeTargetCode {
	case "", "any":
		c.ExitCode = criterion.AnyExitCode()
	case "nonzero":
		c.ExitCode = criterion.NonZeroExitCode()
	default:
		var code int
		if _, err := fmt.Sscanf(analyzeTargetCode, "%d", &code); err != nil {
			return c, cerrors.WrapWithDetail(err, cerrors.ErrUserInput, "parse --target-exit-code", analyzeTargetCode)
		}
		c.ExitCode = criterion.ExactExitCode(code)
	}

	return c, nil
}

// checkReplayConflicts enforces "at most one replay input per run" at the
// flag layer: once built, a runopts.ReplayDriver can only ever hold one
// kind, so this check belongs here rather than inside Options.Validate.
func checkReplayConflicts() error {
	if analyzeRun1SeedSet && analyzeRun1Preempt != "" {
		return cerrors.ErrConflictingReplayInputs
	}
	if analyzeRun2SeedSet && analyzeRun2Preempt != "" {
		return cerrors.ErrConflictingReplayInputs
	}
	return nil
}
