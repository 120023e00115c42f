// Package errors provides predefined sentinel errors for common failure cases.
package errors

// User-input errors (spec taxonomy item 1).
var (
	// ErrNoCriterion indicates no match criterion was supplied at all.
	ErrNoCriterion = &AnalyzeError{
		Kind:   ErrUserInput,
		Detail: "no criterion supplied; matching all runs",
	}

	// ErrSequentializeThreadsRequired indicates the user disabled the
	// determinism contract the analyzer depends on.
	ErrSequentializeThreadsRequired = &AnalyzeError{
		Kind:   ErrUserInput,
		Detail: "cannot analyze with sequentialize-threads disabled; determinism required",
	}

	// ErrConflictingReplayInputs indicates more than one replay driver was specified.
	ErrConflictingReplayInputs = &AnalyzeError{
		Kind:   ErrUserInput,
		Detail: "exactly one of seed, replay-preemptions-from, replay-schedule-from must be set",
	}

	// ErrUnsupportedCombination indicates an unimplemented option combination.
	ErrUnsupportedCombination = &AnalyzeError{
		Kind:   ErrUserInput,
		Detail: "unsupported option combination",
	}
)

// Workspace errors (spec taxonomy item 2).
var (
	// ErrWorkspaceCreate indicates the scratch workspace directory could not be created.
	ErrWorkspaceCreate = &AnalyzeError{
		Kind:   ErrWorkspace,
		Detail: "failed to create workspace directory",
	}

	// ErrArtifactWrite indicates an artifact file could not be written.
	ErrArtifactWrite = &AnalyzeError{
		Kind:   ErrWorkspace,
		Detail: "failed to write artifact",
	}

	// ErrArtifactRead indicates an artifact file could not be read.
	ErrArtifactRead = &AnalyzeError{
		Kind:   ErrWorkspace,
		Detail: "failed to read artifact",
	}
)

// Subprocess errors (spec taxonomy item 3).
var (
	// ErrLaunchFailed indicates the runtime subprocess could not be started.
	ErrLaunchFailed = &AnalyzeError{
		Kind:   ErrSubprocess,
		Detail: "failed to launch runtime subprocess",
	}

	// ErrSubprocessWait indicates a failure waiting for the runtime subprocess to exit.
	ErrSubprocessWait = &AnalyzeError{
		Kind:   ErrSubprocess,
		Detail: "failed waiting for runtime subprocess",
	}
)

// Invariant violations (spec taxonomy item 4 — always fatal, never user error).
var (
	// ErrTargetInvariantBroken indicates a "target" record stopped matching (I1).
	ErrTargetInvariantBroken = &AnalyzeError{
		Kind:   ErrInvariant,
		Detail: "target invariant broken: record tagged matching no longer matches on replay",
	}

	// ErrBaselineInvariantBroken indicates a "baseline" schedule started matching (I2).
	ErrBaselineInvariantBroken = &AnalyzeError{
		Kind:   ErrInvariant,
		Detail: "baseline invariant broken: record tagged non-matching now matches on replay",
	}

	// ErrNoFixedPoint indicates the self-check phase found the runtime is not a fixed point (I4).
	ErrNoFixedPoint = &AnalyzeError{
		Kind:   ErrInvariant,
		Detail: "no fixed point: replaying recorded preemptions did not reproduce the same normalized preemption record",
	}

	// ErrCorruptPreemptions indicates a preemption record failed validate().
	ErrCorruptPreemptions = &AnalyzeError{
		Kind:   ErrInvariant,
		Detail: "preemption record failed validation",
	}

	// ErrReportInvariantBroken indicates the final stacktrace rerun did not match (I1 at phase 6).
	ErrReportInvariantBroken = &AnalyzeError{
		Kind:   ErrInvariant,
		Detail: "internal error: final run did not match the criteria as expected",
	}
)

// Convergence failures (spec taxonomy item 6).
var (
	// ErrBisectionContradiction indicates the replay predicate gave inconsistent
	// answers for the same schedule across replays.
	ErrBisectionContradiction = &AnalyzeError{
		Kind:   ErrConvergence,
		Detail: "bisection predicate contradicted itself: determinism contract broken",
	}
)
