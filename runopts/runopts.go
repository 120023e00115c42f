// Package runopts models RunOptions: the opaque configuration handed to the
// deterministic runtime subprocess for a single launch.
package runopts

import (
	"fmt"
	"strings"

	cerrors "github.com/kornnell/hermit-analyze/errors"
)

// ReplayKind distinguishes the three mutually exclusive ways a run can be
// driven, per Design Note 1: a tagged variant makes "exactly one replay
// input" representable by construction instead of merely asserted at
// runtime.
type ReplayKind int

const (
	// ReplayChaos drives the run from a chaos seed.
	ReplayChaos ReplayKind = iota
	// ReplayPreemptions replays a recorded preemption file.
	ReplayPreemptions
	// ReplaySchedule replays a full recorded schedule.
	ReplaySchedule
)

// ReplayDriver is the tagged variant selecting exactly one replay input.
type ReplayDriver struct {
	Kind ReplayKind
	Seed uint64
	Path string
}

// Chaos builds a seed-driven replay driver.
func Chaos(seed uint64) ReplayDriver {
	return ReplayDriver{Kind: ReplayChaos, Seed: seed}
}

// Preemptions builds a replay driver that replays a recorded preemption
// file.
func Preemptions(path string) ReplayDriver {
	return ReplayDriver{Kind: ReplayPreemptions, Path: path}
}

// Schedule builds a replay driver that replays a full recorded schedule.
func Schedule(path string) ReplayDriver {
	return ReplayDriver{Kind: ReplaySchedule, Path: path}
}

func (d ReplayDriver) String() string {
	switch d.Kind {
	case ReplayChaos:
		return fmt.Sprintf("seed=%d", d.Seed)
	case ReplayPreemptions:
		return fmt.Sprintf("replay-preemptions-from=%s", d.Path)
	case ReplaySchedule:
		return fmt.Sprintf("replay-schedule-from=%s", d.Path)
	default:
		return "unknown replay driver"
	}
}

// StacktraceEvent requests a stack trace be captured at EventIndex, written
// to Path, when that event fires during replay.
type StacktraceEvent struct {
	EventIndex int
	Path       string
}

// Options is the configuration the Runner hands to one subprocess launch.
type Options struct {
	Replay ReplayDriver

	// SchedSeed additionally seeds the scheduler's chaos decisions,
	// independent of Replay.Seed which seeds the program's own
	// nondeterminism.
	SchedSeed *uint64

	RecordPreemptions   bool
	RecordPreemptionsTo string

	StacktraceEvents []StacktraceEvent

	Chaos                bool
	ImpreciseTimers      bool
	SequentializeThreads bool

	Bind []string
}

// Validate enforces the one invariant the analyzer cannot proceed without:
// sequentialize_threads must be true, or I3 (determinism) does not hold.
func (o *Options) Validate() error {
	if !o.SequentializeThreads {
		return cerrors.ErrSequentializeThreadsRequired
	}
	return nil
}

// Args serializes the options into the flag list the deterministic runtime
// expects, directing its own diagnostic logging to logPath.
func (o *Options) Args(logPath string) []string {
	args := []string{"run", "--log-file=" + logPath}

	if o.SequentializeThreads {
		args = append(args, "--sequentialize-threads")
	} else {
		args = append(args, "--no-sequentialize-threads")
	}

	switch o.Replay.Kind {
	case ReplayChaos:
		args = append(args, fmt.Sprintf("--seed=%d", o.Replay.Seed))
		if o.Chaos {
			args = append(args, "--chaos")
		}
		if o.SchedSeed != nil {
			args = append(args, fmt.Sprintf("--sched-seed=%d", *o.SchedSeed))
		}
	case ReplayPreemptions:
		args = append(args, "--replay-preemptions-from="+o.Replay.Path)
	case ReplaySchedule:
		args = append(args, "--replay-schedule-from="+o.Replay.Path)
	}

	if o.RecordPreemptions {
		args = append(args, "--record-preemptions")
	}
	if o.RecordPreemptionsTo != "" {
		args = append(args, "--record-preemptions-to="+o.RecordPreemptionsTo)
	}
	if o.ImpreciseTimers {
		args = append(args, "--imprecise-timers")
	}
	for _, se := range o.StacktraceEvents {
		args = append(args, fmt.Sprintf("--stacktrace-event=%d:%s", se.EventIndex, se.Path))
	}
	for _, b := range o.Bind {
		args = append(args, "--bind="+b)
	}

	return args
}

// ReproCommand renders a ready-to-paste shell command line reproducing this
// exact launch, the feature the original analyzer prints alongside every
// phase transition so a user can manually rerun any intermediate step.
func (o *Options) ReproCommand(binaryName string, programArgs []string) string {
	full := append([]string{binaryName}, o.Args("/dev/stderr")...)
	full = append(full, "--")
	full = append(full, programArgs...)
	return strings.Join(full, " ")
}
