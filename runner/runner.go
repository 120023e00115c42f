// Package runner implements the Runner: assembling and launching one
// subprocess execution of the traced program under the deterministic
// runtime, per spec.md §4.1.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/kornnell/hermit-analyze/criterion"
	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/logging"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/workspace"
)

// Result captures everything a single launch observed.
type Result struct {
	Matches  bool
	LogPath  string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner assembles and launches one subprocess execution of the traced
// program under the deterministic runtime, and decides (via Criterion)
// whether the captured output matches.
type Runner struct {
	Workspace   *workspace.Workspace
	Criterion   criterion.Criterion
	Binary      string
	ProgramArgs []string
}

// Launch implements the contract of spec.md §4.1:
//  1. derive artifact paths from runName,
//  2. open a log file for the runtime's own diagnostics,
//  3. invoke the runtime as a subprocess,
//  4. persist the captured stdout/stderr,
//  5. return whether the captured output matches the criterion.
func (r *Runner) Launch(ctx context.Context, runName string, opts *runopts.Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logPath := r.Workspace.Path(runName, workspace.ExtLog)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "create log file", logPath)
	}
	defer logFile.Close()
	_ = logFile // the runtime writes its own diagnostics there via --log-file

	args := opts.Args(logPath)
	args = append(args, "--")
	args = append(args, r.ProgramArgs...)

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runLog := logging.WithPath(logging.Default(), logPath)
	runLog.Debug("launching runtime subprocess", "run", runName, "binary", r.Binary)

	if err := cmd.Start(); err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrSubprocess, "launch "+runName, r.Binary)
	}
	runLog = logging.WithPID(runLog, cmd.Process.Pid)
	runLog.Debug("runtime subprocess started", "run", runName)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			runLog.Debug("context cancelled, killing subprocess group", "run", runName)
			_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		}
		<-waitDone
		return nil, cerrors.WrapWithDetail(ctx.Err(), cerrors.ErrSubprocess, "launch "+runName, r.Binary)
	case waitErr = <-waitDone:
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, cerrors.WrapWithDetail(waitErr, cerrors.ErrSubprocess, "wait "+runName, r.Binary)
		}
	}
	runLog.Debug("runtime subprocess exited", "run", runName, "exit_code", exitCode)

	stdoutPath := r.Workspace.Path(runName, workspace.ExtStdout)
	stderrPath := r.Workspace.Path(runName, workspace.ExtStderr)
	if err := os.WriteFile(stdoutPath, stdout.Bytes(), 0o644); err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "persist stdout", stdoutPath)
	}
	if err := os.WriteFile(stderrPath, stderr.Bytes(), 0o644); err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "persist stderr", stderrPath)
	}

	out := criterion.Output{ExitCode: exitCode, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	matches := r.Criterion.Matches(out)

	return &Result{
		Matches:  matches,
		LogPath:  logPath,
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}
