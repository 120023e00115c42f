package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kornnell/hermit-analyze/criterion"
	"github.com/kornnell/hermit-analyze/diagnostic"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/workspace"
)

// writeFakeRuntime mirrors runner_test.go's fixture: a shell script standing
// in for the deterministic runtime, matching when the sched-seed flag value
// is even (an arbitrary, deterministic stand-in for "found the bug").
func writeFakeRuntime(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-runtime.sh")
	script := `#!/bin/sh
seed=0
for a in "$@"; do
  case "$a" in
    --sched-seed=*) seed="${a#--sched-seed=}" ;;
  esac
done
if [ $((seed % 2)) -eq 0 ]; then
  exit 139
fi
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake runtime: %v", err)
	}
	return path
}

func TestRun_FindsMatchEventually(t *testing.T) {
	ws, err := workspace.New("hermit_analyze_search_test")
	if err != nil {
		t.Fatalf("workspace.New failed: %v", err)
	}
	defer os.RemoveAll(ws.Dir())

	r := &runner.Runner{
		Workspace: ws,
		Criterion: criterion.Criterion{ExitCode: criterion.ExactExitCode(139)},
		Binary:    writeFakeRuntime(t),
	}

	seed := uint64(1)
	printer := diagnostic.NewPrinter(os.Stderr, false)

	result, err := Run(context.Background(), r, ws, runopts.Options{SequentializeThreads: true}, &seed, false, printer)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.SchedSeed%2 != 0 {
		t.Errorf("expected an even sched-seed to be found, got %d", result.SchedSeed)
	}
	if _, err := os.Stat(result.PreemptsPath); err != nil {
		t.Errorf("expected preempts artifact to exist at %s: %v", result.PreemptsPath, err)
	}
}

func TestRun_RespectsContextCancellation(t *testing.T) {
	ws, err := workspace.New("hermit_analyze_search_test")
	if err != nil {
		t.Fatalf("workspace.New failed: %v", err)
	}
	defer os.RemoveAll(ws.Dir())

	r := &runner.Runner{
		Workspace: ws,
		Criterion: criterion.Criterion{ExitCode: criterion.ExactExitCode(255)}, // never matches
		Binary:    writeFakeRuntime(t),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seed := uint64(1)
	printer := diagnostic.NewPrinter(os.Stderr, false)
	if _, err := Run(ctx, r, ws, runopts.Options{SequentializeThreads: true}, &seed, false, printer); err == nil {
		t.Error("expected Run to return an error on an already-cancelled context")
	}
}
