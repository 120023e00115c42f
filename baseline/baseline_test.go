package baseline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kornnell/hermit-analyze/criterion"
	"github.com/kornnell/hermit-analyze/preempt"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/workspace"
)

// writeKnockoutRuntime writes a fake runtime matching iff every thread id
// in requiredThreads appears in the replayed preemption file, per scenario
// 4: minimized {p3, p7} both required; removing p7 yields a truncation
// that no longer matches, which becomes the baseline after one knockout.
func writeKnockoutRuntime(t *testing.T, requiredThreads ...int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knockout-runtime.sh")
	var checks strings.Builder
	for _, th := range requiredThreads {
		fmt.Fprintf(&checks, `grep -q '"thread": %d' "$f" || exit 0
`, th)
	}
	script := `#!/bin/sh
f=""
out=""
for a in "$@"; do
  case "$a" in
    --replay-preemptions-from=*) f="${a#--replay-preemptions-from=}" ;;
    --record-preemptions-to=*) out="${a#--record-preemptions-to=}" ;;
  esac
done
if [ -n "$out" ]; then
  if [ -n "$f" ]; then cp "$f" "$out"; else echo '{"version":1,"entries":[]}' > "$out"; fi
fi
if [ -z "$f" ]; then exit 0; fi
` + checks.String() + `exit 139
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write knockout runtime: %v", err)
	}
	return path
}

func TestChoose_KnockoutFindsFirstNonMatchingTruncation(t *testing.T) {
	ws, err := workspace.New("hermit_analyze_baseline_test")
	if err != nil {
		t.Fatalf("workspace.New failed: %v", err)
	}
	defer os.RemoveAll(ws.Dir())

	r := &runner.Runner{
		Workspace: ws,
		Criterion: criterion.Criterion{ExitCode: criterion.ExactExitCode(139)},
		Binary:    writeKnockoutRuntime(t, 3, 7),
	}

	minimized := preempt.New()
	minimized.Entries = []preempt.Entry{
		{Thread: 3, OpIndex: 3, Kind: "preempt"},
		{Thread: 7, OpIndex: 7, Kind: "preempt"},
	}

	result, err := Choose(context.Background(), r, ws, runopts.Options{SequentializeThreads: true}, Inputs{Minimized: minimized})
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	if result.Record.Len() != 1 {
		t.Fatalf("expected baseline to retain exactly 1 entry, got %d: %+v", result.Record.Len(), result.Record.Entries)
	}
	if result.Record.Entries[0].Thread != 3 {
		t.Errorf("expected baseline to retain thread 3, got %+v", result.Record.Entries[0])
	}
}

func TestChoose_StripFallback(t *testing.T) {
	ws, err := workspace.New("hermit_analyze_baseline_test")
	if err != nil {
		t.Fatalf("workspace.New failed: %v", err)
	}
	defer os.RemoveAll(ws.Dir())

	r := &runner.Runner{
		Workspace: ws,
		Criterion: criterion.Criterion{ExitCode: criterion.ExactExitCode(139)},
		Binary:    writeKnockoutRuntime(t, 3),
	}

	target := preempt.New()
	target.Entries = []preempt.Entry{{Thread: 3, OpIndex: 3, Kind: "preempt"}}

	result, err := Choose(context.Background(), r, ws, runopts.Options{SequentializeThreads: true}, Inputs{Target: target})
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	if result.Record.Len() != 0 {
		t.Errorf("expected stripped baseline to have no entries, got %+v", result.Record.Entries)
	}
}
