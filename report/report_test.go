package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kornnell/hermit-analyze/bisect"
	"github.com/kornnell/hermit-analyze/criterion"
	"github.com/kornnell/hermit-analyze/diagnostic"
	"github.com/kornnell/hermit-analyze/runner"
	"github.com/kornnell/hermit-analyze/runopts"
	"github.com/kornnell/hermit-analyze/schedule"
	"github.com/kornnell/hermit-analyze/workspace"
)

// writeStacktraceRuntime writes a fake runtime that, for every
// --stacktrace-event=index:path flag, writes a marker line naming that event
// index ("stack at event <index>") to path, then exits with the configured
// code.
func writeStacktraceRuntime(t *testing.T, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stacktrace-runtime.sh")
	script := `#!/bin/sh
for a in "$@"; do
  case "$a" in
    --stacktrace-event=*)
      rest="${a#--stacktrace-event=}"
      idx="${rest%%:*}"
      out="${rest#*:}"
      echo "stack at event $idx" > "$out"
      ;;
  esac
done
exit ` + itoa(exitCode) + `
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stacktrace runtime: %v", err)
	}
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	if neg {
		digits = "-" + digits
	}
	return digits
}

func TestGenerate_Success(t *testing.T) {
	ws, err := workspace.New("hermit_analyze_report_test")
	if err != nil {
		t.Fatalf("workspace.New failed: %v", err)
	}
	defer os.RemoveAll(ws.Dir())

	r := &runner.Runner{
		Workspace: ws,
		Criterion: criterion.Criterion{ExitCode: criterion.ExactExitCode(139)},
		Binary:    writeStacktraceRuntime(t, 139),
	}

	crit := &bisect.CriticalSchedule{
		FailingSchedule: schedule.Schedule{
			{Thread: 0, OpIndex: 0, Kind: "op"},
			{Thread: 1, OpIndex: 1, Kind: "op"},
		},
		PassingSchedule: schedule.Schedule{
			{Thread: 0, OpIndex: 0, Kind: "op"},
			{Thread: 0, OpIndex: 1, Kind: "op"},
		},
		CriticalEventIndex: 1,
	}

	printer := diagnostic.NewPrinter(os.Stderr, false)
	rep, err := Generate(context.Background(), r, ws, runopts.Options{SequentializeThreads: true}, crit, printer)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.Contains(rep.Header, "0") || !strings.Contains(rep.Header, "1") {
		t.Errorf("expected header to mention the critical event pair, got %q", rep.Header)
	}
	if !strings.Contains(rep.Stack1, "event 0") {
		t.Errorf("expected stack1 to come from the event-0 capture, got %q", rep.Stack1)
	}
	if !strings.Contains(rep.Stack2, "event 1") {
		t.Errorf("expected stack2 to come from the event-1 capture, got %q", rep.Stack2)
	}
}

func TestGenerate_RejectsBrokenInvariant(t *testing.T) {
	ws, err := workspace.New("hermit_analyze_report_test")
	if err != nil {
		t.Fatalf("workspace.New failed: %v", err)
	}
	defer os.RemoveAll(ws.Dir())

	r := &runner.Runner{
		Workspace: ws,
		Criterion: criterion.Criterion{ExitCode: criterion.ExactExitCode(139)},
		Binary:    writeStacktraceRuntime(t, 0), // never matches
	}

	crit := &bisect.CriticalSchedule{
		FailingSchedule:     schedule.Schedule{{Thread: 0, OpIndex: 0, Kind: "op"}},
		PassingSchedule:     schedule.Schedule{{Thread: 1, OpIndex: 0, Kind: "op"}},
		CriticalEventIndex: 1,
	}

	printer := diagnostic.NewPrinter(os.Stderr, false)
	if _, err := Generate(context.Background(), r, ws, runopts.Options{SequentializeThreads: true}, crit, printer); err == nil {
		t.Error("expected Generate to fail when the final rerun does not match")
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	rep := &Report{Header: "h", Stack1: "s1", Stack2: "s2"}

	if err := WriteFile(rep, path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back report file: %v", err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to unmarshal report file: %v", err)
	}
	if got != *rep {
		t.Errorf("round-tripped report = %+v, want %+v", got, *rep)
	}
}
