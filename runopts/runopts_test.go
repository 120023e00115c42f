package runopts

import (
	"strings"
	"testing"
)

func TestValidate_RequiresSequentializeThreads(t *testing.T) {
	o := &Options{SequentializeThreads: false}
	if err := o.Validate(); err == nil {
		t.Error("expected Validate to reject SequentializeThreads=false")
	}

	o.SequentializeThreads = true
	if err := o.Validate(); err != nil {
		t.Errorf("expected Validate to accept SequentializeThreads=true, got %v", err)
	}
}

func TestArgs_ChaosDriver(t *testing.T) {
	sched := uint64(42)
	o := &Options{
		Replay:               Chaos(7),
		SchedSeed:            &sched,
		Chaos:                true,
		RecordPreemptions:    true,
		RecordPreemptionsTo:  "/tmp/out.preempts",
		SequentializeThreads: true,
	}

	args := o.Args("/tmp/run.log")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--log-file=/tmp/run.log",
		"--sequentialize-threads",
		"--seed=7",
		"--chaos",
		"--sched-seed=42",
		"--record-preemptions",
		"--record-preemptions-to=/tmp/out.preempts",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected args to contain %q, got %q", want, joined)
		}
	}
}

func TestArgs_PreemptionsDriver(t *testing.T) {
	o := &Options{Replay: Preemptions("/tmp/in.preempts"), SequentializeThreads: true}
	args := o.Args("/tmp/run.log")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--replay-preemptions-from=/tmp/in.preempts") {
		t.Errorf("expected preemptions replay flag, got %q", joined)
	}
	if strings.Contains(joined, "--seed=") {
		t.Errorf("did not expect a seed flag for preemptions replay, got %q", joined)
	}
}

func TestArgs_ScheduleDriver_WithStacktraceEvents(t *testing.T) {
	o := &Options{
		Replay: Schedule("/tmp/in.events"),
		StacktraceEvents: []StacktraceEvent{
			{EventIndex: 41, Path: "/tmp/a.stack1"},
			{EventIndex: 42, Path: "/tmp/a.stack2"},
		},
		SequentializeThreads: true,
	}
	args := o.Args("/tmp/run.log")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--replay-schedule-from=/tmp/in.events") {
		t.Errorf("expected schedule replay flag, got %q", joined)
	}
	if !strings.Contains(joined, "--stacktrace-event=41:/tmp/a.stack1") {
		t.Errorf("expected first stacktrace event flag, got %q", joined)
	}
	if !strings.Contains(joined, "--stacktrace-event=42:/tmp/a.stack2") {
		t.Errorf("expected second stacktrace event flag, got %q", joined)
	}
}

func TestReproCommand(t *testing.T) {
	o := &Options{Replay: Chaos(7), SequentializeThreads: true, Bind: []string{"/tmp/ws"}}
	cmd := o.ReproCommand("hermit", []string{"myprog", "--flag"})

	if !strings.HasPrefix(cmd, "hermit run") {
		t.Errorf("expected command to start with binary name, got %q", cmd)
	}
	if !strings.Contains(cmd, "-- myprog --flag") {
		t.Errorf("expected trailing program args, got %q", cmd)
	}
	if !strings.Contains(cmd, "--bind=/tmp/ws") {
		t.Errorf("expected bind flag, got %q", cmd)
	}
}

func TestReplayDriver_String(t *testing.T) {
	tests := []struct {
		d    ReplayDriver
		want string
	}{
		{Chaos(7), "seed=7"},
		{Preemptions("/p"), "replay-preemptions-from=/p"},
		{Schedule("/s"), "replay-schedule-from=/s"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
