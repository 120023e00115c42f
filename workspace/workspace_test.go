package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_CreatesUniqueDirectory(t *testing.T) {
	w1, err := New("hermit_analyze_test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer os.RemoveAll(w1.Dir())

	w2, err := New("hermit_analyze_test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer os.RemoveAll(w2.Dir())

	if w1.Dir() == w2.Dir() {
		t.Error("expected two workspaces to get distinct directories")
	}

	for _, w := range []*Workspace{w1, w2} {
		info, err := os.Stat(w.Dir())
		if err != nil {
			t.Fatalf("expected workspace directory to exist: %v", err)
		}
		if !info.IsDir() {
			t.Errorf("expected %s to be a directory", w.Dir())
		}
		if !strings.HasPrefix(filepath.Base(w.Dir()), "hermit_analyze_test-") {
			t.Errorf("expected directory name to carry the prefix, got %s", w.Dir())
		}
	}
}

func TestPath_DerivesArtifactNames(t *testing.T) {
	w, err := New("hermit_analyze_test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer os.RemoveAll(w.Dir())

	got := w.Path("phase1_target", ExtPreempts)
	want := filepath.Join(w.Dir(), "phase1_target.preempts")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	if w.Path("a", ExtLog) == w.Path("b", ExtLog) {
		t.Error("different run names should derive different paths")
	}
}

func TestNamed(t *testing.T) {
	w, err := New("hermit_analyze_test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer os.RemoveAll(w.Dir())

	got := w.Named("final.preempts")
	want := filepath.Join(w.Dir(), "final.preempts")
	if got != want {
		t.Errorf("Named() = %q, want %q", got, want)
	}
}
