// Package workspace allocates the scratch directory an analysis run lives
// in and derives artifact paths within it. Per spec.md §4.3 and §5, a
// workspace is never cleaned up: every artifact it holds is a reproducer.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	cerrors "github.com/kornnell/hermit-analyze/errors"
)

// Artifact extensions, named per spec.md §3/§6.
const (
	ExtLog    = "log"
	ExtPreempts = "preempts"
	ExtEvents = "events"
	ExtStdout = "stdout"
	ExtStderr = "stderr"
	ExtStack1 = "stack1"
	ExtStack2 = "stack2"
)

// Workspace owns one analysis invocation's scratch directory.
type Workspace struct {
	dir string
}

// New allocates a uniquely-named directory under os.TempDir, prefixed with
// prefix. The teacher derives a container's state directory from a
// caller-supplied container ID; an analysis run has no equivalent natural
// key, so a UUID fills that role instead.
func New(prefix string) (*Workspace, error) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s", prefix, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "create workspace", dir)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace's root directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path derives an artifact path from a run-name stem and an extension, per
// spec.md §6's `<run_name>.<ext>` naming rule.
func (w *Workspace) Path(runName, ext string) string {
	return filepath.Join(w.dir, runName+"."+ext)
}

// Named derives a path for an artifact that is not run-name scoped (e.g.
// "final.preempts"), still rooted in this workspace.
func (w *Workspace) Named(name string) string {
	return filepath.Join(w.dir, name)
}
