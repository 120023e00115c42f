// Package schedule defines SchedEvent and Schedule, the finest-grained
// replay input the pipeline deals with, and their on-disk JSON trace form.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	cerrors "github.com/kornnell/hermit-analyze/errors"
)

// Event is one scheduling decision: which thread ran, at what operation
// index within that thread, and what kind of operation it was. The kind is
// opaque to the bisector; it exists only for the report and for humans
// reading a dumped trace.
type Event struct {
	Thread   int    `json:"thread"`
	OpIndex  int    `json:"op_index"`
	Kind     string `json:"kind,omitempty"`
}

// Schedule is a finite ordered sequence of scheduling decisions.
type Schedule []Event

// Equal reports whether two schedules contain the same events in the same
// order.
func Equal(a, b Schedule) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// trace is the on-disk envelope for a schedule, versioned so future
// readers can distinguish trace formats.
type trace struct {
	Version int     `json:"version"`
	Events  []Event `json:"events"`
}

const traceVersion = 1

// WriteTrace serializes a schedule to path as JSON.
func WriteTrace(path string, s Schedule) error {
	t := trace{Version: traceVersion, Events: []Event(s)}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrInternal, "marshal schedule trace")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".trace-*.tmp")
	if err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "create trace temp file", path)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "write trace", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "sync trace", path)
	}
	if err := tmp.Close(); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "close trace", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "rename trace", path)
	}
	success = true
	return nil
}

// ReadTrace loads a schedule previously written by WriteTrace.
func ReadTrace(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "read trace", path)
	}
	var t trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "parse trace", path)
	}
	if t.Version != traceVersion {
		return nil, cerrors.New(cerrors.ErrWorkspace, "read trace", fmt.Sprintf("unsupported trace version %d at %s", t.Version, path))
	}
	return Schedule(t.Events), nil
}
