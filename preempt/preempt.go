// Package preempt implements PreemptionRecord: the ordered set of per-thread
// preemption directives that is the coarsest replay input the pipeline
// deals with, and the primary object the minimizer and baseline chooser
// mutate.
package preempt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	cerrors "github.com/kornnell/hermit-analyze/errors"
	"github.com/kornnell/hermit-analyze/schedule"
)

// Entry is one forced context switch: the scheduler preempted Thread at
// OpIndex. Kind distinguishes an actual preemption directive from other
// entry shapes the wire format can carry (currently only "preempt" is
// produced by this package, but the field is preserved across
// load/normalize so foreign records round-trip cleanly).
type Entry struct {
	Thread   int    `json:"thread"`
	OpIndex  int    `json:"op_index"`
	Kind     string `json:"kind"`
}

const preemptKind = "preempt"

// Record is an ordered sequence of preemption directives, self-describing
// via Version so future wire formats can be detected.
type Record struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

const recordVersion = 1

// New builds an empty record at the current wire version.
func New() *Record {
	return &Record{Version: recordVersion}
}

// Load reads a preemption record from path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "load preemption record", path)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "parse preemption record", path)
	}
	return &r, nil
}

// Save writes the record to path atomically (temp file + rename), the same
// pattern the teacher's spec.ContainerState.Save uses to avoid a torn write
// being observed by a concurrent reader.
func (r *Record) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrInternal, "marshal preemption record")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".preempts-*.tmp")
	if err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "create preempts temp file", path)
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
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "write preemption record", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "sync preemption record", path)
	}
	if err := tmp.Close(); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "close preemption record", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrWorkspace, "rename preemption record", path)
	}
	success = true
	return nil
}

// Equal reports structural equality: same version, same entries in the same
// order.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Version != other.Version || len(r.Entries) != len(other.Entries) {
		return false
	}
	for i := range r.Entries {
		if r.Entries[i] != other.Entries[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can mutate the result without
// aliasing the receiver's backing array.
func (r *Record) Clone() *Record {
	out := &Record{Version: r.Version, Entries: make([]Entry, len(r.Entries))}
	copy(out.Entries, r.Entries)
	return out
}

// Normalize returns the canonical form of the record: entries sorted by
// (Thread, OpIndex) and exact duplicates collapsed. Idempotent (P6).
func (r *Record) Normalize() *Record {
	out := r.Clone()
	sort.Slice(out.Entries, func(i, j int) bool {
		if out.Entries[i].Thread != out.Entries[j].Thread {
			return out.Entries[i].Thread < out.Entries[j].Thread
		}
		return out.Entries[i].OpIndex < out.Entries[j].OpIndex
	})
	deduped := out.Entries[:0]
	for i, e := range out.Entries {
		if i == 0 || e != out.Entries[i-1] {
			deduped = append(deduped, e)
		}
	}
	out.Entries = deduped
	return out
}

// PreemptionsOnly strips any entry whose Kind is not "preempt". Records
// produced entirely by this package are already preemptions-only; this
// exists to sanitize records loaded from elsewhere.
func (r *Record) PreemptionsOnly() *Record {
	out := &Record{Version: r.Version}
	for _, e := range r.Entries {
		if e.Kind == preemptKind {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// StripContents retains the record's structure (its version) but empties
// the preemption list, per spec.md §4.6's fallback baseline branch.
func (r *Record) StripContents() *Record {
	return &Record{Version: r.Version}
}

// WithLatestPreemptRemoved drops the last preemption in the record. Per
// P7, the result has strictly fewer preemptions whenever r is non-empty.
func (r *Record) WithLatestPreemptRemoved() *Record {
	out := r.Clone()
	if len(out.Entries) > 0 {
		out.Entries = out.Entries[:len(out.Entries)-1]
	}
	return out
}

// Validate checks internal consistency: non-negative indices, and a
// strictly increasing OpIndex within each thread (the scheduler cannot
// preempt the same thread at the same point twice).
func (r *Record) Validate() error {
	if r.Version != recordVersion {
		return cerrors.WrapWithDetail(nil, cerrors.ErrInvariant, "validate preemption record", "unsupported version")
	}
	last := map[int]int{}
	seenAny := map[int]bool{}
	for _, e := range r.Entries {
		if e.Thread < 0 || e.OpIndex < 0 {
			return cerrors.ErrCorruptPreemptions
		}
		if seenAny[e.Thread] && e.OpIndex <= last[e.Thread] {
			return cerrors.ErrCorruptPreemptions
		}
		last[e.Thread] = e.OpIndex
		seenAny[e.Thread] = true
	}
	return nil
}

// FromSchedEvents derives a preemption record from a full schedule: a
// preemption is recorded at every position where the running thread
// differs from the previous event's thread.
func FromSchedEvents(s schedule.Schedule) *Record {
	out := New()
	var prevThread int
	havePrev := false
	for _, ev := range s {
		if havePrev && ev.Thread != prevThread {
			out.Entries = append(out.Entries, Entry{Thread: ev.Thread, OpIndex: ev.OpIndex, Kind: preemptKind})
		}
		prevThread = ev.Thread
		havePrev = true
	}
	return out
}

// ToSchedule reconstructs the schedule implied by this record's
// preemptions alone: one event per directive, in record order. It is a
// best-effort reconstruction, useful when a schedule must be synthesized
// from a record without an accompanying full trace.
func (r *Record) ToSchedule() schedule.Schedule {
	out := make(schedule.Schedule, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, schedule.Event{Thread: e.Thread, OpIndex: e.OpIndex, Kind: e.Kind})
	}
	return out
}

// Len reports the number of preemption entries carried by the record.
func (r *Record) Len() int {
	return len(r.Entries)
}
