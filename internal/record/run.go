package record

import (
	"time"
)

// TimestampFormat is the layout used for persisted run timestamps. Times are
// stored in UTC; decode returns them in UTC.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// Snapshot is a directory-contents snapshot taken before or after a run.
type Snapshot map[string]any

// Run is one concrete execution attempt of one schema action within one
// element iteration (an EAR in scheduler terminology).
//
// A run is created once and then mutated only by timestamped lifecycle
// updates: submission assignment, start, end, skip. Each update yields a new
// copy via Update. A data-index entry, once assigned to a parameter ID, is
// never repointed; new data gets a new parameter ID.
type Run struct {
	ID            int            `json:"id"`
	IsPending     bool           `json:"-"`
	IterationID   int            `json:"iteration_id"`
	ActionIdx     int            `json:"action_idx"`
	CommandsIdx   []int          `json:"commands_idx"`
	DataIdx       DataIndex      `json:"data_idx"`
	SubmissionIdx *int           `json:"submission_idx,omitempty"`
	Skip          bool           `json:"skip,omitempty"`
	Success       *bool          `json:"success,omitempty"`
	StartTime     *time.Time     `json:"start_time,omitempty"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	SnapshotStart Snapshot       `json:"snapshot_start,omitempty"`
	SnapshotEnd   Snapshot       `json:"snapshot_end,omitempty"`
	ExitCode      *int           `json:"exit_code,omitempty"`
	RunHostname   string         `json:"run_hostname,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RunUpdate carries the optional fields of one lifecycle update. Nil fields
// leave the corresponding run field unchanged.
type RunUpdate struct {
	SubmissionIdx *int
	Skip          *bool
	Success       *bool
	StartTime     *time.Time
	EndTime       *time.Time
	SnapshotStart Snapshot
	SnapshotEnd   Snapshot
	ExitCode      *int
	RunHostname   string
}

// IsZero reports whether the update would change nothing.
func (u RunUpdate) IsZero() bool {
	return u.SubmissionIdx == nil &&
		u.Skip == nil &&
		u.Success == nil &&
		u.StartTime == nil &&
		u.EndTime == nil &&
		u.SnapshotStart == nil &&
		u.SnapshotEnd == nil &&
		u.ExitCode == nil &&
		u.RunHostname == ""
}

// Update returns a copy with the non-nil fields of u applied.
func (r Run) Update(u RunUpdate) Run {
	if u.SubmissionIdx != nil {
		r.SubmissionIdx = u.SubmissionIdx
	}
	if u.Skip != nil {
		r.Skip = *u.Skip
	}
	if u.Success != nil {
		r.Success = u.Success
	}
	if u.StartTime != nil {
		r.StartTime = u.StartTime
	}
	if u.EndTime != nil {
		r.EndTime = u.EndTime
	}
	if u.SnapshotStart != nil {
		r.SnapshotStart = u.SnapshotStart
	}
	if u.SnapshotEnd != nil {
		r.SnapshotEnd = u.SnapshotEnd
	}
	if u.ExitCode != nil {
		r.ExitCode = u.ExitCode
	}
	if u.RunHostname != "" {
		r.RunHostname = u.RunHostname
	}
	return r
}

// Submitted reports whether the run has been assigned to a submission.
func (r Run) Submitted() bool {
	return r.SubmissionIdx != nil
}

// EncodeTime formats a timestamp for the persistent store (UTC).
func EncodeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(TimestampFormat)
}

// DecodeTime parses a persisted timestamp; empty input yields nil.
func DecodeTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(TimestampFormat, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
