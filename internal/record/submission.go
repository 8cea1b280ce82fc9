package record

import (
	"maps"
	"slices"
)

// Jobscript is a batch of runs sharing one resource signature, destined for
// one scheduler submission unit. It is computed fresh per scheduling pass and
// never mutated once emitted.
//
// Elements maps element indices to the ordered schema-action indices covered
// for that element; a single jobscript can carry a multi-action pipeline for
// an element when the resource signature is constant over the contiguous
// action range.
type Jobscript struct {
	Index       int           `json:"index"`
	ResourceIdx int           `json:"resource_idx"`
	Signature   string        `json:"signature"`
	Resources   ResourceSpec  `json:"resources"`
	Elements    map[int][]int `json:"elements"`
	DependsOn   []int         `json:"depends_on,omitempty"`
	Metadata    JobscriptMeta `json:"metadata,omitempty"`
}

// JobscriptMeta is the mutable scheduler-side metadata attached to a
// jobscript after submission: what was submitted, where, and the scheduler's
// reference ID. Fields merge over existing metadata, they never clear it.
type JobscriptMeta map[string]any

// Submission is a snapshot of jobscripts approved for execution. The
// submission itself is created once; only the submission-parts log grows.
//
// SubmissionParts is a time-ordered log keyed by UTC timestamp string, each
// entry listing the jobscript indices actually handed to a scheduler in that
// batch. The log is what makes partial or retried submission idempotent.
type Submission struct {
	Index           int              `json:"index"`
	IsPending       bool             `json:"-"`
	Jobscripts      []Jobscript      `json:"jobscripts"`
	SubmissionParts map[string][]int `json:"submission_parts"`
}

// AppendSubmissionParts returns a copy with the given parts merged into the
// submission-parts log.
func (s Submission) AppendSubmissionParts(parts map[string][]int) Submission {
	merged := make(map[string][]int, len(s.SubmissionParts)+len(parts))
	for k, v := range s.SubmissionParts {
		merged[k] = slices.Clone(v)
	}
	for k, v := range parts {
		merged[k] = slices.Clone(v)
	}
	s.SubmissionParts = merged
	return s
}

// UpdateJobscriptMeta returns a copy with meta merged into the metadata of
// the jobscript at jsIdx.
func (s Submission) UpdateJobscriptMeta(jsIdx int, meta JobscriptMeta) Submission {
	jss := slices.Clone(s.Jobscripts)
	js := jss[jsIdx]
	merged := make(JobscriptMeta, len(js.Metadata)+len(meta))
	maps.Copy(merged, js.Metadata)
	maps.Copy(merged, meta)
	js.Metadata = merged
	jss[jsIdx] = js
	s.Jobscripts = jss
	return s
}
