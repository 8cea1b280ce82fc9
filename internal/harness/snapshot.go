package harness

import (
	"github.com/calderwm/gridflow/internal/record"
)

// Snapshot is the deterministic summary of a scenario's outcome. All fields
// derive from entity counts and jobscript resolution; workflow IDs and
// timestamps are deliberately excluded so snapshots compare byte-identical
// across runs.
type Snapshot struct {
	Scenario   string           `json:"scenario"`
	Workflow   WorkflowSummary  `json:"workflow"`
	Jobscripts []TaskJobscripts `json:"jobscripts"`
}

// WorkflowSummary describes the persisted workflow state.
type WorkflowSummary struct {
	Name       string        `json:"name"`
	Backend    string        `json:"backend"`
	Tasks      []TaskSummary `json:"tasks"`
	Parameters ParamSummary  `json:"parameters"`
}

// TaskSummary describes one task's elements and runs.
type TaskSummary struct {
	Index    int   `json:"index"`
	Elements int   `json:"elements"`
	Runs     int   `json:"runs"`
	Skipped  []int `json:"skipped,omitempty"`
}

// ParamSummary splits the parameter count by set status.
type ParamSummary struct {
	Set   int `json:"set"`
	Unset int `json:"unset"`
}

// TaskJobscripts holds the jobscripts resolved for one task.
type TaskJobscripts struct {
	Task       int                `json:"task"`
	Jobscripts []JobscriptSummary `json:"jobscripts"`
}

// JobscriptSummary is one resolved jobscript with its element allocation in
// sorted element order.
type JobscriptSummary struct {
	Index     int                 `json:"index"`
	Resources record.ResourceSpec `json:"resources"`
	Elements  []ElementActions    `json:"elements"`
	DependsOn []int               `json:"depends_on,omitempty"`
}

// ElementActions lists the actions a jobscript covers for one element.
type ElementActions struct {
	Element int   `json:"element"`
	Actions []int `json:"actions"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success: true if every assertion
	// held.
	Pass bool `json:"pass"`

	// Snapshot is the deterministic state summary, used for golden
	// comparison.
	Snapshot *Snapshot `json:"snapshot"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
