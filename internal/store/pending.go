package store

import (
	"github.com/calderwm/gridflow/internal/record"
)

// pendingChanges buffers every kind of not-yet-durable mutation, one bucket
// per mutation kind, addressed by the IDs the durable store will eventually
// use. Buckets are cleared individually as their commit step succeeds.
type pendingChanges struct {
	addTasks              map[int]record.Task
	addLoops              map[int]record.Loop
	addSubmissions        map[int]record.Submission
	addElements           map[int]record.Element
	addIterations         map[int]record.Iteration
	addRuns               map[int]record.Run
	addParameters         map[int]record.Parameter
	addFiles              []record.FileRef
	addTemplateComponents record.TemplateComponents
	addElementSets        map[int][]map[string]any

	// ID-list appends addressed to existing (or pending) parents.
	addElemIDs         map[int][]int            // task ID → element IDs
	addIterIDs         map[int][]int            // element ID → iteration IDs
	addIterRunIDs      map[int]map[int][]int    // iteration ID → action idx → run IDs
	addSubmissionParts map[int]map[string][]int // submission idx → timestamp → jobscript indices

	setRunsInitialised  []int // iteration IDs
	setRunSubmissionIdx map[int]int
	setRunSkips         []int
	setRunStarts        map[int]RunStart
	setRunEnds          map[int]RunEnd

	setJobscriptMeta map[int]map[int]record.JobscriptMeta // submission idx → jobscript idx

	setParameters map[int]SetParam

	updateParamSources map[int]record.ParamSource
	updateLoopIdx      map[int]map[string]int // iteration ID → loop name → position
	updateLoopNumIters map[int][]record.LoopIterEntry
	updateLoopParents  map[int][]string
}

func newPendingChanges() *pendingChanges {
	p := &pendingChanges{}
	p.reset()
	return p
}

// hasPending returns true if any bucket holds outstanding items.
func (p *pendingChanges) hasPending() bool {
	return len(p.addTasks) > 0 ||
		len(p.addLoops) > 0 ||
		len(p.addSubmissions) > 0 ||
		len(p.addElements) > 0 ||
		len(p.addIterations) > 0 ||
		len(p.addRuns) > 0 ||
		len(p.addParameters) > 0 ||
		len(p.addFiles) > 0 ||
		len(p.addTemplateComponents) > 0 ||
		len(p.addElementSets) > 0 ||
		len(p.addElemIDs) > 0 ||
		len(p.addIterIDs) > 0 ||
		len(p.addIterRunIDs) > 0 ||
		len(p.addSubmissionParts) > 0 ||
		len(p.setRunsInitialised) > 0 ||
		len(p.setRunSubmissionIdx) > 0 ||
		len(p.setRunSkips) > 0 ||
		len(p.setRunStarts) > 0 ||
		len(p.setRunEnds) > 0 ||
		len(p.setJobscriptMeta) > 0 ||
		len(p.setParameters) > 0 ||
		len(p.updateParamSources) > 0 ||
		len(p.updateLoopIdx) > 0 ||
		len(p.updateLoopNumIters) > 0 ||
		len(p.updateLoopParents) > 0
}

// wherePending names the non-empty buckets, for logging.
func (p *pendingChanges) wherePending() []string {
	var out []string
	add := func(name string, n int) {
		if n > 0 {
			out = append(out, name)
		}
	}
	add("add_tasks", len(p.addTasks))
	add("add_loops", len(p.addLoops))
	add("add_submissions", len(p.addSubmissions))
	add("add_elements", len(p.addElements))
	add("add_iterations", len(p.addIterations))
	add("add_runs", len(p.addRuns))
	add("add_parameters", len(p.addParameters))
	add("add_files", len(p.addFiles))
	add("add_template_components", len(p.addTemplateComponents))
	add("add_element_sets", len(p.addElementSets))
	add("add_elem_ids", len(p.addElemIDs))
	add("add_iter_ids", len(p.addIterIDs))
	add("add_iter_run_ids", len(p.addIterRunIDs))
	add("add_submission_parts", len(p.addSubmissionParts))
	add("set_runs_initialised", len(p.setRunsInitialised))
	add("set_run_submission_idx", len(p.setRunSubmissionIdx))
	add("set_run_skips", len(p.setRunSkips))
	add("set_run_starts", len(p.setRunStarts))
	add("set_run_ends", len(p.setRunEnds))
	add("set_jobscript_meta", len(p.setJobscriptMeta))
	add("set_parameters", len(p.setParameters))
	add("update_param_sources", len(p.updateParamSources))
	add("update_loop_idx", len(p.updateLoopIdx))
	add("update_loop_num_iters", len(p.updateLoopNumIters))
	add("update_loop_parents", len(p.updateLoopParents))
	return out
}

// reset clears every bucket and prepares to accept new pending data.
func (p *pendingChanges) reset() {
	p.addTasks = map[int]record.Task{}
	p.addLoops = map[int]record.Loop{}
	p.addSubmissions = map[int]record.Submission{}
	p.addElements = map[int]record.Element{}
	p.addIterations = map[int]record.Iteration{}
	p.addRuns = map[int]record.Run{}
	p.addParameters = map[int]record.Parameter{}
	p.addFiles = nil
	p.addTemplateComponents = record.TemplateComponents{}
	p.addElementSets = map[int][]map[string]any{}
	p.addElemIDs = map[int][]int{}
	p.addIterIDs = map[int][]int{}
	p.addIterRunIDs = map[int]map[int][]int{}
	p.addSubmissionParts = map[int]map[string][]int{}
	p.setRunsInitialised = nil
	p.setRunSubmissionIdx = map[int]int{}
	p.setRunSkips = nil
	p.setRunStarts = map[int]RunStart{}
	p.setRunEnds = map[int]RunEnd{}
	p.setJobscriptMeta = map[int]map[int]record.JobscriptMeta{}
	p.setParameters = map[int]SetParam{}
	p.updateParamSources = map[int]record.ParamSource{}
	p.updateLoopIdx = map[int]map[string]int{}
	p.updateLoopNumIters = map[int][]record.LoopIterEntry{}
	p.updateLoopParents = map[int][]string{}
}
