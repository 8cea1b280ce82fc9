// Package workflow drives a workflow template through the store: staging
// tasks, elements, iterations, and runs from the template's expansion, and
// turning pending runs into submissions.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calderwm/gridflow/internal/jobscript"
	"github.com/calderwm/gridflow/internal/record"
	"github.com/calderwm/gridflow/internal/store"
	"github.com/calderwm/gridflow/internal/template"
)

// Build stages the template's tasks, elements, iterations, and runs on an
// open store. Input parameters are staged set with a local-input source;
// output parameters are staged unset, their source pointing at the run that
// will produce them. Nothing is persisted until the caller saves.
//
// The staging order is fixed by the template, so entity IDs are
// deterministic for a given template.
func Build(ctx context.Context, st *store.Store, tpl *template.Template, doc map[string]any) error {
	taskDocs, _ := doc["tasks"].([]any)
	for taskIdx, task := range tpl.Tasks {
		var taskDoc map[string]any
		if taskIdx < len(taskDocs) {
			taskDoc, _ = taskDocs[taskIdx].(map[string]any)
		}
		taskID, err := st.AddTask(ctx, taskIdx, taskDoc)
		if err != nil {
			return err
		}
		st.AddElementSet(taskID, taskDoc)

		specs, err := template.Expand(task)
		if err != nil {
			return err
		}
		numActions := tpl.NumActions(taskIdx)

		for _, es := range specs {
			if err := buildElement(ctx, st, taskID, numActions, es); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildElement(ctx context.Context, st *store.Store, taskID, numActions int, es template.ElementSpec) error {
	dataIdx := record.DataIndex{}
	var schemaParams []string

	names := make([]string, 0, len(es.Inputs))
	for name := range es.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := paramPath(name)
		pid, err := st.AddSetParameter(ctx, es.Inputs[name], record.ParamSource{
			Type:         "local_input",
			TaskInsertID: &taskID,
		})
		if err != nil {
			return err
		}
		dataIdx[path] = record.SingleRef(pid)
		schemaParams = append(schemaParams, path)
	}

	// Output parameters reference their producing run by the ID it will be
	// allocated below.
	baseRun, err := st.NumRuns(ctx)
	if err != nil {
		return err
	}
	for actIdx := 0; actIdx < numActions; actIdx++ {
		runID := baseRun + actIdx
		pid, err := st.AddUnsetParameter(ctx, record.ParamSource{
			Type:      "EAR_output",
			RunID:     &runID,
			ActionIdx: &actIdx,
		})
		if err != nil {
			return err
		}
		path := fmt.Sprintf("outputs.a%d", actIdx)
		dataIdx[path] = record.SingleRef(pid)
		schemaParams = append(schemaParams, path)
	}

	elemID, err := st.AddElement(ctx, taskID, 0, es.SeqIdx, nil)
	if err != nil {
		return err
	}
	iterID, err := st.AddElementIteration(ctx, elemID, dataIdx, schemaParams, nil)
	if err != nil {
		return err
	}
	for actIdx := 0; actIdx < numActions; actIdx++ {
		if _, err := st.AddRun(ctx, iterID, actIdx, nil, dataIdx, nil); err != nil {
			return err
		}
	}
	st.SetRunsInitialised(iterID)
	return nil
}

// paramPath maps a template input name to its data-index path. Dotted names
// are full paths already.
func paramPath(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return "inputs." + name
}

// ResolveTask resolves one task's pending runs into jobscripts using the
// template's resource specs.
func ResolveTask(ctx context.Context, st *store.Store, tpl *template.Template, taskID int) ([]record.Jobscript, [][]int, error) {
	specFor := func(actIdx, elemIdx int) record.ResourceSpec {
		return tpl.ResourcesFor(taskID, actIdx)
	}
	fn, numActions, numElems, err := jobscript.PendingRunsResourceFunc(ctx, st, taskID, specFor)
	if err != nil {
		return nil, nil, err
	}
	scripts, jsMap := jobscript.Resolve(numActions, numElems, fn)
	return scripts, jsMap, nil
}

// Submit snapshots every pending run into a new submission: the per-task
// jobscripts are concatenated with their indices and dependencies rebased,
// each covered run gets the submission index, and the whole batch is logged
// as one submission part. The staged changes still need a save.
func Submit(ctx context.Context, st *store.Store, tpl *template.Template) (record.Submission, error) {
	subIdx, err := st.NumSubmissions(ctx)
	if err != nil {
		return record.Submission{}, err
	}
	numTasks, err := st.NumTasks(ctx)
	if err != nil {
		return record.Submission{}, err
	}

	var all []record.Jobscript
	for taskID := 0; taskID < numTasks; taskID++ {
		scripts, _, err := ResolveTask(ctx, st, tpl, taskID)
		if err != nil {
			return record.Submission{}, err
		}
		views, err := st.GetTaskElements(ctx, taskID)
		if err != nil {
			return record.Submission{}, err
		}
		offset := len(all)
		for _, js := range scripts {
			js.Index += offset
			for i := range js.DependsOn {
				js.DependsOn[i] += offset
			}
			for elemIdx, actIdxs := range js.Elements {
				if err := markSubmitted(st, views, elemIdx, actIdxs, subIdx); err != nil {
					return record.Submission{}, err
				}
			}
			all = append(all, js)
		}
	}
	if len(all) == 0 {
		return record.Submission{}, fmt.Errorf("no pending runs to submit")
	}

	sub := record.Submission{
		Jobscripts:      all,
		SubmissionParts: map[string][]int{},
	}
	idx, err := st.AddSubmission(ctx, sub)
	if err != nil {
		return record.Submission{}, err
	}
	jsIndices := make([]int, len(all))
	for i := range jsIndices {
		jsIndices[i] = i
	}
	timestamp := time.Now().UTC().Format(record.TimestampFormat)
	st.AddSubmissionPart(idx, timestamp, jsIndices)

	sub.Index = idx
	sub.SubmissionParts = map[string][]int{timestamp: jsIndices}
	return sub, nil
}

// markSubmitted assigns the submission index to the unsubmitted runs behind
// the given element's covered actions.
func markSubmitted(st *store.Store, views []store.ElementView, elemIdx int, actIdxs []int, subIdx int) error {
	if elemIdx < 0 || elemIdx >= len(views) {
		return fmt.Errorf("jobscript references element index %d of %d", elemIdx, len(views))
	}
	view := views[elemIdx]
	if len(view.Iterations) == 0 {
		return nil
	}
	latest := view.Iterations[len(view.Iterations)-1]
	for _, actIdx := range actIdxs {
		for _, run := range latest.Runs[actIdx] {
			if !run.Submitted() && !run.Skip {
				st.SetRunSubmissionIndex(run.ID, subIdx)
			}
		}
	}
	return nil
}
