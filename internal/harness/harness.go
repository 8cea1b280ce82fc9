package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/calderwm/gridflow/internal/record"
	"github.com/calderwm/gridflow/internal/store"
	"github.com/calderwm/gridflow/internal/template"
	"github.com/calderwm/gridflow/internal/workflow"
)

// Run executes a scenario inside dir. It builds a workflow from the
// scenario template, stages every element, iteration, and run in template
// order, applies the lifecycle operations, saves, resolves jobscripts per
// task, and evaluates the assertions.
//
// The staging order is fixed, so entity IDs and the returned snapshot are
// deterministic.
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	tpl, err := template.Load([]byte(scenario.Template))
	if err != nil {
		return nil, fmt.Errorf("scenario template: %w", err)
	}
	doc, err := tpl.Doc()
	if err != nil {
		return nil, err
	}

	backend := scenario.Backend
	if backend == "" {
		backend = "json"
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Create(ctx, store.CreateOptions{
		Path:     dir,
		Name:     scenario.Name,
		Backend:  backend,
		Template: doc,
	}, logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := workflow.Build(ctx, st, tpl, doc); err != nil {
		return nil, err
	}
	for _, runID := range scenario.SkipRuns {
		st.SetRunSkip(runID)
	}
	if err := st.Save(ctx); err != nil {
		return nil, err
	}

	snapshot, err := buildSnapshot(ctx, st, tpl, scenario.Name, backend)
	if err != nil {
		return nil, err
	}
	result := &Result{Pass: true, Snapshot: snapshot}
	if err := evaluate(ctx, st, scenario, snapshot, result); err != nil {
		return nil, err
	}
	return result, nil
}

// buildSnapshot summarises the saved workflow and resolves each task's
// pending runs into jobscripts.
func buildSnapshot(ctx context.Context, st *store.Store, tpl *template.Template, name, backend string) (*Snapshot, error) {
	snap := &Snapshot{
		Scenario: name,
		Workflow: WorkflowSummary{Name: tpl.Name, Backend: backend},
	}

	numTasks, err := st.NumTasks(ctx)
	if err != nil {
		return nil, err
	}
	for taskID := 0; taskID < numTasks; taskID++ {
		views, err := st.GetTaskElements(ctx, taskID)
		if err != nil {
			return nil, err
		}
		summary := TaskSummary{Index: taskID, Elements: len(views)}
		for _, view := range views {
			for _, iter := range view.Iterations {
				for _, runs := range iter.Runs {
					for _, run := range runs {
						summary.Runs++
						if run.Skip {
							summary.Skipped = append(summary.Skipped, run.ID)
						}
					}
				}
			}
		}
		slices.Sort(summary.Skipped)
		snap.Workflow.Tasks = append(snap.Workflow.Tasks, summary)

		scripts, _, err := workflow.ResolveTask(ctx, st, tpl, taskID)
		if err != nil {
			return nil, err
		}
		group := TaskJobscripts{Task: taskID, Jobscripts: make([]JobscriptSummary, 0, len(scripts))}
		for _, js := range scripts {
			group.Jobscripts = append(group.Jobscripts, summariseJobscript(js))
		}
		snap.Jobscripts = append(snap.Jobscripts, group)
	}

	numParams, err := st.NumParameters(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, numParams)
	for i := range ids {
		ids[i] = i
	}
	setStatuses, err := st.GetParameterSetStatuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, set := range setStatuses {
		if set {
			snap.Workflow.Parameters.Set++
		} else {
			snap.Workflow.Parameters.Unset++
		}
	}
	return snap, nil
}

func summariseJobscript(js record.Jobscript) JobscriptSummary {
	out := JobscriptSummary{Index: js.Index, Resources: js.Resources, DependsOn: js.DependsOn}
	elems := make([]int, 0, len(js.Elements))
	for elemIdx := range js.Elements {
		elems = append(elems, elemIdx)
	}
	slices.Sort(elems)
	for _, elemIdx := range elems {
		out.Elements = append(out.Elements, ElementActions{Element: elemIdx, Actions: js.Elements[elemIdx]})
	}
	return out
}

// evaluate checks every scenario assertion against the store and snapshot.
// Assertion failures accumulate on the result; only store errors abort.
func evaluate(ctx context.Context, st *store.Store, scenario *Scenario, snap *Snapshot, result *Result) error {
	for i, a := range scenario.Assertions {
		switch a.Type {
		case AssertCount:
			got, err := entityCount(ctx, st, snap, a.Kind)
			if err != nil {
				return err
			}
			if got != a.Count {
				result.AddError(fmt.Sprintf("assertions[%d]: %s count is %d, want %d", i, a.Kind, got, a.Count))
			}
		case AssertRunSkipped:
			skipped, err := st.GetRunSkipped(ctx, a.Run)
			if err != nil {
				return err
			}
			if !skipped {
				result.AddError(fmt.Sprintf("assertions[%d]: run %d is not skipped", i, a.Run))
			}
		case AssertJobscriptDepends:
			deps, ok := jobscriptDeps(snap, a.Task, a.Jobscript)
			if !ok {
				result.AddError(fmt.Sprintf("assertions[%d]: task %d has no jobscript %d", i, a.Task, a.Jobscript))
				continue
			}
			if !slices.Equal(deps, a.DependsOn) {
				result.AddError(fmt.Sprintf("assertions[%d]: jobscript %d of task %d depends on %v, want %v",
					i, a.Jobscript, a.Task, deps, a.DependsOn))
			}
		}
	}
	return nil
}

func entityCount(ctx context.Context, st *store.Store, snap *Snapshot, kind string) (int, error) {
	switch kind {
	case "tasks":
		return st.NumTasks(ctx)
	case "elements":
		return st.NumElements(ctx)
	case "iterations":
		return st.NumIterations(ctx)
	case "runs":
		return st.NumRuns(ctx)
	case "parameters":
		return st.NumParameters(ctx)
	case "jobscripts":
		n := 0
		for _, group := range snap.Jobscripts {
			n += len(group.Jobscripts)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unknown entity kind %q", kind)
}

func jobscriptDeps(snap *Snapshot, task, jsIdx int) ([]int, bool) {
	for _, group := range snap.Jobscripts {
		if group.Task != task {
			continue
		}
		if jsIdx < 0 || jsIdx >= len(group.Jobscripts) {
			return nil, false
		}
		return group.Jobscripts[jsIdx].DependsOn, true
	}
	return nil, false
}
