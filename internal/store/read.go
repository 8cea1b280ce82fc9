package store

import (
	"context"
	"slices"
	"sort"

	"github.com/calderwm/gridflow/internal/record"
)

// splitPending partitions the requested IDs into persistent and pending
// subsets against one add-bucket.
func splitPending[T any](ids []int, bucket map[int]T) (pers, pend []int) {
	for _, id := range ids {
		if _, ok := bucket[id]; ok {
			pend = append(pend, id)
		} else {
			pers = append(pers, id)
		}
	}
	return pers, pend
}

// GetTasksByID retrieves tasks by ID, pending included, in the requested
// order, with pending element-ID appends folded in.
func (s *Store) GetTasksByID(ctx context.Context, ids []int) ([]record.Task, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addTasks)
	tasks, misses := cachedItems(s.useCache, s.taskCache, persIDs)
	if len(misses) > 0 {
		got, err := s.backend.GetTasks(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, t := range got {
			tasks[id] = t
			if s.useCache {
				s.taskCache[id] = t
			}
		}
	}
	for _, id := range pendIDs {
		tasks[id] = s.pending.addTasks[id]
	}

	out := make([]record.Task, 0, len(ids))
	for _, id := range ids {
		t, ok := tasks[id]
		if !ok {
			return nil, unknownIDError("task", id)
		}
		// consider pending element IDs:
		if pend := s.pending.addElemIDs[id]; len(pend) > 0 {
			t = t.AppendElementIDs(pend)
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTasks retrieves all tasks ordered by index.
func (s *Store) GetTasks(ctx context.Context) ([]record.Task, error) {
	n, err := s.numPersistentTasks(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, n+len(s.pending.addTasks))
	for i := 0; i < n; i++ {
		ids = append(ids, i)
	}
	for id := range s.pending.addTasks {
		ids = append(ids, id)
	}
	tasks, err := s.GetTasksByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Index < tasks[j].Index })
	return tasks, nil
}

// GetTask retrieves one task by its index in the template DAG.
func (s *Store) GetTask(ctx context.Context, taskIdx int) (record.Task, error) {
	tasks, err := s.GetTasks(ctx)
	if err != nil {
		return record.Task{}, err
	}
	if taskIdx < 0 || taskIdx >= len(tasks) {
		return record.Task{}, unknownIDError("task", taskIdx)
	}
	return tasks[taskIdx], nil
}

// GetLoopsByID retrieves loops by index, pending included, with pending
// iteration-count and parent updates folded in.
func (s *Store) GetLoopsByID(ctx context.Context, ids []int) ([]record.Loop, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addLoops)
	var loops map[int]record.Loop
	if len(persIDs) > 0 {
		var err error
		loops, err = s.backend.GetLoops(ctx, persIDs)
		if err != nil {
			return nil, err
		}
	} else {
		loops = map[int]record.Loop{}
	}
	for _, id := range pendIDs {
		loops[id] = s.pending.addLoops[id]
	}

	out := make([]record.Loop, 0, len(ids))
	for _, id := range ids {
		l, ok := loops[id]
		if !ok {
			return nil, unknownIDError("loop", id)
		}
		if entries, ok := s.pending.updateLoopNumIters[id]; ok {
			l = l.WithNumAddedIterations(entries)
		}
		if parents, ok := s.pending.updateLoopParents[id]; ok {
			l = l.WithParents(parents)
		}
		out = append(out, l)
	}
	return out, nil
}

// GetLoops retrieves all loops ordered by index.
func (s *Store) GetLoops(ctx context.Context) ([]record.Loop, error) {
	n, err := s.backend.NumLoops(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, n+len(s.pending.addLoops))
	for i := 0; i < n; i++ {
		ids = append(ids, i)
	}
	for id := range s.pending.addLoops {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return s.GetLoopsByID(ctx, ids)
}

// GetSubmissionsByID retrieves submissions by index, pending included, with
// pending submission-part appends and jobscript metadata folded in.
func (s *Store) GetSubmissionsByID(ctx context.Context, ids []int) ([]record.Submission, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addSubmissions)
	var subs map[int]record.Submission
	if len(persIDs) > 0 {
		var err error
		subs, err = s.backend.GetSubmissions(ctx, persIDs)
		if err != nil {
			return nil, err
		}
	} else {
		subs = map[int]record.Submission{}
	}
	for _, id := range pendIDs {
		subs[id] = s.pending.addSubmissions[id]
	}

	out := make([]record.Submission, 0, len(ids))
	for _, id := range ids {
		sub, ok := subs[id]
		if !ok {
			return nil, unknownIDError("submission", id)
		}
		if parts := s.pending.addSubmissionParts[id]; len(parts) > 0 {
			sub = sub.AppendSubmissionParts(parts)
		}
		for jsIdx, meta := range s.pending.setJobscriptMeta[id] {
			sub = sub.UpdateJobscriptMeta(jsIdx, meta)
		}
		out = append(out, sub)
	}
	return out, nil
}

// GetSubmissions retrieves all submissions ordered by index.
func (s *Store) GetSubmissions(ctx context.Context) ([]record.Submission, error) {
	n, err := s.backend.NumSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, n+len(s.pending.addSubmissions))
	for i := 0; i < n; i++ {
		ids = append(ids, i)
	}
	for id := range s.pending.addSubmissions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return s.GetSubmissionsByID(ctx, ids)
}

// GetElements retrieves elements by ID, pending included, in the requested
// order, with pending iteration-ID appends folded in.
func (s *Store) GetElements(ctx context.Context, ids []int) ([]record.Element, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addElements)
	elems, misses := cachedItems(s.useCache, s.elementCache, persIDs)
	if len(misses) > 0 {
		got, err := s.backend.GetElements(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, e := range got {
			elems[id] = e
			if s.useCache {
				s.elementCache[id] = e
			}
		}
	}
	for _, id := range pendIDs {
		elems[id] = s.pending.addElements[id]
	}

	out := make([]record.Element, 0, len(ids))
	for _, id := range ids {
		e, ok := elems[id]
		if !ok {
			return nil, unknownIDError("element", id)
		}
		// consider pending iteration IDs:
		if pend := s.pending.addIterIDs[id]; len(pend) > 0 {
			e = e.AppendIterationIDs(pend)
		}
		out = append(out, e)
	}
	return out, nil
}

// GetElementIterations retrieves iterations by ID, pending included, in the
// requested order, with pending run-ID appends, loop-position updates and
// runs-initialised flips folded in.
func (s *Store) GetElementIterations(ctx context.Context, ids []int) ([]record.Iteration, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addIterations)
	iters, misses := cachedItems(s.useCache, s.iterCache, persIDs)
	if len(misses) > 0 {
		got, err := s.backend.GetIterations(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, it := range got {
			iters[id] = it
			if s.useCache {
				s.iterCache[id] = it
			}
		}
	}
	for _, id := range pendIDs {
		iters[id] = s.pending.addIterations[id]
	}

	out := make([]record.Iteration, 0, len(ids))
	for _, id := range ids {
		it, ok := iters[id]
		if !ok {
			return nil, unknownIDError("iteration", id)
		}
		if pend := s.pending.addIterRunIDs[id]; len(pend) > 0 {
			it = it.AppendRunIDs(pend)
		}
		if loopIdx := s.pending.updateLoopIdx[id]; len(loopIdx) > 0 {
			it = it.UpdateLoopIdx(loopIdx)
		}
		if slices.Contains(s.pending.setRunsInitialised, id) {
			it = it.SetRunsInitialised()
		}
		out = append(out, it)
	}
	return out, nil
}

// GetRuns retrieves runs by ID, pending included, in the requested order,
// with pending lifecycle updates (submission index, skip, start, end) folded
// in.
func (s *Store) GetRuns(ctx context.Context, ids []int) ([]record.Run, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addRuns)
	runs, misses := cachedItems(s.useCache, s.runCache, persIDs)
	if len(misses) > 0 {
		got, err := s.backend.GetRuns(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, r := range got {
			runs[id] = r
			if s.useCache {
				s.runCache[id] = r
			}
		}
	}
	for _, id := range pendIDs {
		runs[id] = s.pending.addRuns[id]
	}

	out := make([]record.Run, 0, len(ids))
	for _, id := range ids {
		r, ok := runs[id]
		if !ok {
			return nil, unknownIDError("run", id)
		}
		var upd record.RunUpdate
		if subIdx, ok := s.pending.setRunSubmissionIdx[id]; ok {
			v := subIdx
			upd.SubmissionIdx = &v
		}
		if slices.Contains(s.pending.setRunSkips, id) {
			skip := true
			upd.Skip = &skip
		}
		if start, ok := s.pending.setRunStarts[id]; ok {
			t := start.Time
			upd.StartTime = &t
			upd.SnapshotStart = start.Snapshot
			upd.RunHostname = start.Hostname
		}
		if end, ok := s.pending.setRunEnds[id]; ok {
			t := end.Time
			ec := end.ExitCode
			suc := end.Success
			upd.EndTime = &t
			upd.SnapshotEnd = end.Snapshot
			upd.ExitCode = &ec
			upd.Success = &suc
		}
		if !upd.IsZero() {
			r = r.Update(upd)
		}
		out = append(out, r)
	}
	return out, nil
}

// GetRunSkipped reports whether one run carries the skip flag, pending
// included.
func (s *Store) GetRunSkipped(ctx context.Context, runID int) (bool, error) {
	runs, err := s.GetRuns(ctx, []int{runID})
	if err != nil {
		return false, err
	}
	return runs[0].Skip, nil
}

// GetParameters retrieves parameters by ID, pending included, in the
// requested order, with pending value-sets and source amendments folded in.
func (s *Store) GetParameters(ctx context.Context, ids []int) ([]record.Parameter, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addParameters)
	params, misses := cachedItems(s.useCache, s.paramCache, persIDs)
	if len(misses) > 0 {
		got, err := s.backend.GetParameters(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, p := range got {
			params[id] = p
			if s.useCache {
				s.paramCache[id] = p
			}
		}
	}
	for _, id := range pendIDs {
		params[id] = s.pending.addParameters[id]
	}

	out := make([]record.Parameter, 0, len(ids))
	for _, id := range ids {
		p, ok := params[id]
		if !ok {
			return nil, unknownIDError("parameter", id)
		}
		if val, ok := s.pending.setParameters[id]; ok {
			var err error
			if val.File != nil {
				p, err = p.SetFile(*val.File)
			} else {
				p, err = p.SetData(val.Value)
			}
			if err != nil {
				return nil, alreadySetError(id)
			}
		}
		if src, ok := s.pending.updateParamSources[id]; ok {
			p = p.UpdateSource(src)
		}
		out = append(out, p)
	}
	return out, nil
}

// GetParameterSetStatuses reports, per requested ID, whether the parameter
// value is set, pending included.
func (s *Store) GetParameterSetStatuses(ctx context.Context, ids []int) ([]bool, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addParameters)
	statuses := map[int]bool{}
	if len(persIDs) > 0 {
		got, err := s.backend.GetParameterSetStatuses(ctx, persIDs)
		if err != nil {
			return nil, err
		}
		for id, set := range got {
			statuses[id] = set
		}
	}
	for _, id := range pendIDs {
		statuses[id] = s.pending.addParameters[id].IsSet
	}

	out := make([]bool, 0, len(ids))
	for _, id := range ids {
		set, ok := statuses[id]
		if !ok {
			return nil, unknownIDError("parameter", id)
		}
		if _, staged := s.pending.setParameters[id]; staged {
			set = true
		}
		out = append(out, set)
	}
	return out, nil
}

// GetParameterSources retrieves parameter provenance by ID, pending
// included, with staged amendments merged in.
func (s *Store) GetParameterSources(ctx context.Context, ids []int) ([]record.ParamSource, error) {
	persIDs, pendIDs := splitPending(ids, s.pending.addParameters)
	sources, misses := cachedItems(s.useCache, s.paramSrcCache, persIDs)
	if len(misses) > 0 {
		got, err := s.backend.GetParameterSources(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, src := range got {
			sources[id] = src
			if s.useCache {
				s.paramSrcCache[id] = src
			}
		}
	}
	for _, id := range pendIDs {
		sources[id] = s.pending.addParameters[id].Source
	}

	out := make([]record.ParamSource, 0, len(ids))
	for _, id := range ids {
		src, ok := sources[id]
		if !ok {
			return nil, unknownIDError("parameter", id)
		}
		if pend, ok := s.pending.updateParamSources[id]; ok {
			src = src.Merge(pend)
		}
		out = append(out, src)
	}
	return out, nil
}

// CheckParametersExist reports, per requested ID, whether the parameter
// exists, pending included.
func (s *Store) CheckParametersExist(ctx context.Context, ids []int) ([]bool, error) {
	persIDs, _ := splitPending(ids, s.pending.addParameters)
	missing := map[int]bool{}
	if len(persIDs) > 0 {
		all, err := s.backend.AllParameterIDs(ctx)
		if err != nil {
			return nil, err
		}
		exists := map[int]bool{}
		for _, id := range all {
			exists[id] = true
		}
		for _, id := range persIDs {
			if !exists[id] {
				missing[id] = true
			}
		}
	}
	out := make([]bool, 0, len(ids))
	for _, id := range ids {
		out = append(out, !missing[id])
	}
	return out, nil
}

// GetTemplateComponents returns the template-components document, pending
// included.
func (s *Store) GetTemplateComponents(ctx context.Context) (record.TemplateComponents, error) {
	tc, err := s.backend.GetTemplateComponents(ctx)
	if err != nil {
		return nil, err
	}
	merged := tc.Clone()
	for typ, byHash := range s.pending.addTemplateComponents {
		if merged[typ] == nil {
			merged[typ] = map[string]map[string]any{}
		}
		for hash, doc := range byHash {
			merged[typ][hash] = doc
		}
	}
	return merged, nil
}

// GetTemplate returns the persisted workflow template document.
func (s *Store) GetTemplate(ctx context.Context) (map[string]any, error) {
	return s.backend.GetTemplate(ctx)
}

// IterationView is an iteration with its runs resolved, as assembled by
// GetTaskElements.
type IterationView struct {
	record.Iteration
	Runs map[int][]record.Run
}

// ElementView is an element with its iterations resolved.
type ElementView struct {
	record.Element
	Iterations []IterationView
}

// GetTaskElements assembles the complete element data of one task: elements,
// their iterations, and the runs of each iteration, pending included.
func (s *Store) GetTaskElements(ctx context.Context, taskID int) ([]ElementView, error) {
	tasks, err := s.GetTasksByID(ctx, []int{taskID})
	if err != nil {
		return nil, err
	}
	elems, err := s.GetElements(ctx, tasks[0].ElementIDs)
	if err != nil {
		return nil, err
	}

	var iterIDs []int
	for _, e := range elems {
		iterIDs = append(iterIDs, e.IterationIDs...)
	}
	iters, err := s.GetElementIterations(ctx, iterIDs)
	if err != nil {
		return nil, err
	}
	iterByID := map[int]record.Iteration{}
	for _, it := range iters {
		iterByID[it.ID] = it
	}

	out := make([]ElementView, 0, len(elems))
	for _, e := range elems {
		view := ElementView{Element: e}
		for _, iterID := range e.IterationIDs {
			it := iterByID[iterID]
			iv := IterationView{Iteration: it}
			if len(it.RunIDs) > 0 {
				iv.Runs = map[int][]record.Run{}
				for actIdx, runIDs := range it.RunIDs {
					runs, err := s.GetRuns(ctx, runIDs)
					if err != nil {
						return nil, err
					}
					iv.Runs[actIdx] = runs
				}
			}
			view.Iterations = append(view.Iterations, iv)
		}
		out = append(out, view)
	}
	return out, nil
}
