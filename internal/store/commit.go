package store

import (
	"context"
	"slices"

	"github.com/calderwm/gridflow/internal/record"
)

// commitStep applies one pending bucket to the backend and clears it on
// success. Steps are ordered so that later steps only depend on IDs minted
// by earlier ones: runs commit after the iterations that own them, element
// ID appends after the tasks they address, and so on.
type commitStep struct {
	name string
	run  func(s *Store, ctx context.Context) error
}

var commitSteps = []commitStep{
	{"commit_tasks", (*Store).commitTasks},
	{"commit_loops", (*Store).commitLoops},
	{"commit_submissions", (*Store).commitSubmissions},
	{"commit_submission_parts", (*Store).commitSubmissionParts},
	{"commit_elem_ids", (*Store).commitElemIDs},
	{"commit_elements", (*Store).commitElements},
	{"commit_element_sets", (*Store).commitElementSets},
	{"commit_iter_ids", (*Store).commitIterIDs},
	{"commit_iterations", (*Store).commitIterations},
	{"commit_iter_run_ids", (*Store).commitIterRunIDs},
	{"commit_runs_initialised", (*Store).commitRunsInitialised},
	{"commit_runs", (*Store).commitRuns},
	{"commit_run_submission_idx", (*Store).commitRunSubmissionIdx},
	{"commit_run_skips", (*Store).commitRunSkips},
	{"commit_run_starts", (*Store).commitRunStarts},
	{"commit_run_ends", (*Store).commitRunEnds},
	{"commit_jobscript_meta", (*Store).commitJobscriptMeta},
	{"commit_parameters", (*Store).commitParameters},
	{"commit_set_parameters", (*Store).commitSetParameters},
	{"commit_files", (*Store).commitFiles},
	{"commit_template_components", (*Store).commitTemplateComponents},
	{"commit_param_sources", (*Store).commitParamSources},
	{"commit_loop_idx", (*Store).commitLoopIdx},
	{"commit_loop_num_iters", (*Store).commitLoopNumIters},
	{"commit_loop_parents", (*Store).commitLoopParents},
}

// commitGroup is a contiguous run of commit steps sharing at least one
// storage resource, executed under a single open/close of those resources.
type commitGroup struct {
	resources []string
	steps     []commitStep
}

// groupCommitSteps folds the ordered step table into the minimal number of
// contiguous resource-acquisition scopes. A step with no declared resources
// joins the current group; a step whose resource set is disjoint from the
// current group's starts a new one. The fold runs once at store
// construction, not per commit.
func groupCommitSteps(steps []commitStep, resMap map[string][]string) []commitGroup {
	var groups []commitGroup
	for _, step := range steps {
		res := resMap[step.name]
		if len(groups) == 0 {
			groups = append(groups, commitGroup{resources: slices.Clone(res), steps: []commitStep{step}})
			continue
		}
		cur := &groups[len(groups)-1]
		overlap := len(res) == 0
		for _, r := range res {
			if slices.Contains(cur.resources, r) {
				overlap = true
				break
			}
		}
		if !overlap && len(cur.resources) > 0 {
			groups = append(groups, commitGroup{resources: slices.Clone(res), steps: []commitStep{step}})
			continue
		}
		for _, r := range res {
			if !slices.Contains(cur.resources, r) {
				cur.resources = append(cur.resources, r)
			}
		}
		cur.steps = append(cur.steps, step)
	}
	return groups
}

// CommitAll applies every populated pending bucket to the backend, one
// resource group at a time. A failure while applying one bucket leaves that
// bucket populated, so a retried commit resubmits exactly the unapplied
// work; groups already applied stay applied.
func (s *Store) CommitAll(ctx context.Context) error {
	s.logger.Debug("commit all", "pending", s.pending.wherePending())
	for _, group := range s.groups {
		if err := s.commitGroup(ctx, group); err != nil {
			return err
		}
	}
	if s.useCache {
		s.resetCache()
	}
	return nil
}

func (s *Store) commitGroup(ctx context.Context, group commitGroup) (err error) {
	var opened []string
	defer func() {
		for i := len(opened) - 1; i >= 0; i-- {
			if cerr := s.backend.CloseResource(opened[i]); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()
	for _, label := range group.resources {
		if oerr := s.backend.OpenResource(ctx, label, ResourceUpdate); oerr != nil {
			return commitError(label, oerr)
		}
		opened = append(opened, label)
	}
	for _, step := range group.steps {
		if serr := step.run(s, ctx); serr != nil {
			return commitError(step.name, serr)
		}
	}
	return nil
}

// sortedKeys returns the map's keys in ascending order, so commits are
// deterministic.
func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *Store) commitTasks(ctx context.Context) error {
	ids := sortedKeys(s.pending.addTasks)
	if len(ids) == 0 {
		return nil
	}
	// The merged view folds in element IDs staged for these tasks, so they
	// commit as part of the task record.
	tasks, err := s.GetTasksByID(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.backend.AppendTasks(ctx, tasks); err != nil {
		return err
	}
	s.logger.Debug("committed tasks", "ids", ids)
	for _, id := range ids {
		delete(s.pending.addElemIDs, id)
		delete(s.pending.addTasks, id)
	}
	return nil
}

func (s *Store) commitLoops(ctx context.Context) error {
	ids := sortedKeys(s.pending.addLoops)
	if len(ids) == 0 {
		return nil
	}
	loops, err := s.GetLoopsByID(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.backend.AppendLoops(ctx, loops); err != nil {
		return err
	}
	s.logger.Debug("committed loops", "ids", ids)
	for _, id := range ids {
		delete(s.pending.updateLoopNumIters, id)
		delete(s.pending.updateLoopParents, id)
		delete(s.pending.addLoops, id)
	}
	return nil
}

func (s *Store) commitSubmissions(ctx context.Context) error {
	ids := sortedKeys(s.pending.addSubmissions)
	if len(ids) == 0 {
		return nil
	}
	subs, err := s.GetSubmissionsByID(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.backend.AppendSubmissions(ctx, subs); err != nil {
		return err
	}
	s.logger.Debug("committed submissions", "ids", ids)
	for _, id := range ids {
		delete(s.pending.addSubmissionParts, id)
		delete(s.pending.setJobscriptMeta, id)
		delete(s.pending.addSubmissions, id)
	}
	return nil
}

func (s *Store) commitSubmissionParts(ctx context.Context) error {
	if len(s.pending.addSubmissionParts) == 0 {
		return nil
	}
	if err := s.backend.AppendSubmissionParts(ctx, s.pending.addSubmissionParts); err != nil {
		return err
	}
	s.pending.addSubmissionParts = map[int]map[string][]int{}
	return nil
}

func (s *Store) commitElemIDs(ctx context.Context) error {
	for _, taskID := range sortedKeys(s.pending.addElemIDs) {
		if err := s.backend.AppendTaskElementIDs(ctx, taskID, s.pending.addElemIDs[taskID]); err != nil {
			return err
		}
		delete(s.pending.addElemIDs, taskID)
	}
	return nil
}

func (s *Store) commitElements(ctx context.Context) error {
	ids := sortedKeys(s.pending.addElements)
	if len(ids) == 0 {
		return nil
	}
	elems, err := s.GetElements(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.backend.AppendElements(ctx, elems); err != nil {
		return err
	}
	s.logger.Debug("committed elements", "ids", ids)
	for _, id := range ids {
		delete(s.pending.addIterIDs, id)
		delete(s.pending.addElements, id)
	}
	return nil
}

func (s *Store) commitElementSets(ctx context.Context) error {
	for _, taskID := range sortedKeys(s.pending.addElementSets) {
		if err := s.backend.AppendElementSets(ctx, taskID, s.pending.addElementSets[taskID]); err != nil {
			return err
		}
		delete(s.pending.addElementSets, taskID)
	}
	return nil
}

func (s *Store) commitIterIDs(ctx context.Context) error {
	for _, elemID := range sortedKeys(s.pending.addIterIDs) {
		if err := s.backend.AppendElementIterIDs(ctx, elemID, s.pending.addIterIDs[elemID]); err != nil {
			return err
		}
		delete(s.pending.addIterIDs, elemID)
	}
	return nil
}

func (s *Store) commitIterations(ctx context.Context) error {
	ids := sortedKeys(s.pending.addIterations)
	if len(ids) == 0 {
		return nil
	}
	iters, err := s.GetElementIterations(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.backend.AppendIterations(ctx, iters); err != nil {
		return err
	}
	s.logger.Debug("committed iterations", "ids", ids)
	for _, id := range ids {
		delete(s.pending.addIterRunIDs, id)
		delete(s.pending.updateLoopIdx, id)
		delete(s.pending.addIterations, id)
	}
	s.pending.setRunsInitialised = slices.DeleteFunc(s.pending.setRunsInitialised, func(id int) bool {
		return slices.Contains(ids, id)
	})
	return nil
}

func (s *Store) commitIterRunIDs(ctx context.Context) error {
	for _, iterID := range sortedKeys(s.pending.addIterRunIDs) {
		byAct := s.pending.addIterRunIDs[iterID]
		for _, actIdx := range sortedKeys(byAct) {
			if err := s.backend.AppendIterationRunIDs(ctx, iterID, actIdx, byAct[actIdx]); err != nil {
				return err
			}
		}
		delete(s.pending.addIterRunIDs, iterID)
	}
	return nil
}

func (s *Store) commitRunsInitialised(ctx context.Context) error {
	for _, iterID := range s.pending.setRunsInitialised {
		if err := s.backend.SetIterationRunsInitialised(ctx, iterID); err != nil {
			return err
		}
	}
	s.pending.setRunsInitialised = nil
	return nil
}

func (s *Store) commitRuns(ctx context.Context) error {
	ids := sortedKeys(s.pending.addRuns)
	if len(ids) == 0 {
		return nil
	}
	runs, err := s.GetRuns(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.backend.AppendRuns(ctx, runs); err != nil {
		return err
	}
	s.logger.Debug("committed runs", "ids", ids)
	for _, id := range ids {
		delete(s.pending.setRunSubmissionIdx, id)
		delete(s.pending.setRunStarts, id)
		delete(s.pending.setRunEnds, id)
		delete(s.pending.addRuns, id)
	}
	s.pending.setRunSkips = slices.DeleteFunc(s.pending.setRunSkips, func(id int) bool {
		return slices.Contains(ids, id)
	})
	return nil
}

func (s *Store) commitRunSubmissionIdx(ctx context.Context) error {
	if len(s.pending.setRunSubmissionIdx) == 0 {
		return nil
	}
	if err := s.backend.UpdateRunSubmissionIdxs(ctx, s.pending.setRunSubmissionIdx); err != nil {
		return err
	}
	s.pending.setRunSubmissionIdx = map[int]int{}
	return nil
}

func (s *Store) commitRunSkips(ctx context.Context) error {
	for _, runID := range s.pending.setRunSkips {
		if err := s.backend.UpdateRunSkip(ctx, runID); err != nil {
			return err
		}
	}
	s.pending.setRunSkips = nil
	return nil
}

func (s *Store) commitRunStarts(ctx context.Context) error {
	for _, runID := range sortedKeys(s.pending.setRunStarts) {
		if err := s.backend.UpdateRunStart(ctx, runID, s.pending.setRunStarts[runID]); err != nil {
			return err
		}
		delete(s.pending.setRunStarts, runID)
	}
	return nil
}

func (s *Store) commitRunEnds(ctx context.Context) error {
	for _, runID := range sortedKeys(s.pending.setRunEnds) {
		if err := s.backend.UpdateRunEnd(ctx, runID, s.pending.setRunEnds[runID]); err != nil {
			return err
		}
		delete(s.pending.setRunEnds, runID)
	}
	return nil
}

func (s *Store) commitJobscriptMeta(ctx context.Context) error {
	if len(s.pending.setJobscriptMeta) == 0 {
		return nil
	}
	if err := s.backend.UpdateJobscriptMeta(ctx, s.pending.setJobscriptMeta); err != nil {
		return err
	}
	s.pending.setJobscriptMeta = map[int]map[int]record.JobscriptMeta{}
	return nil
}

func (s *Store) commitParameters(ctx context.Context) error {
	ids := sortedKeys(s.pending.addParameters)
	if len(ids) == 0 {
		return nil
	}
	params, err := s.GetParameters(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.backend.AppendParameters(ctx, params); err != nil {
		return err
	}
	s.logger.Debug("committed parameters", "ids", ids)
	for _, id := range ids {
		delete(s.pending.setParameters, id)
		delete(s.pending.updateParamSources, id)
		delete(s.pending.addParameters, id)
	}
	return nil
}

func (s *Store) commitSetParameters(ctx context.Context) error {
	if len(s.pending.setParameters) == 0 {
		return nil
	}
	if err := s.backend.SetParameterValues(ctx, s.pending.setParameters); err != nil {
		return err
	}
	s.pending.setParameters = map[int]SetParam{}
	return nil
}

func (s *Store) commitFiles(ctx context.Context) error {
	if len(s.pending.addFiles) == 0 {
		return nil
	}
	if err := s.backend.AppendFiles(ctx, s.pending.addFiles); err != nil {
		return err
	}
	s.pending.addFiles = nil
	return nil
}

func (s *Store) commitTemplateComponents(ctx context.Context) error {
	if len(s.pending.addTemplateComponents) == 0 {
		return nil
	}
	if err := s.backend.UpdateTemplateComponents(ctx, s.pending.addTemplateComponents); err != nil {
		return err
	}
	s.pending.addTemplateComponents = record.TemplateComponents{}
	return nil
}

func (s *Store) commitParamSources(ctx context.Context) error {
	if len(s.pending.updateParamSources) == 0 {
		return nil
	}
	if err := s.backend.UpdateParameterSources(ctx, s.pending.updateParamSources); err != nil {
		return err
	}
	s.pending.updateParamSources = map[int]record.ParamSource{}
	return nil
}

func (s *Store) commitLoopIdx(ctx context.Context) error {
	for _, iterID := range sortedKeys(s.pending.updateLoopIdx) {
		if err := s.backend.UpdateIterationLoopIdx(ctx, iterID, s.pending.updateLoopIdx[iterID]); err != nil {
			return err
		}
		delete(s.pending.updateLoopIdx, iterID)
	}
	return nil
}

func (s *Store) commitLoopNumIters(ctx context.Context) error {
	for _, index := range sortedKeys(s.pending.updateLoopNumIters) {
		if err := s.backend.UpdateLoopNumIters(ctx, index, s.pending.updateLoopNumIters[index]); err != nil {
			return err
		}
		delete(s.pending.updateLoopNumIters, index)
	}
	return nil
}

func (s *Store) commitLoopParents(ctx context.Context) error {
	for _, index := range sortedKeys(s.pending.updateLoopParents) {
		if err := s.backend.UpdateLoopParents(ctx, index, s.pending.updateLoopParents[index]); err != nil {
			return err
		}
		delete(s.pending.updateLoopParents, index)
	}
	return nil
}
