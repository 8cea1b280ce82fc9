package store

import (
	"context"
	"os"
	"time"

	"github.com/calderwm/gridflow/internal/record"
)

// AddTask stages a new task and returns its allocated ID. The ID depends
// only on the order of allocation calls, never on commit order.
func (s *Store) AddTask(ctx context.Context, idx int, template map[string]any) (int, error) {
	newID, err := s.NumAddedTasks(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("adding store task", "id", newID, "index", idx)
	s.pending.addTasks[newID] = record.Task{
		ID:        newID,
		Index:     idx,
		IsPending: true,
		Template:  template,
	}
	return newID, nil
}

// AddLoop stages a new loop over the given contiguous ascending task-index
// range, and stages a zero loop-position entry for every iteration the loop
// initially covers.
func (s *Store) AddLoop(ctx context.Context, loop record.Loop, taskIndices []int, iterIDs []int) (int, error) {
	for i := 1; i < len(taskIndices); i++ {
		if taskIndices[i] != taskIndices[i-1]+1 {
			return 0, &Error{
				Code:    ErrCodeBadLoopRange,
				Kind:    "loop",
				ID:      -1,
				Message: "loop task indices must be contiguous ascending",
			}
		}
	}
	newIdx, err := s.NumLoops(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("adding store loop", "index", newIdx)
	loop.Index = newIdx
	loop.IsPending = true
	s.pending.addLoops[newIdx] = loop

	name, _ := loop.Template["name"].(string)
	for _, iterID := range iterIDs {
		if s.pending.updateLoopIdx[iterID] == nil {
			s.pending.updateLoopIdx[iterID] = map[string]int{}
		}
		s.pending.updateLoopIdx[iterID][name] = 0
		delete(s.iterCache, iterID)
	}
	return newIdx, nil
}

// AddSubmission stages a new submission snapshot.
func (s *Store) AddSubmission(ctx context.Context, sub record.Submission) (int, error) {
	newIdx, err := s.NumSubmissions(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("adding store submission", "index", newIdx)
	sub.Index = newIdx
	sub.IsPending = true
	s.pending.addSubmissions[newIdx] = sub
	return newIdx, nil
}

// AddSubmissionPart stages one time-stamped batch of dispatched jobscript
// indices for a submission. The log is what makes retried submission
// idempotent.
func (s *Store) AddSubmissionPart(subIdx int, timestamp string, jsIndices []int) {
	if s.pending.addSubmissionParts[subIdx] == nil {
		s.pending.addSubmissionParts[subIdx] = map[string][]int{}
	}
	s.pending.addSubmissionParts[subIdx][timestamp] = jsIndices
}

// AddElementSet stages an element-set document for a task's template.
func (s *Store) AddElementSet(taskID int, set map[string]any) {
	s.pending.addElementSets[taskID] = append(s.pending.addElementSets[taskID], set)
}

// AddElement stages a new element of a task and returns its allocated ID.
func (s *Store) AddElement(ctx context.Context, taskID, setIdx int, seqIdx, srcIdx map[string]int) (int, error) {
	newID, err := s.NumElements(ctx)
	if err != nil {
		return 0, err
	}
	elemIdx, err := s.taskNumElements(ctx, taskID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("adding store element", "id", newID, "task_id", taskID)
	s.pending.addElements[newID] = record.Element{
		ID:        newID,
		IsPending: true,
		Index:     elemIdx,
		SetIndex:  setIdx,
		SeqIdx:    seqIdx,
		SrcIdx:    srcIdx,
		TaskID:    taskID,
	}
	s.pending.addElemIDs[taskID] = append(s.pending.addElemIDs[taskID], newID)
	delete(s.taskCache, taskID)
	return newID, nil
}

// AddElementIteration stages a new iteration of an element and returns its
// allocated ID. The supplied data index must already contain every path the
// element's task schema requires; the store only holds it.
func (s *Store) AddElementIteration(ctx context.Context, elementID int, dataIdx record.DataIndex, schemaParams []string, loopIdx map[string]int) (int, error) {
	newID, err := s.NumIterations(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("adding store element-iteration", "id", newID, "element_id", elementID)
	s.pending.addIterations[newID] = record.Iteration{
		ID:               newID,
		IsPending:        true,
		ElementID:        elementID,
		DataIdx:          dataIdx,
		SchemaParameters: schemaParams,
		LoopIdx:          loopIdx,
	}
	s.pending.addIterIDs[elementID] = append(s.pending.addIterIDs[elementID], newID)
	delete(s.elementCache, elementID)
	return newID, nil
}

// AddRun stages a new action run for an iteration and returns its allocated
// ID. A run may reference parameter IDs that are themselves still pending.
func (s *Store) AddRun(ctx context.Context, iterID, actionIdx int, commandsIdx []int, dataIdx record.DataIndex, metadata map[string]any) (int, error) {
	newID, err := s.NumRuns(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("adding store run", "id", newID, "iteration_id", iterID, "action_idx", actionIdx)
	s.pending.addRuns[newID] = record.Run{
		ID:          newID,
		IsPending:   true,
		IterationID: iterID,
		ActionIdx:   actionIdx,
		CommandsIdx: commandsIdx,
		DataIdx:     dataIdx,
		Metadata:    metadata,
	}
	if s.pending.addIterRunIDs[iterID] == nil {
		s.pending.addIterRunIDs[iterID] = map[int][]int{}
	}
	s.pending.addIterRunIDs[iterID][actionIdx] = append(s.pending.addIterRunIDs[iterID][actionIdx], newID)
	delete(s.iterCache, iterID)
	return newID, nil
}

// SetRunsInitialised stages the one-way runs-initialised flip for an
// iteration.
func (s *Store) SetRunsInitialised(iterID int) {
	s.pending.setRunsInitialised = append(s.pending.setRunsInitialised, iterID)
	delete(s.iterCache, iterID)
}

// SetRunSubmissionIndex stages the submission assignment of a run.
func (s *Store) SetRunSubmissionIndex(runID, subIdx int) {
	s.pending.setRunSubmissionIdx[runID] = subIdx
	delete(s.runCache, runID)
}

// SetRunStart stages a run-start lifecycle update and returns the recorded
// start time (UTC).
func (s *Store) SetRunStart(runID int, snapshot record.Snapshot) time.Time {
	t := time.Now().UTC()
	hostname, _ := os.Hostname()
	s.pending.setRunStarts[runID] = RunStart{Time: t, Snapshot: snapshot, Hostname: hostname}
	delete(s.runCache, runID)
	return t
}

// SetRunEnd stages a run-end lifecycle update and returns the recorded end
// time (UTC).
func (s *Store) SetRunEnd(runID, exitCode int, success bool, snapshot record.Snapshot) time.Time {
	t := time.Now().UTC()
	s.pending.setRunEnds[runID] = RunEnd{Time: t, Snapshot: snapshot, ExitCode: exitCode, Success: success}
	delete(s.runCache, runID)
	return t
}

// SetRunSkip stages the skip flag for a run.
func (s *Store) SetRunSkip(runID int) {
	s.pending.setRunSkips = append(s.pending.setRunSkips, runID)
	delete(s.runCache, runID)
}

// SetJobscriptMetadata stages scheduler-side metadata for one jobscript of a
// submission. Fields merge over any metadata staged earlier.
func (s *Store) SetJobscriptMetadata(subIdx, jsIdx int, meta record.JobscriptMeta) {
	if s.pending.setJobscriptMeta[subIdx] == nil {
		s.pending.setJobscriptMeta[subIdx] = map[int]record.JobscriptMeta{}
	}
	entry := s.pending.setJobscriptMeta[subIdx][jsIdx]
	if entry == nil {
		entry = record.JobscriptMeta{}
		s.pending.setJobscriptMeta[subIdx][jsIdx] = entry
	}
	for k, v := range meta {
		entry[k] = v
	}
}

// AddSetParameter stages a new parameter with its value already set, and
// returns its allocated ID.
func (s *Store) AddSetParameter(ctx context.Context, data any, source record.ParamSource) (int, error) {
	return s.addParameter(ctx, true, data, nil, source)
}

// AddUnsetParameter stages a new unset parameter and returns its allocated
// ID.
func (s *Store) AddUnsetParameter(ctx context.Context, source record.ParamSource) (int, error) {
	return s.addParameter(ctx, false, nil, nil, source)
}

// AddFileParameter stages a new parameter backed by a file reference.
func (s *Store) AddFileParameter(ctx context.Context, ref record.FileRef, source record.ParamSource) (int, error) {
	return s.addParameter(ctx, true, nil, &ref, source)
}

func (s *Store) addParameter(ctx context.Context, isSet bool, data any, file *record.FileRef, source record.ParamSource) (int, error) {
	newID, err := s.NumParameters(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("adding store parameter", "id", newID, "is_set", isSet)
	s.pending.addParameters[newID] = record.Parameter{
		ID:        newID,
		IsPending: true,
		IsSet:     isSet,
		Data:      data,
		File:      file,
		Source:    source,
	}
	return newID, nil
}

// AddFile stages a file for the workflow content area and, when source is
// non-nil, a file parameter pointing at it.
func (s *Store) AddFile(ctx context.Context, ref record.FileRef, source *record.ParamSource) (int, error) {
	s.pending.addFiles = append(s.pending.addFiles, ref)
	if source == nil {
		return -1, nil
	}
	return s.AddFileParameter(ctx, ref, *source)
}

// SetParameterValue stages the unset→set transition for an existing
// parameter. Re-setting an already-set parameter is an invariant violation,
// raised here so the stage is never left inconsistent.
func (s *Store) SetParameterValue(ctx context.Context, paramID int, value any) error {
	return s.setParameter(ctx, paramID, SetParam{Value: value})
}

// SetParameterFile stages the unset→set transition to a file reference.
func (s *Store) SetParameterFile(ctx context.Context, paramID int, ref record.FileRef) error {
	return s.setParameter(ctx, paramID, SetParam{File: &ref})
}

func (s *Store) setParameter(ctx context.Context, paramID int, val SetParam) error {
	statuses, err := s.GetParameterSetStatuses(ctx, []int{paramID})
	if err != nil {
		return err
	}
	if statuses[0] {
		return alreadySetError(paramID)
	}
	if _, staged := s.pending.setParameters[paramID]; staged {
		return alreadySetError(paramID)
	}
	s.logger.Debug("setting store parameter value", "id", paramID)
	s.pending.setParameters[paramID] = val
	delete(s.paramCache, paramID)
	return nil
}

// UpdateParamSource stages provenance amendments for parameters; each merges
// with the existing source rather than replacing it.
func (s *Store) UpdateParamSource(sources map[int]record.ParamSource) {
	for id, src := range sources {
		if existing, ok := s.pending.updateParamSources[id]; ok {
			src = existing.Merge(src)
		}
		s.pending.updateParamSources[id] = src
		delete(s.paramSrcCache, id)
	}
}

// UpdateLoopNumIters stages replacement added-iteration counts for a loop.
// Counts grow monotonically per parent-index key.
func (s *Store) UpdateLoopNumIters(index int, entries []record.LoopIterEntry) {
	s.logger.Debug("updating loop num added iterations", "index", index)
	s.pending.updateLoopNumIters[index] = entries
}

// UpdateLoopParents stages replacement parent names and added-iteration
// counts for a loop; both change together when an outer loop is added around
// an existing one.
func (s *Store) UpdateLoopParents(index int, parents []string, entries []record.LoopIterEntry) {
	s.logger.Debug("updating loop parents", "index", index, "parents", parents)
	s.pending.updateLoopNumIters[index] = entries
	s.pending.updateLoopParents[index] = parents
}

// UpdateIterationLoopIdx stages loop-position entries for an iteration.
func (s *Store) UpdateIterationLoopIdx(iterID int, loopIdx map[string]int) {
	if s.pending.updateLoopIdx[iterID] == nil {
		s.pending.updateLoopIdx[iterID] = map[string]int{}
	}
	for k, v := range loopIdx {
		s.pending.updateLoopIdx[iterID][k] = v
	}
	delete(s.iterCache, iterID)
}

// AddTemplateComponents stages template components not yet present in the
// persisted document; existing hashes are left untouched.
func (s *Store) AddTemplateComponents(ctx context.Context, comps record.TemplateComponents) error {
	all, err := s.GetTemplateComponents(ctx)
	if err != nil {
		return err
	}
	for typ, byHash := range comps {
		existing, ok := all[typ]
		if !ok {
			s.pending.addTemplateComponents[typ] = byHash
			continue
		}
		for hash, doc := range byHash {
			if _, ok := existing[hash]; !ok {
				if s.pending.addTemplateComponents[typ] == nil {
					s.pending.addTemplateComponents[typ] = map[string]map[string]any{}
				}
				s.pending.addTemplateComponents[typ][hash] = doc
			}
		}
	}
	return nil
}
