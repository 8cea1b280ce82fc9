package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/calderwm/gridflow/internal/record"
)

// Resource labels of the JSON backend. Each label is one document file;
// opening a label for update loads the document, and the final close writes
// it back atomically.
const (
	resMetadata    = "metadata"
	resParameters  = "parameters"
	resSubmissions = "submissions"
)

// jsonTask wraps a task record with the fields the JSON encoding persists
// alongside it: the task template and its element sets live next to the
// record instead of inside the workflow template document.
type jsonTask struct {
	record.Task
	Template    map[string]any   `json:"template,omitempty"`
	ElementSets []map[string]any `json:"element_sets,omitempty"`
}

type metadataDoc struct {
	CreationInfo       record.CreationInfo       `json:"creation_info"`
	Template           map[string]any            `json:"template"`
	TemplateComponents record.TemplateComponents `json:"template_components"`
	NumAddedTasks      int                       `json:"num_added_tasks"`
	Tasks              []jsonTask                `json:"tasks"`
	Elements           []record.Element          `json:"elements"`
	Iters              []record.Iteration        `json:"iters"`
	Runs               []record.Run              `json:"runs"`
	Loops              []record.Loop             `json:"loops"`
	Files              []record.FileRef          `json:"files"`
}

type jsonParam struct {
	IsSet bool            `json:"is_set"`
	Data  any             `json:"data,omitempty"`
	File  *record.FileRef `json:"file,omitempty"`
}

type parametersDoc struct {
	Data    map[string]jsonParam          `json:"data"`
	Sources map[string]record.ParamSource `json:"sources"`
}

type submissionsDoc struct {
	Submissions []record.Submission `json:"submissions"`
}

// jsonResource is one reference-counted document handle. The document loads
// on the first open and flushes on the last close if any open in between
// requested update mode.
type jsonResource[T any] struct {
	path   string
	refs   int
	update bool
	doc    *T
}

func (r *jsonResource[T]) open(action ResourceAction) error {
	if r.refs == 0 {
		data, err := os.ReadFile(r.path)
		if err != nil {
			return fmt.Errorf("load %s: %w", r.path, err)
		}
		var doc T
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", r.path, err)
		}
		r.doc = &doc
	}
	if action == ResourceUpdate {
		r.update = true
	}
	r.refs++
	return nil
}

func (r *jsonResource[T]) close() error {
	if r.refs == 0 {
		return fmt.Errorf("close %s: not open", r.path)
	}
	r.refs--
	if r.refs > 0 {
		return nil
	}
	var err error
	if r.update {
		err = writeJSONFile(r.path, r.doc)
	}
	r.doc = nil
	r.update = false
	return err
}

// with opens the resource around fn. Nested opens under a commit's update
// handle ride on the same in-memory document.
func (r *jsonResource[T]) with(action ResourceAction, fn func(doc *T) error) error {
	if err := r.open(action); err != nil {
		return err
	}
	ferr := fn(r.doc)
	if cerr := r.close(); ferr == nil {
		ferr = cerr
	}
	return ferr
}

func writeJSONFile(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// jsonBackend is the plain hierarchical document encoding: three JSON files
// in the workflow directory plus an artifacts area for file-reference
// parameter payloads.
type jsonBackend struct {
	dir    string
	meta   jsonResource[metadataDoc]
	params jsonResource[parametersDoc]
	subs   jsonResource[submissionsDoc]
}

var jsonResourceMap = map[string][]string{
	"commit_tasks":               {resMetadata},
	"commit_loops":               {resMetadata},
	"commit_submissions":         {resSubmissions},
	"commit_submission_parts":    {resSubmissions},
	"commit_elem_ids":            {resMetadata},
	"commit_elements":            {resMetadata},
	"commit_element_sets":        {resMetadata},
	"commit_iter_ids":            {resMetadata},
	"commit_iterations":          {resMetadata},
	"commit_iter_run_ids":        {resMetadata},
	"commit_runs_initialised":    {resMetadata},
	"commit_runs":                {resMetadata},
	"commit_run_submission_idx":  {resMetadata},
	"commit_run_skips":           {resMetadata},
	"commit_run_starts":          {resMetadata},
	"commit_run_ends":            {resMetadata},
	"commit_jobscript_meta":      {resSubmissions},
	"commit_parameters":          {resParameters},
	"commit_set_parameters":      {resParameters},
	"commit_files":               {resMetadata},
	"commit_template_components": {resMetadata},
	"commit_param_sources":       {resParameters},
	"commit_loop_idx":            {resMetadata},
	"commit_loop_num_iters":      {resMetadata},
	"commit_loop_parents":        {resMetadata},
}

func newJSONBackend(dir string) *jsonBackend {
	b := &jsonBackend{dir: dir}
	b.meta.path = filepath.Join(dir, "metadata.json")
	b.params.path = filepath.Join(dir, "parameters.json")
	b.subs.path = filepath.Join(dir, "submissions.json")
	return b
}

// createJSONBackend writes an empty workflow directory in the JSON encoding.
func createJSONBackend(path, name string, info record.CreationInfo, template map[string]any, tc record.TemplateComponents) (Backend, error) {
	dir := filepath.Join(path, name)
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, err
	}
	if template == nil {
		template = map[string]any{}
	}
	if tc == nil {
		tc = record.TemplateComponents{}
	}
	b := newJSONBackend(dir)
	meta := metadataDoc{
		CreationInfo:       info,
		Template:           template,
		TemplateComponents: tc,
	}
	if err := writeJSONFile(b.meta.path, &meta); err != nil {
		return nil, err
	}
	params := parametersDoc{
		Data:    map[string]jsonParam{},
		Sources: map[string]record.ParamSource{},
	}
	if err := writeJSONFile(b.params.path, &params); err != nil {
		return nil, err
	}
	if err := writeJSONFile(b.subs.path, &submissionsDoc{}); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *jsonBackend) Name() string                     { return "json" }
func (b *jsonBackend) ResourceMap() map[string][]string { return jsonResourceMap }

func (b *jsonBackend) OpenResource(ctx context.Context, label string, action ResourceAction) error {
	switch label {
	case resMetadata:
		return b.meta.open(action)
	case resParameters:
		return b.params.open(action)
	case resSubmissions:
		return b.subs.open(action)
	}
	return fmt.Errorf("unknown resource %q", label)
}

func (b *jsonBackend) CloseResource(label string) error {
	switch label {
	case resMetadata:
		return b.meta.close()
	case resParameters:
		return b.params.close()
	case resSubmissions:
		return b.subs.close()
	}
	return fmt.Errorf("unknown resource %q", label)
}

func (b *jsonBackend) Close() error { return nil }

func (b *jsonBackend) NumTasks(ctx context.Context) (int, error) {
	var n int
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		n = len(doc.Tasks)
		return nil
	})
	return n, err
}

func (b *jsonBackend) NumAddedTasks(ctx context.Context) (int, error) {
	var n int
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		n = doc.NumAddedTasks
		return nil
	})
	return n, err
}

func (b *jsonBackend) NumElements(ctx context.Context) (int, error) {
	var n int
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		n = len(doc.Elements)
		return nil
	})
	return n, err
}

func (b *jsonBackend) NumIterations(ctx context.Context) (int, error) {
	var n int
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		n = len(doc.Iters)
		return nil
	})
	return n, err
}

func (b *jsonBackend) NumRuns(ctx context.Context) (int, error) {
	var n int
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		n = len(doc.Runs)
		return nil
	})
	return n, err
}

func (b *jsonBackend) NumParameters(ctx context.Context) (int, error) {
	var n int
	err := b.params.with(ResourceRead, func(doc *parametersDoc) error {
		n = len(doc.Data)
		return nil
	})
	return n, err
}

func (b *jsonBackend) NumLoops(ctx context.Context) (int, error) {
	var n int
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		n = len(doc.Loops)
		return nil
	})
	return n, err
}

func (b *jsonBackend) NumSubmissions(ctx context.Context) (int, error) {
	var n int
	err := b.subs.with(ResourceRead, func(doc *submissionsDoc) error {
		n = len(doc.Submissions)
		return nil
	})
	return n, err
}

func (b *jsonBackend) GetTasks(ctx context.Context, ids []int) (map[int]record.Task, error) {
	out := map[int]record.Task{}
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		for _, id := range ids {
			if id < 0 || id >= len(doc.Tasks) {
				return unknownIDError("task", id)
			}
			jt := doc.Tasks[id]
			t := jt.Task
			t.Template = jt.Template
			out[id] = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetLoops(ctx context.Context, ids []int) (map[int]record.Loop, error) {
	out := map[int]record.Loop{}
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		for _, id := range ids {
			if id < 0 || id >= len(doc.Loops) {
				return unknownIDError("loop", id)
			}
			out[id] = doc.Loops[id]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetSubmissions(ctx context.Context, ids []int) (map[int]record.Submission, error) {
	out := map[int]record.Submission{}
	err := b.subs.with(ResourceRead, func(doc *submissionsDoc) error {
		for _, id := range ids {
			if id < 0 || id >= len(doc.Submissions) {
				return unknownIDError("submission", id)
			}
			out[id] = doc.Submissions[id]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetElements(ctx context.Context, ids []int) (map[int]record.Element, error) {
	out := map[int]record.Element{}
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		for _, id := range ids {
			if id < 0 || id >= len(doc.Elements) {
				return unknownIDError("element", id)
			}
			out[id] = doc.Elements[id]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetIterations(ctx context.Context, ids []int) (map[int]record.Iteration, error) {
	out := map[int]record.Iteration{}
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		for _, id := range ids {
			if id < 0 || id >= len(doc.Iters) {
				return unknownIDError("iteration", id)
			}
			out[id] = doc.Iters[id]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetRuns(ctx context.Context, ids []int) (map[int]record.Run, error) {
	out := map[int]record.Run{}
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		for _, id := range ids {
			if id < 0 || id >= len(doc.Runs) {
				return unknownIDError("run", id)
			}
			out[id] = doc.Runs[id]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetParameters(ctx context.Context, ids []int) (map[int]record.Parameter, error) {
	out := map[int]record.Parameter{}
	err := b.params.with(ResourceRead, func(doc *parametersDoc) error {
		for _, id := range ids {
			key := strconv.Itoa(id)
			p, ok := doc.Data[key]
			if !ok {
				return unknownIDError("parameter", id)
			}
			out[id] = record.Parameter{
				ID:     id,
				IsSet:  p.IsSet,
				Data:   p.Data,
				File:   p.File,
				Source: doc.Sources[key],
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetParameterSources(ctx context.Context, ids []int) (map[int]record.ParamSource, error) {
	out := map[int]record.ParamSource{}
	err := b.params.with(ResourceRead, func(doc *parametersDoc) error {
		for _, id := range ids {
			src, ok := doc.Sources[strconv.Itoa(id)]
			if !ok {
				return unknownIDError("parameter", id)
			}
			out[id] = src
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetParameterSetStatuses(ctx context.Context, ids []int) (map[int]bool, error) {
	out := map[int]bool{}
	err := b.params.with(ResourceRead, func(doc *parametersDoc) error {
		for _, id := range ids {
			p, ok := doc.Data[strconv.Itoa(id)]
			if !ok {
				return unknownIDError("parameter", id)
			}
			out[id] = p.IsSet
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) AllParameterIDs(ctx context.Context) ([]int, error) {
	var out []int
	err := b.params.with(ResourceRead, func(doc *parametersDoc) error {
		for key := range doc.Data {
			id, err := strconv.Atoi(key)
			if err != nil {
				return fmt.Errorf("bad parameter key %q: %w", key, err)
			}
			out = append(out, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *jsonBackend) GetTemplateComponents(ctx context.Context) (record.TemplateComponents, error) {
	var tc record.TemplateComponents
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		tc = doc.TemplateComponents.Clone()
		return nil
	})
	return tc, err
}

func (b *jsonBackend) GetTemplate(ctx context.Context) (map[string]any, error) {
	var t map[string]any
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		t = doc.Template
		return nil
	})
	return t, err
}

func (b *jsonBackend) GetCreationInfo(ctx context.Context) (record.CreationInfo, error) {
	var info record.CreationInfo
	err := b.meta.with(ResourceRead, func(doc *metadataDoc) error {
		info = doc.CreationInfo
		return nil
	})
	return info, err
}

func (b *jsonBackend) AppendTasks(ctx context.Context, tasks []record.Task) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		for _, t := range tasks {
			t.IsPending = false
			doc.Tasks = append(doc.Tasks, jsonTask{Task: t, Template: t.Template})
			doc.NumAddedTasks++
		}
		return nil
	})
}

func (b *jsonBackend) AppendLoops(ctx context.Context, loops []record.Loop) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		for _, l := range loops {
			l.IsPending = false
			doc.Loops = append(doc.Loops, l)
		}
		return nil
	})
}

func (b *jsonBackend) AppendSubmissions(ctx context.Context, subs []record.Submission) error {
	return b.subs.with(ResourceUpdate, func(doc *submissionsDoc) error {
		for _, sub := range subs {
			sub.IsPending = false
			doc.Submissions = append(doc.Submissions, sub)
		}
		return nil
	})
}

func (b *jsonBackend) AppendSubmissionParts(ctx context.Context, parts map[int]map[string][]int) error {
	return b.subs.with(ResourceUpdate, func(doc *submissionsDoc) error {
		for subIdx, byTime := range parts {
			if subIdx < 0 || subIdx >= len(doc.Submissions) {
				return unknownIDError("submission", subIdx)
			}
			sub := &doc.Submissions[subIdx]
			if sub.SubmissionParts == nil {
				sub.SubmissionParts = map[string][]int{}
			}
			for ts, jsIndices := range byTime {
				sub.SubmissionParts[ts] = append(sub.SubmissionParts[ts], jsIndices...)
			}
		}
		return nil
	})
}

func (b *jsonBackend) AppendTaskElementIDs(ctx context.Context, taskID int, elemIDs []int) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if taskID < 0 || taskID >= len(doc.Tasks) {
			return unknownIDError("task", taskID)
		}
		doc.Tasks[taskID].ElementIDs = append(doc.Tasks[taskID].ElementIDs, elemIDs...)
		return nil
	})
}

func (b *jsonBackend) AppendElements(ctx context.Context, elems []record.Element) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		for _, e := range elems {
			e.IsPending = false
			doc.Elements = append(doc.Elements, e)
		}
		return nil
	})
}

func (b *jsonBackend) AppendElementSets(ctx context.Context, taskID int, sets []map[string]any) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if taskID < 0 || taskID >= len(doc.Tasks) {
			return unknownIDError("task", taskID)
		}
		doc.Tasks[taskID].ElementSets = append(doc.Tasks[taskID].ElementSets, sets...)
		return nil
	})
}

func (b *jsonBackend) AppendElementIterIDs(ctx context.Context, elemID int, iterIDs []int) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if elemID < 0 || elemID >= len(doc.Elements) {
			return unknownIDError("element", elemID)
		}
		doc.Elements[elemID].IterationIDs = append(doc.Elements[elemID].IterationIDs, iterIDs...)
		return nil
	})
}

func (b *jsonBackend) AppendIterations(ctx context.Context, iters []record.Iteration) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		for _, it := range iters {
			it.IsPending = false
			doc.Iters = append(doc.Iters, it)
		}
		return nil
	})
}

func (b *jsonBackend) AppendIterationRunIDs(ctx context.Context, iterID, actIdx int, runIDs []int) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if iterID < 0 || iterID >= len(doc.Iters) {
			return unknownIDError("iteration", iterID)
		}
		it := &doc.Iters[iterID]
		if it.RunIDs == nil {
			it.RunIDs = map[int][]int{}
		}
		it.RunIDs[actIdx] = append(it.RunIDs[actIdx], runIDs...)
		return nil
	})
}

func (b *jsonBackend) AppendRuns(ctx context.Context, runs []record.Run) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		for _, r := range runs {
			r.IsPending = false
			doc.Runs = append(doc.Runs, r)
		}
		return nil
	})
}

func (b *jsonBackend) SetIterationRunsInitialised(ctx context.Context, iterID int) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if iterID < 0 || iterID >= len(doc.Iters) {
			return unknownIDError("iteration", iterID)
		}
		doc.Iters[iterID].RunsInitialised = true
		return nil
	})
}

func (b *jsonBackend) UpdateRunSubmissionIdxs(ctx context.Context, subIdxs map[int]int) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		for runID, subIdx := range subIdxs {
			if runID < 0 || runID >= len(doc.Runs) {
				return unknownIDError("run", runID)
			}
			v := subIdx
			doc.Runs[runID].SubmissionIdx = &v
		}
		return nil
	})
}

func (b *jsonBackend) UpdateRunStart(ctx context.Context, runID int, start RunStart) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if runID < 0 || runID >= len(doc.Runs) {
			return unknownIDError("run", runID)
		}
		r := &doc.Runs[runID]
		t := start.Time
		r.StartTime = &t
		r.SnapshotStart = start.Snapshot
		r.RunHostname = start.Hostname
		return nil
	})
}

func (b *jsonBackend) UpdateRunEnd(ctx context.Context, runID int, end RunEnd) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if runID < 0 || runID >= len(doc.Runs) {
			return unknownIDError("run", runID)
		}
		r := &doc.Runs[runID]
		t := end.Time
		ec := end.ExitCode
		suc := end.Success
		r.EndTime = &t
		r.SnapshotEnd = end.Snapshot
		r.ExitCode = &ec
		r.Success = &suc
		return nil
	})
}

func (b *jsonBackend) UpdateRunSkip(ctx context.Context, runID int) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if runID < 0 || runID >= len(doc.Runs) {
			return unknownIDError("run", runID)
		}
		doc.Runs[runID].Skip = true
		return nil
	})
}

func (b *jsonBackend) UpdateJobscriptMeta(ctx context.Context, meta map[int]map[int]record.JobscriptMeta) error {
	return b.subs.with(ResourceUpdate, func(doc *submissionsDoc) error {
		for subIdx, byJs := range meta {
			if subIdx < 0 || subIdx >= len(doc.Submissions) {
				return unknownIDError("submission", subIdx)
			}
			sub := &doc.Submissions[subIdx]
			for jsIdx, m := range byJs {
				if jsIdx < 0 || jsIdx >= len(sub.Jobscripts) {
					return unknownIDError("jobscript", jsIdx)
				}
				js := &sub.Jobscripts[jsIdx]
				if js.Metadata == nil {
					js.Metadata = record.JobscriptMeta{}
				}
				for k, v := range m {
					js.Metadata[k] = v
				}
			}
		}
		return nil
	})
}

func (b *jsonBackend) AppendParameters(ctx context.Context, params []record.Parameter) error {
	return b.params.with(ResourceUpdate, func(doc *parametersDoc) error {
		for _, p := range params {
			key := strconv.Itoa(p.ID)
			doc.Data[key] = jsonParam{IsSet: p.IsSet, Data: p.Data, File: p.File}
			doc.Sources[key] = p.Source
		}
		return nil
	})
}

func (b *jsonBackend) SetParameterValues(ctx context.Context, values map[int]SetParam) error {
	return b.params.with(ResourceUpdate, func(doc *parametersDoc) error {
		for id, val := range values {
			key := strconv.Itoa(id)
			p, ok := doc.Data[key]
			if !ok {
				return unknownIDError("parameter", id)
			}
			if p.IsSet {
				return alreadySetError(id)
			}
			p.IsSet = true
			if val.File != nil {
				p.File = val.File
				p.Data = nil
			} else {
				p.Data = val.Value
				p.File = nil
			}
			doc.Data[key] = p
		}
		return nil
	})
}

func (b *jsonBackend) AppendFiles(ctx context.Context, files []record.FileRef) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		doc.Files = append(doc.Files, files...)
		return nil
	})
}

func (b *jsonBackend) UpdateTemplateComponents(ctx context.Context, tc record.TemplateComponents) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if doc.TemplateComponents == nil {
			doc.TemplateComponents = record.TemplateComponents{}
		}
		for typ, byHash := range tc {
			if doc.TemplateComponents[typ] == nil {
				doc.TemplateComponents[typ] = map[string]map[string]any{}
			}
			for hash, comp := range byHash {
				doc.TemplateComponents[typ][hash] = comp
			}
		}
		return nil
	})
}

func (b *jsonBackend) UpdateParameterSources(ctx context.Context, sources map[int]record.ParamSource) error {
	return b.params.with(ResourceUpdate, func(doc *parametersDoc) error {
		for id, src := range sources {
			key := strconv.Itoa(id)
			cur, ok := doc.Sources[key]
			if !ok {
				return unknownIDError("parameter", id)
			}
			doc.Sources[key] = cur.Merge(src)
		}
		return nil
	})
}

func (b *jsonBackend) UpdateIterationLoopIdx(ctx context.Context, iterID int, loopIdx map[string]int) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if iterID < 0 || iterID >= len(doc.Iters) {
			return unknownIDError("iteration", iterID)
		}
		it := &doc.Iters[iterID]
		if it.LoopIdx == nil {
			it.LoopIdx = map[string]int{}
		}
		for name, pos := range loopIdx {
			it.LoopIdx[name] = pos
		}
		return nil
	})
}

func (b *jsonBackend) UpdateLoopNumIters(ctx context.Context, index int, entries []record.LoopIterEntry) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if index < 0 || index >= len(doc.Loops) {
			return unknownIDError("loop", index)
		}
		doc.Loops[index].NumAddedIterations = entries
		return nil
	})
}

func (b *jsonBackend) UpdateLoopParents(ctx context.Context, index int, parents []string) error {
	return b.meta.with(ResourceUpdate, func(doc *metadataDoc) error {
		if index < 0 || index >= len(doc.Loops) {
			return unknownIDError("loop", index)
		}
		doc.Loops[index].Parents = parents
		return nil
	})
}
