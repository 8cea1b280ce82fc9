package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/calderwm/gridflow/internal/record"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, backend string) *Store {
	t.Helper()
	s, err := Create(context.Background(), CreateOptions{
		Path:    t.TempDir(),
		Name:    "wf",
		Backend: backend,
		Template: map[string]any{
			"name": "wf",
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAllocatedIDsAreDenseAndMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "json")

	var ids []int
	for i := 0; i < 3; i++ {
		id, err := s.AddSetParameter(ctx, "v", record.ParamSource{Type: "local_input"})
		if err != nil {
			t.Fatalf("add parameter: %v", err)
		}
		ids = append(ids, id)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	// IDs keep counting up after a commit, with no gaps.
	for i := 0; i < 2; i++ {
		id, err := s.AddSetParameter(ctx, "v", record.ParamSource{Type: "local_input"})
		if err != nil {
			t.Fatalf("add parameter: %v", err)
		}
		ids = append(ids, id)
	}
	want := []int{0, 1, 2, 3, 4}
	if !slices.Equal(ids, want) {
		t.Errorf("allocated IDs = %v, want %v", ids, want)
	}
}

func TestReadYourWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "json")

	taskID, err := s.AddTask(ctx, 0, map[string]any{"schema": "t1"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	elemID, err := s.AddElement(ctx, taskID, 0, map[string]int{"p": 0}, nil)
	if err != nil {
		t.Fatalf("add element: %v", err)
	}
	iterID, err := s.AddElementIteration(ctx, elemID, record.DataIndex{"inputs.p": record.SingleRef(0)}, []string{"p"}, nil)
	if err != nil {
		t.Fatalf("add iteration: %v", err)
	}
	runID, err := s.AddRun(ctx, iterID, 0, []int{0}, record.DataIndex{"inputs.p": record.SingleRef(0)}, nil)
	if err != nil {
		t.Fatalf("add run: %v", err)
	}

	// Every pending entity is visible before any commit.
	tasks, err := s.GetTasksByID(ctx, []int{taskID})
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !tasks[0].IsPending {
		t.Error("pending task not flagged as pending")
	}
	if !slices.Equal(tasks[0].ElementIDs, []int{elemID}) {
		t.Errorf("task element IDs = %v, want [%d]", tasks[0].ElementIDs, elemID)
	}
	elems, err := s.GetElements(ctx, []int{elemID})
	if err != nil {
		t.Fatalf("get element: %v", err)
	}
	if !slices.Equal(elems[0].IterationIDs, []int{iterID}) {
		t.Errorf("element iteration IDs = %v, want [%d]", elems[0].IterationIDs, iterID)
	}
	iters, err := s.GetElementIterations(ctx, []int{iterID})
	if err != nil {
		t.Fatalf("get iteration: %v", err)
	}
	if !slices.Equal(iters[0].RunIDs[0], []int{runID}) {
		t.Errorf("iteration run IDs = %v, want [%d]", iters[0].RunIDs[0], runID)
	}

	// A pending partial update merges over the pending creation.
	s.SetRunSkip(runID)
	skipped, err := s.GetRunSkipped(ctx, runID)
	if err != nil {
		t.Fatalf("get run skipped: %v", err)
	}
	if !skipped {
		t.Error("pending skip not visible")
	}
}

func TestUnknownIDError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "json")

	_, err := s.GetTasksByID(ctx, []int{99})
	if !IsUnknownID(err) {
		t.Errorf("GetTasksByID(99) error = %v, want UNKNOWN_ID", err)
	}
}

func TestParameterSetTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "json")

	id, err := s.AddUnsetParameter(ctx, record.ParamSource{Type: "EAR_output"})
	if err != nil {
		t.Fatalf("add parameter: %v", err)
	}
	if err := s.SetParameterValue(ctx, id, "first"); err != nil {
		t.Fatalf("first set: %v", err)
	}
	err = s.SetParameterValue(ctx, id, "second")
	if !IsAlreadySet(err) {
		t.Fatalf("second set error = %v, want ALREADY_SET", err)
	}
	// The failed attempt must not change the value.
	params, err := s.GetParameters(ctx, []int{id})
	if err != nil {
		t.Fatalf("get parameter: %v", err)
	}
	if params[0].Data != "first" {
		t.Errorf("parameter data = %v, want %q", params[0].Data, "first")
	}

	// Still rejected after commit.
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	err = s.SetParameterValue(ctx, id, "third")
	if !IsAlreadySet(err) {
		t.Errorf("post-commit set error = %v, want ALREADY_SET", err)
	}
}

func TestAddLoopBadRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "json")

	for i := 0; i < 3; i++ {
		if _, err := s.AddTask(ctx, i, nil); err != nil {
			t.Fatalf("add task: %v", err)
		}
	}
	_, err := s.AddLoop(ctx, record.Loop{}, []int{0, 2}, nil)
	if !IsBadLoopRange(err) {
		t.Errorf("AddLoop([0,2]) error = %v, want BAD_LOOP_RANGE", err)
	}
	if _, err := s.AddLoop(ctx, record.Loop{}, []int{1, 2}, nil); err != nil {
		t.Errorf("AddLoop([1,2]) error = %v, want nil", err)
	}
}

func commitRoundTrip(t *testing.T, backend string) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Create(ctx, CreateOptions{Path: dir, Name: "wf", Backend: backend}, testLogger())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	taskID, err := s.AddTask(ctx, 0, map[string]any{"schema": "t1"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	elemID, err := s.AddElement(ctx, taskID, 0, nil, nil)
	if err != nil {
		t.Fatalf("add element: %v", err)
	}
	iterID, err := s.AddElementIteration(ctx, elemID, record.DataIndex{"inputs.x": record.SingleRef(0)}, []string{"x"}, nil)
	if err != nil {
		t.Fatalf("add iteration: %v", err)
	}
	runID, err := s.AddRun(ctx, iterID, 0, []int{0}, record.DataIndex{"inputs.x": record.SingleRef(0)}, nil)
	if err != nil {
		t.Fatalf("add run: %v", err)
	}
	paramID, err := s.AddSetParameter(ctx, "hello", record.ParamSource{Type: "local_input"})
	if err != nil {
		t.Fatalf("add parameter: %v", err)
	}

	wantIters, err := s.GetElementIterations(ctx, []int{iterID})
	if err != nil {
		t.Fatalf("get pending iteration: %v", err)
	}

	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if s.HasPending() {
		t.Errorf("pending stage not empty after save: %v", s.WherePending())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh store over the same directory sees everything.
	s2, err := Open(ctx, filepath.Join(dir, "wf"), testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	tasks, err := s2.GetTasksByID(ctx, []int{taskID})
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if tasks[0].IsPending {
		t.Error("reloaded task flagged as pending")
	}
	if !slices.Equal(tasks[0].ElementIDs, []int{elemID}) {
		t.Errorf("reloaded task element IDs = %v, want [%d]", tasks[0].ElementIDs, elemID)
	}
	iters, err := s2.GetElementIterations(ctx, []int{iterID})
	if err != nil {
		t.Fatalf("get iteration: %v", err)
	}
	got := iters[0]
	got.IsPending = wantIters[0].IsPending
	if !reflect.DeepEqual(got.DataIdx, wantIters[0].DataIdx) {
		t.Errorf("reloaded data index = %v, want %v", got.DataIdx, wantIters[0].DataIdx)
	}
	if !slices.Equal(got.RunIDs[0], []int{runID}) {
		t.Errorf("reloaded run IDs = %v, want [%d]", got.RunIDs[0], runID)
	}
	params, err := s2.GetParameters(ctx, []int{paramID})
	if err != nil {
		t.Fatalf("get parameter: %v", err)
	}
	if !params[0].IsSet || params[0].Data != "hello" {
		t.Errorf("reloaded parameter = %+v, want set %q", params[0], "hello")
	}
}

func TestCommitRoundTripJSON(t *testing.T) {
	commitRoundTrip(t, "json")
}

func TestCommitRoundTripSQLite(t *testing.T) {
	commitRoundTrip(t, "sqlite")
}

func TestSQLiteChunkedArrayParameter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Create(ctx, CreateOptions{Path: dir, Name: "wf", Backend: "sqlite"}, testLogger())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	// Big enough to span multiple chunk rows.
	values := make([]float64, paramChunkLen*2+17)
	for i := range values {
		values[i] = float64(i) * 0.5
	}
	id, err := s.AddSetParameter(ctx, values, record.ParamSource{Type: "local_input"})
	if err != nil {
		t.Fatalf("add parameter: %v", err)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(ctx, filepath.Join(dir, "wf"), testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	params, err := s2.GetParameters(ctx, []int{id})
	if err != nil {
		t.Fatalf("get parameter: %v", err)
	}
	got, ok := params[0].Data.([]float64)
	if !ok {
		t.Fatalf("parameter data type = %T, want []float64", params[0].Data)
	}
	if !slices.Equal(got, values) {
		t.Errorf("chunked array round trip mismatch: got %d values", len(got))
	}
}

func TestGroupCommitStepsFold(t *testing.T) {
	steps := []commitStep{
		{name: "a"}, {name: "b"}, {name: "c"}, {name: "d"}, {name: "e"},
	}
	resMap := map[string][]string{
		"a": {"r1"},
		"b": {"r1", "r2"},
		"c": {"r3"},
		// d declares nothing and rides in whatever group is current.
		"e": {"r3"},
	}
	groups := groupCommitSteps(steps, resMap)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	names := func(g commitGroup) []string {
		var out []string
		for _, st := range g.steps {
			out = append(out, st.name)
		}
		return out
	}
	if !slices.Equal(names(groups[0]), []string{"a", "b"}) {
		t.Errorf("group 0 steps = %v, want [a b]", names(groups[0]))
	}
	if !slices.Equal(groups[0].resources, []string{"r1", "r2"}) {
		t.Errorf("group 0 resources = %v, want [r1 r2]", groups[0].resources)
	}
	if !slices.Equal(names(groups[1]), []string{"c", "d", "e"}) {
		t.Errorf("group 1 steps = %v, want [c d e]", names(groups[1]))
	}
}

func TestJSONResourceGrouping(t *testing.T) {
	// The JSON encoding alternates between its three documents; the fold
	// must produce one contiguous scope per document stretch, not one scope
	// per step.
	groups := groupCommitSteps(commitSteps, jsonResourceMap)
	want := [][]string{
		{resMetadata},    // tasks, loops
		{resSubmissions}, // submissions, submission parts
		{resMetadata},    // element/iteration/run steps
		{resSubmissions}, // jobscript metadata
		{resParameters},  // parameters, set parameters
		{resMetadata},    // files, template components
		{resParameters},  // parameter sources
		{resMetadata},    // loop updates
	}
	if len(groups) != len(want) {
		t.Fatalf("got %d groups, want %d", len(groups), len(want))
	}
	for i, g := range groups {
		if !slices.Equal(g.resources, want[i]) {
			t.Errorf("group %d resources = %v, want %v", i, g.resources, want[i])
		}
	}
}

func TestSQLiteResourceGrouping(t *testing.T) {
	// Every SQLite step shares the one db resource: a commit is a single
	// transaction scope.
	groups := groupCommitSteps(commitSteps, sqliteResourceMap())
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if len(groups[0].steps) != len(commitSteps) {
		t.Errorf("group holds %d steps, want %d", len(groups[0].steps), len(commitSteps))
	}
}

// failingBackend wraps a real backend and fails AppendRuns until cleared,
// for exercising commit retry semantics.
type failingBackend struct {
	Backend
	fail bool
}

func (f *failingBackend) AppendRuns(ctx context.Context, runs []record.Run) error {
	if f.fail {
		return errors.New("simulated append failure")
	}
	return f.Backend.AppendRuns(ctx, runs)
}

func TestCommitFailureRetainsFailingBucket(t *testing.T) {
	ctx := context.Background()
	inner, err := createJSONBackend(t.TempDir(), "wf", record.CreationInfo{WorkflowID: "w"}, nil, nil)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	fb := &failingBackend{Backend: inner, fail: true}
	s := New(fb, testLogger())
	defer s.Close()

	taskID, err := s.AddTask(ctx, 0, nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	elemID, err := s.AddElement(ctx, taskID, 0, nil, nil)
	if err != nil {
		t.Fatalf("add element: %v", err)
	}
	iterID, err := s.AddElementIteration(ctx, elemID, nil, nil, nil)
	if err != nil {
		t.Fatalf("add iteration: %v", err)
	}
	if _, err := s.AddRun(ctx, iterID, 0, nil, nil, nil); err != nil {
		t.Fatalf("add run: %v", err)
	}

	err = s.Save(ctx)
	if !IsCommitFailed(err) {
		t.Fatalf("save error = %v, want COMMIT_FAILED", err)
	}
	// Steps before the failure stay applied; only the failing bucket is
	// retained.
	n, err := inner.NumTasks(ctx)
	if err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if n != 1 {
		t.Errorf("persisted tasks = %d, want 1", n)
	}
	where := s.WherePending()
	if !slices.Contains(where, "add_runs") {
		t.Errorf("pending buckets = %v, want add_runs retained", where)
	}
	if slices.Contains(where, "add_tasks") {
		t.Errorf("pending buckets = %v, add_tasks should be drained", where)
	}

	// A retry after the fault clears resubmits exactly the unapplied work.
	fb.fail = false
	if err := s.Save(ctx); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if s.HasPending() {
		t.Errorf("pending stage not empty after retry: %v", s.WherePending())
	}
	nRuns, err := inner.NumRuns(ctx)
	if err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if nRuns != 1 {
		t.Errorf("persisted runs = %d, want 1", nRuns)
	}
}
