package record

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestTask_AppendElementIDs_CopyOnWrite(t *testing.T) {
	orig := Task{ID: 0, Index: 0, ElementIDs: []int{0, 1}}

	updated := orig.AppendElementIDs([]int{2, 3})

	if got := updated.ElementIDs; !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Errorf("updated.ElementIDs = %v, want [0 1 2 3]", got)
	}
	if got := orig.ElementIDs; !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("original mutated: ElementIDs = %v, want [0 1]", got)
	}
}

func TestElement_AppendIterationIDs_CopyOnWrite(t *testing.T) {
	orig := Element{ID: 4, TaskID: 1, IterationIDs: []int{7}}

	updated := orig.AppendIterationIDs([]int{9, 11})

	if got := updated.IterationIDs; !reflect.DeepEqual(got, []int{7, 9, 11}) {
		t.Errorf("updated.IterationIDs = %v, want [7 9 11]", got)
	}
	if len(orig.IterationIDs) != 1 {
		t.Errorf("original mutated: IterationIDs = %v", orig.IterationIDs)
	}
}

func TestIteration_AppendRunIDs(t *testing.T) {
	orig := Iteration{
		ID:     2,
		RunIDs: map[int][]int{0: {5}},
	}

	updated := orig.AppendRunIDs(map[int][]int{0: {6}, 1: {7, 8}})

	want := map[int][]int{0: {5, 6}, 1: {7, 8}}
	if !reflect.DeepEqual(updated.RunIDs, want) {
		t.Errorf("updated.RunIDs = %v, want %v", updated.RunIDs, want)
	}
	if !reflect.DeepEqual(orig.RunIDs, map[int][]int{0: {5}}) {
		t.Errorf("original mutated: RunIDs = %v", orig.RunIDs)
	}
}

func TestIteration_UpdateLoopIdx_Merges(t *testing.T) {
	orig := Iteration{ID: 1, LoopIdx: map[string]int{"outer": 0}}

	updated := orig.UpdateLoopIdx(map[string]int{"inner": 2})

	want := map[string]int{"outer": 0, "inner": 2}
	if !reflect.DeepEqual(updated.LoopIdx, want) {
		t.Errorf("updated.LoopIdx = %v, want %v", updated.LoopIdx, want)
	}
	if len(orig.LoopIdx) != 1 {
		t.Errorf("original mutated: LoopIdx = %v", orig.LoopIdx)
	}
}

func TestIteration_SetRunsInitialised(t *testing.T) {
	orig := Iteration{ID: 3}
	updated := orig.SetRunsInitialised()

	if !updated.RunsInitialised {
		t.Error("updated.RunsInitialised = false, want true")
	}
	if orig.RunsInitialised {
		t.Error("original mutated: RunsInitialised = true")
	}
}

func TestRun_Update_PartialFields(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subIdx := 2
	orig := Run{ID: 9, ActionIdx: 1, DataIdx: DataIndex{"inputs.x": SingleRef(3)}}

	updated := orig.Update(RunUpdate{
		SubmissionIdx: &subIdx,
		StartTime:     &start,
		RunHostname:   "node001",
	})

	if updated.SubmissionIdx == nil || *updated.SubmissionIdx != 2 {
		t.Errorf("SubmissionIdx = %v, want 2", updated.SubmissionIdx)
	}
	if updated.StartTime == nil || !updated.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", updated.StartTime, start)
	}
	if updated.RunHostname != "node001" {
		t.Errorf("RunHostname = %q, want node001", updated.RunHostname)
	}
	// untouched fields survive
	if updated.ActionIdx != 1 {
		t.Errorf("ActionIdx = %d, want 1", updated.ActionIdx)
	}
	if orig.SubmissionIdx != nil || orig.StartTime != nil {
		t.Error("original mutated by Update")
	}
}

func TestRunUpdate_IsZero(t *testing.T) {
	if !(RunUpdate{}).IsZero() {
		t.Error("empty update should be zero")
	}
	skip := true
	if (RunUpdate{Skip: &skip}).IsZero() {
		t.Error("update with skip should not be zero")
	}
}

func TestParamRef_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ref  ParamRef
		json string
	}{
		{"single", SingleRef(12), "12"},
		{"grouped", GroupRef([]int{3, 4, 5}), "[3,4,5]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ref)
			if err != nil {
				t.Fatalf("Marshal() failed: %v", err)
			}
			if string(data) != tt.json {
				t.Errorf("Marshal() = %s, want %s", data, tt.json)
			}
			var back ParamRef
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() failed: %v", err)
			}
			if !back.Equal(tt.ref) {
				t.Errorf("round trip = %+v, want %+v", back, tt.ref)
			}
		})
	}
}

func TestDecodeTime_RoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 14, 9, 30, 15, 123456000, time.UTC)
	encoded := EncodeTime(&now)
	decoded, err := DecodeTime(encoded)
	if err != nil {
		t.Fatalf("DecodeTime() failed: %v", err)
	}
	if !decoded.Equal(now) {
		t.Errorf("round trip = %v, want %v", decoded, now)
	}

	nilT, err := DecodeTime("")
	if err != nil || nilT != nil {
		t.Errorf("DecodeTime(\"\") = (%v, %v), want (nil, nil)", nilT, err)
	}
}
