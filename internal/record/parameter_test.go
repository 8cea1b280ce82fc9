package record

import (
	"testing"
)

func TestParameter_SetData_OneWay(t *testing.T) {
	p := Parameter{ID: 5, Source: ParamSource{Type: "default"}}

	set, err := p.SetData(42)
	if err != nil {
		t.Fatalf("SetData() failed: %v", err)
	}
	if !set.IsSet {
		t.Error("IsSet = false after SetData")
	}
	if set.Data != 42 {
		t.Errorf("Data = %v, want 42", set.Data)
	}

	// re-setting is an error, and the value is unchanged
	if _, err := set.SetData(43); err == nil {
		t.Error("second SetData() should fail")
	}
	if set.Data != 42 {
		t.Errorf("Data changed after failed set: %v", set.Data)
	}
}

func TestParameter_SetFile(t *testing.T) {
	p := Parameter{ID: 2}

	set, err := p.SetFile(FileRef{Name: "out.dat", Path: "artifacts/out.dat", Store: true})
	if err != nil {
		t.Fatalf("SetFile() failed: %v", err)
	}
	if set.File == nil || set.File.Path != "artifacts/out.dat" {
		t.Errorf("File = %+v", set.File)
	}
	if set.Data != nil {
		t.Errorf("Data should be nil for file parameter, got %v", set.Data)
	}
	if _, err := set.SetFile(FileRef{Name: "again"}); err == nil {
		t.Error("second SetFile() should fail")
	}
}

func TestParamSource_Merge(t *testing.T) {
	run := 7
	base := ParamSource{Type: "EAR_output", RunID: &run}
	elem := 3
	merged := base.Merge(ParamSource{ElementIdx: &elem})

	if merged.Type != "EAR_output" {
		t.Errorf("Type = %q, want EAR_output", merged.Type)
	}
	if merged.RunID == nil || *merged.RunID != 7 {
		t.Errorf("RunID = %v, want 7", merged.RunID)
	}
	if merged.ElementIdx == nil || *merged.ElementIdx != 3 {
		t.Errorf("ElementIdx = %v, want 3", merged.ElementIdx)
	}
	// merge amends, never clears
	if base.RunID == nil {
		t.Error("original source mutated")
	}
}

func TestParameter_UpdateSource(t *testing.T) {
	p := Parameter{ID: 1, Source: ParamSource{Type: "local_input"}}
	act := 0
	updated := p.UpdateSource(ParamSource{ActionIdx: &act})

	if updated.Source.Type != "local_input" {
		t.Errorf("Type = %q, want local_input", updated.Source.Type)
	}
	if updated.Source.ActionIdx == nil {
		t.Error("ActionIdx not merged")
	}
	if p.Source.ActionIdx != nil {
		t.Error("original mutated")
	}
}
