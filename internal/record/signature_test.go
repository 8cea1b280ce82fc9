package record

import (
	"testing"
)

func TestResourceSpec_Signature_Stable(t *testing.T) {
	a := ResourceSpec{
		NumCores:      8,
		Scheduler:     "slurm",
		SchedulerArgs: map[string]string{"--partition": "compute", "--qos": "normal"},
	}
	b := ResourceSpec{
		NumCores:      8,
		Scheduler:     "slurm",
		SchedulerArgs: map[string]string{"--qos": "normal", "--partition": "compute"},
	}

	if a.Signature() != b.Signature() {
		t.Error("equal specs must share a signature regardless of map order")
	}

	c := a
	c.NumCores = 16
	if a.Signature() == c.Signature() {
		t.Error("distinct specs must not collide")
	}
}

func TestSignatureSet_FirstAppearanceOrder(t *testing.T) {
	set := NewSignatureSet()
	small := ResourceSpec{NumCores: 1}
	big := ResourceSpec{NumCores: 32, Scheduler: "sge"}

	if idx := set.Index(small); idx != 0 {
		t.Errorf("first spec index = %d, want 0", idx)
	}
	if idx := set.Index(big); idx != 1 {
		t.Errorf("second spec index = %d, want 1", idx)
	}
	// repeated spec returns the existing index
	if idx := set.Index(small); idx != 0 {
		t.Errorf("repeat spec index = %d, want 0", idx)
	}
	if set.Len() != 2 {
		t.Errorf("Len() = %d, want 2", set.Len())
	}

	specs := set.Specs()
	if specs[0].NumCores != 1 || specs[1].NumCores != 32 {
		t.Errorf("specs out of order: %+v", specs)
	}
}

func TestMarshalCanonical_SortedKeysNoHTMLEscape(t *testing.T) {
	got, err := marshalCanonical(map[string]any{
		"b":    1,
		"a":    "x<y&z",
		"list": []any{"p", 2, true},
	})
	if err != nil {
		t.Fatalf("marshalCanonical() failed: %v", err)
	}
	want := `{"a":"x<y&z","b":1,"list":["p",2,true]}`
	if string(got) != want {
		t.Errorf("marshalCanonical() = %s, want %s", got, want)
	}
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	if _, err := marshalCanonical(map[string]any{"f": 1.5}); err == nil {
		t.Error("floats must be rejected")
	}
	if _, err := marshalCanonical(nil); err == nil {
		t.Error("null must be rejected")
	}
}
