package rules

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestResultConstruction(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r := Success()
		if !r.IsSuccess() || r.IsFail() {
			t.Fatal("expected success")
		}
		if len(r.Errors()) != 0 {
			t.Errorf("expected no errors, got %v", r.Errors())
		}
		if r.FirstError() != "" {
			t.Errorf("expected empty first error, got %q", r.FirstError())
		}
	})

	t.Run("single string", func(t *testing.T) {
		r, err := NewResult("Сумма превышает лимит")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !r.IsFail() {
			t.Fatal("expected failure")
		}
		if got := r.Errors(); len(got) != 1 || got[0] != "Сумма превышает лимит" {
			t.Errorf("unexpected errors: %v", got)
		}
		if r.FirstError() != "Сумма превышает лимит" {
			t.Errorf("unexpected first error: %q", r.FirstError())
		}
	})

	t.Run("no argument", func(t *testing.T) {
		r, err := NewResult(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !r.IsSuccess() {
			t.Error("expected success for nil")
		}
	})

	t.Run("list of strings", func(t *testing.T) {
		r, err := NewResult([]any{"A", "B"}, 0, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := r.ErrorIndices(); len(got) != 2 || got[1] != 2 {
			t.Errorf("unexpected indices: %v", got)
		}
	})

	invalid := []struct {
		name  string
		value any
	}{
		{"bool true", true},
		{"bool false", false},
		{"set", map[string]struct{}{"A": {}}},
		{"map", map[string]string{"a": "b"}},
		{"mixed list", []any{"A", 1}},
		{"int", 42},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := NewResult(tt.value)
			if !errors.Is(err, ErrInvalidResult) {
				t.Errorf("expected ErrInvalidResult, got %v", err)
			}
		})
	}

	t.Run("indices must be parallel", func(t *testing.T) {
		_, err := NewResult([]string{"A"}, 0, 1)
		if !errors.Is(err, ErrInvalidResult) {
			t.Errorf("expected ErrInvalidResult, got %v", err)
		}
	})
}

func TestResultAppend(t *testing.T) {
	base := Success()
	r := base.Append(Fail("A"), 0).Append(Success(), 1).Append(FailAll("B", "C"), 2)

	if base.IsFail() {
		t.Fatal("append mutated the receiver")
	}
	want := []string{"A", "B", "C"}
	got := r.Errors()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("error %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	idx := r.ErrorIndices()
	if idx[0] != 0 || idx[1] != 2 || idx[2] != 2 {
		t.Errorf("unexpected indices: %v", idx)
	}
}

func TestResultErrorsAreCopies(t *testing.T) {
	r := Fail("A")
	errs := r.Errors()
	errs[0] = "changed"
	if r.FirstError() != "A" {
		t.Error("Errors exposed internal state")
	}
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(Success())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"success":true,"errors":[]}` {
		t.Errorf("unexpected json: %s", data)
	}

	data, _ = json.Marshal(defectResult())
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["defect"] != true || out["success"] != false {
		t.Errorf("unexpected json: %s", data)
	}
}
