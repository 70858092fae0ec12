package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/opensource-finance/underwriter/internal/rules"
)

const rulesYAML = `
- class: FieldEqualScoring
  field: request.interval
  operation: "<="
  value: 1140
  error_message: Срок гарантии не более 1140 дней
- class: AlwaysPassScoring
- class: AlwaysFailScoring
`

const requestJSON = `{"id": "r-1", "kind": "guarantee", "interval": 1200, "requiredAmount": 100000}`

type evalJSON struct {
	Mode   string `json:"mode"`
	Result struct {
		Success      bool     `json:"success"`
		Errors       []string `json:"errors"`
		ErrorIndices []int    `json:"errorIndices"`
		Defect       bool     `json:"defect"`
	} `json:"result"`
	RulesChecked int `json:"rulesChecked"`
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalog(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		out, err := run(t, "catalog")
		if err != nil {
			t.Fatalf("catalog: %v", err)
		}
		if !strings.HasPrefix(out, "CLASS") {
			t.Errorf("expected header row, got %q", out)
		}
		if !strings.Contains(out, "ConditionalScoring") {
			t.Error("expected ConditionalScoring in catalog")
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "catalog", "--json")
		if err != nil {
			t.Fatalf("catalog: %v", err)
		}
		var entries []struct {
			Name   string   `json:"name"`
			Params []string `json:"params"`
		}
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			t.Fatalf("decode: %v", err)
		}
		found := false
		for _, e := range entries {
			if e.Name == "FieldEqualScoring" {
				found = slices.Contains(e.Params, "field")
			}
		}
		if !found {
			t.Error("expected FieldEqualScoring with a field param")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeTemp(t, "rules.yaml", rulesYAML)
		out, err := run(t, "validate", path)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if !strings.Contains(out, "3 rules OK") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("unknown class", func(t *testing.T) {
		path := writeTemp(t, "rules.yaml", "- class: NoSuchScoring\n")
		if _, err := run(t, "validate", path); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := run(t, "validate", filepath.Join(t.TempDir(), "none.yaml")); err == nil {
			t.Error("expected read error")
		}
	})

	t.Run("max depth", func(t *testing.T) {
		path := writeTemp(t, "nested.yaml", `
- class: ConditionalScoring
  if_conditionals:
    - class: AlwaysPassScoring
  then_conditionals:
    - class: ConditionalScoring
      if_conditionals:
        - class: AlwaysPassScoring
      then_conditionals:
        - class: AlwaysPassScoring
`)
		if _, err := run(t, "validate", "--max-depth", "1", path); !errors.Is(err, rules.ErrRecursionLimit) {
			t.Errorf("expected ErrRecursionLimit at depth 1, got %v", err)
		}
		if _, err := run(t, "validate", "--max-depth", "2", path); err != nil {
			t.Errorf("expected nesting of 2 to pass at depth 2, got %v", err)
		}
	})

	t.Run("requires one argument", func(t *testing.T) {
		if _, err := run(t, "validate"); err == nil {
			t.Error("expected argument error")
		}
	})
}

func TestEval(t *testing.T) {
	rulesPath := writeTemp(t, "rules.yaml", rulesYAML)
	requestPath := writeTemp(t, "request.json", requestJSON)

	t.Run("agent mode collects every failure", func(t *testing.T) {
		out, err := run(t, "eval", "--rules", rulesPath, "--request", requestPath)
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		var got evalJSON
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		if got.Mode != "agent" || got.RulesChecked != 3 {
			t.Errorf("unexpected header %+v", got)
		}
		if got.Result.Success {
			t.Fatal("expected failure")
		}
		want := []string{"Срок гарантии не более 1140 дней", "Заявка не прошла скоринг"}
		if !slices.Equal(got.Result.Errors, want) {
			t.Errorf("expected %v, got %v", want, got.Result.Errors)
		}
		if !slices.Equal(got.Result.ErrorIndices, []int{0, 2}) {
			t.Errorf("expected indices [0 2], got %v", got.Result.ErrorIndices)
		}
	})

	t.Run("short circuit stops at first failure", func(t *testing.T) {
		out, err := run(t, "eval", "--rules", rulesPath, "--request", requestPath, "--short-circuit")
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		var got evalJSON
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Mode != "short_circuit" {
			t.Errorf("expected short_circuit mode, got %q", got.Mode)
		}
		if !slices.Equal(got.Result.Errors, []string{"Срок гарантии не более 1140 дней"}) {
			t.Errorf("unexpected errors %v", got.Result.Errors)
		}
	})

	t.Run("yaml request", func(t *testing.T) {
		yamlRequest := writeTemp(t, "request.yaml", "id: r-2\nkind: guarantee\ninterval: 365\n")
		passRules := writeTemp(t, "pass.yaml", rulesYAML[:strings.Index(rulesYAML, "- class: AlwaysFailScoring")])
		out, err := run(t, "eval", "--rules", passRules, "--request", yamlRequest)
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		var got evalJSON
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !got.Result.Success {
			t.Errorf("expected success, got %v", got.Result.Errors)
		}
	})

	t.Run("lookup rules without collaborators", func(t *testing.T) {
		lookupRules := writeTemp(t, "lookup.yaml", "- class: FinishedContractsScoring\n  min_count: 1\n")

		out, err := run(t, "eval", "--rules", lookupRules, "--request", requestPath)
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		var got evalJSON
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !got.Result.Defect || !slices.Equal(got.Result.Errors, []string{"Непредвиденная ошибка в скоринге"}) {
			t.Errorf("expected generic defect failure, got %+v", got.Result)
		}

		if _, err := run(t, "eval", "--rules", lookupRules, "--request", requestPath, "--strict"); err == nil {
			t.Error("expected strict mode to return the defect")
		}
	})

	t.Run("flags required", func(t *testing.T) {
		if _, err := run(t, "eval", "--rules", rulesPath); err == nil {
			t.Error("expected missing --request to fail")
		}
	})
}
