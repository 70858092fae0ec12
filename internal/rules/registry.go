package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Definition describes a rule type available to configurations.
type Definition struct {
	// Name is the configuration "class" string.
	Name string

	Description string

	// ErrorMessage is the default failure text. {param} placeholders are
	// replaced with the rule's effective parameter values.
	ErrorMessage string

	// LoanExempt rules pass without evaluating for loan requests.
	LoanExempt bool

	// New returns a rule populated with its default parameters.
	New func() Rule
}

// CatalogEntry is the introspectable view of a registered rule type.
type CatalogEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	ErrorMessage string   `json:"errorMessage"`
	LoanExempt   bool     `json:"loanExempt"`
	Params       []string `json:"params"`
}

type registration struct {
	def    Definition
	params []string
}

// Registry maps rule class names to rule types.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]*registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]*registration)}
}

// NewDefaultRegistry creates a registry holding every builtin rule.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range Builtins() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a rule type. Names must be unique.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("rule definition: name is required")
	}
	if def.New == nil {
		return fmt.Errorf("rule definition %s: constructor is required", def.Name)
	}

	params := paramNames(def.New())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, def.Name)
	}
	r.rules[def.Name] = &registration{def: def, params: params}
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.rules[name]
	if !ok {
		return Definition{}, false
	}
	return reg.def, true
}

// Build instantiates the rule described by cfg. Parameters are applied over
// the type's defaults; absent parameters keep their default value.
func (r *Registry) Build(cfg domain.RuleConfig) (Rule, Definition, error) {
	def, ok := r.Lookup(cfg.Class)
	if !ok {
		return nil, Definition{}, fmt.Errorf("%w: %q", ErrUnknownRule, cfg.Class)
	}

	rule := def.New()

	if len(cfg.Params) > 0 {
		data, err := json.Marshal(cfg.Params)
		if err != nil {
			return nil, def, fmt.Errorf("%w: %s: %v", ErrInvalidParams, cfg.Class, err)
		}
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(rule); err != nil {
			return nil, def, fmt.Errorf("%w: %s: %v", ErrInvalidParams, cfg.Class, err)
		}
	}

	if v, ok := rule.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, def, fmt.Errorf("%w: %s: %v", ErrInvalidParams, cfg.Class, err)
		}
	}

	if b, ok := rule.(baser); ok {
		base := b.base()
		base.override = cfg.ErrorMessage
		base.message = renderMessage(def.ErrorMessage, rule)
	}

	return rule, def, nil
}

// Validate builds every configuration, recursing into nested rule lists, and
// returns the first defect found. Inactive rules are checked too. Nesting is
// limited to domain.DefaultMaxDepth levels.
func (r *Registry) Validate(cfgs []domain.RuleConfig) error {
	return r.ValidateDepth(cfgs, domain.DefaultMaxDepth)
}

// ValidateDepth is Validate with the nesting limit of the evaluator that will
// run cfgs, so a rule set accepted here never hits ErrRecursionLimit later.
func (r *Registry) ValidateDepth(cfgs []domain.RuleConfig, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = domain.DefaultMaxDepth
	}
	return r.validate(cfgs, "", 0, maxDepth)
}

func (r *Registry) validate(cfgs []domain.RuleConfig, prefix string, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%s: %w", prefix, ErrRecursionLimit)
	}
	for i, cfg := range cfgs {
		path := fmt.Sprintf("%s[%d]", prefix, i)
		rule, _, err := r.Build(cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if n, ok := rule.(nester); ok {
			for name, branch := range n.branches() {
				if err := r.validate(branch, path+"."+name, depth+1, maxDepth); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Catalog lists registered rule types sorted by name.
func (r *Registry) Catalog() []CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CatalogEntry, 0, len(r.rules))
	for _, reg := range r.rules {
		out = append(out, CatalogEntry{
			Name:         reg.def.Name,
			Description:  reg.def.Description,
			ErrorMessage: reg.def.ErrorMessage,
			LoanExempt:   reg.def.LoanExempt,
			Params:       append([]string(nil), reg.params...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered rule types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// nester is implemented by composite rules.
type nester interface {
	branches() map[string][]domain.RuleConfig
}

// paramNames lists the json names of a rule's exported fields, including
// those promoted from embedded parameter structs.
func paramNames(rule Rule) []string {
	return structParams(reflect.TypeOf(rule))
}

func structParams(t reflect.Type) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			if f.Type != reflect.TypeOf(Base{}) {
				names = append(names, structParams(f.Type)...)
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names = append(names, name)
	}
	return names
}

// renderMessage replaces {param} placeholders with the rule's parameter values.
func renderMessage(tmpl string, rule Rule) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}

	data, err := json.Marshal(rule)
	if err != nil {
		return tmpl
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return tmpl
	}

	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", formatValue(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
