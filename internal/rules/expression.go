package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// DefaultExpressionCacheSize bounds the compiled programs an evaluator keeps.
const DefaultExpressionCacheSize = 256

// celEnv declares request, profile, client, tender and bank as maps. The
// environment is immutable and shared; compiled programs are not.
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	dyn := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("request", dyn),
		cel.Variable("profile", dyn),
		cel.Variable("client", dyn),
		cel.Variable("tender", dyn),
		cel.Variable("bank", dyn),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
})

// ExpressionEngine caches compiled CEL programs, at most limit of them. When
// full the cache starts over.
type ExpressionEngine struct {
	mu       sync.RWMutex
	limit    int
	programs map[string]cel.Program
}

// NewExpressionEngine creates a program cache. limit <= 0 means
// DefaultExpressionCacheSize.
func NewExpressionEngine(limit int) *ExpressionEngine {
	if limit <= 0 {
		limit = DefaultExpressionCacheSize
	}
	return &ExpressionEngine{
		limit:    limit,
		programs: make(map[string]cel.Program),
	}
}

// Program returns the compiled program for expr, compiling it on first use.
func (e *ExpressionEngine) Program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err := compileExpression(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.programs) >= e.limit {
		clear(e.programs)
	}
	e.programs[expr] = prg
	e.mu.Unlock()

	return prg, nil
}

// Len returns the number of cached programs.
func (e *ExpressionEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

func compileExpression(expr string) (cel.Program, error) {
	env, err := celEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	// Tracked state lets a failed evaluation tell absent data from a bad expression.
	prg, err := env.Program(ast, cel.EvalOptions(cel.OptTrackState))
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return prg, nil
}

func activation(env *Env) map[string]any {
	var client *domain.Client
	var tender *domain.Tender
	if env.Request != nil {
		client = env.Request.Client
		tender = env.Request.Tender
	}
	return map[string]any{
		"request": env.Request.Map(),
		"profile": env.Request.Profile().Map(),
		"client":  client.Map(),
		"tender":  tender.Map(),
		"bank":    env.Bank.Map(),
	}
}

// touchedNull reports whether any subexpression evaluated to null.
func touchedNull(details *cel.EvalDetails) bool {
	state := details.State()
	for _, id := range state.IDs() {
		v, ok := state.Value(id)
		if ok && isNull(v) {
			return true
		}
	}
	return false
}

func isNull(v ref.Val) bool {
	_, ok := v.(types.Null)
	return ok
}

// ExpressionScoring fails when a CEL boolean expression evaluates to false.
// An expression that cannot be evaluated because the data it reads is absent
// fails like a false expression.
type ExpressionScoring struct {
	Base
	Expression string `json:"expression"`
}

func (r *ExpressionScoring) Validate() error {
	if r.Expression == "" {
		return fmt.Errorf("expression is required")
	}
	_, err := compileExpression(r.Expression)
	return err
}

func (r *ExpressionScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	var prg cel.Program
	var err error
	if env.evaluator != nil {
		prg, err = env.evaluator.expressions.Program(r.Expression)
	} else {
		prg, err = compileExpression(r.Expression)
	}
	if err != nil {
		return Result{}, err
	}

	out, details, err := prg.Eval(activation(env))
	if err != nil {
		if touchedNull(details) {
			return r.Fail(), nil
		}
		return Result{}, fmt.Errorf("evaluation error: %w", err)
	}

	if isNull(out) {
		return r.Fail(), nil
	}
	passed, ok := out.(types.Bool)
	if !ok {
		return Result{}, fmt.Errorf("expression returned %s, not bool", out.Type().TypeName())
	}
	if !passed {
		return r.Fail(), nil
	}
	return Success(), nil
}
