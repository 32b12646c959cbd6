package schema

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// RuleEngine compiles and caches CEL programs for Field.Rule
// expressions, mirroring bundoc's RulesEngine compile-once/evaluate-many
// pattern (rules/engine.go) but scoped to a single `value` variable
// instead of a request/resource context.
type RuleEngine struct {
	env   *cel.Env
	cache sync.Map // expression -> cel.Program
}

// NewRuleEngine builds a CEL environment exposing the field value under
// evaluation as the variable `value`.
func NewRuleEngine() (*RuleEngine, error) {
	env, err := cel.NewEnv(cel.Variable("value", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("schema: build cel env: %w", err)
	}
	return &RuleEngine{env: env}, nil
}

// Evaluate compiles expression (once, then from cache) and runs it
// against value, requiring a boolean result.
func (r *RuleEngine) Evaluate(expression string, value interface{}) (bool, error) {
	var prg cel.Program
	if cached, ok := r.cache.Load(expression); ok {
		prg = cached.(cel.Program)
	} else {
		ast, issues := r.env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return false, fmt.Errorf("schema: compile rule %q: %w", expression, issues.Err())
		}
		p, err := r.env.Program(ast)
		if err != nil {
			return false, fmt.Errorf("schema: build rule program %q: %w", expression, err)
		}
		prg = p
		r.cache.Store(expression, prg)
	}

	out, _, err := prg.Eval(map[string]interface{}{"value": value})
	if err != nil {
		return false, fmt.Errorf("schema: evaluate rule %q: %w", expression, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("schema: rule %q must evaluate to a boolean", expression)
	}
	return result, nil
}
