package rating

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensure/kestrel/internal/domain"
)

// Clause applicability conditions are CEL expressions over the quote
// context. They gate whether a selected clause contributes its pricing
// effect; a clause with no condition always applies once selected.
//
// Available variables:
//
//	base_premium  double
//	attr          map<string, double>  numeric attributes by dimension key
//	label         map<string, string>  categorical attributes by dimension key
//	choice        map<string, bool>    binary elections by dimension key
//	clauses       list<string>         selected clause codes
func newClauseEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("base_premium", cel.DoubleType),
		cel.Variable("attr", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("label", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("choice", cel.MapType(cel.StringType, cel.BoolType)),
		cel.Variable("clauses", cel.ListType(cel.StringType)),
	)
}

// compileClauseCondition compiles a condition and checks it yields bool.
func compileClauseCondition(env *cel.Env, condition string) (cel.Program, error) {
	ast, issues := env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition does not compile: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition must return bool, got %s", ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition program: %w", err)
	}
	return program, nil
}

// clauseActivation flattens a quote context into CEL variables.
func clauseActivation(q *domain.QuoteContext) map[string]any {
	attr := make(map[string]float64, len(q.Numeric))
	for k, v := range q.Numeric {
		attr[string(k)] = v
	}
	label := make(map[string]string, len(q.Labels))
	for k, v := range q.Labels {
		label[string(k)] = v
	}
	choice := make(map[string]bool, len(q.Choices))
	for k, v := range q.Choices {
		choice[string(k)] = v
	}
	clauses := q.Clauses
	if clauses == nil {
		clauses = []string{}
	}
	return map[string]any{
		"base_premium": q.BasePremium,
		"attr":         attr,
		"label":        label,
		"choice":       choice,
		"clauses":      clauses,
	}
}

// evalClauseCondition runs a compiled condition against one context.
func evalClauseCondition(program cel.Program, q *domain.QuoteContext) (bool, error) {
	out, _, err := program.Eval(clauseActivation(q))
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, want bool", out)
	}
	return bool(b), nil
}
