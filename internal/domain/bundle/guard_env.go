package bundle

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// guardExprMaxLength bounds admin-supplied guard expressions the same way
// the teacher bounds policy CEL expressions.
const guardExprMaxLength = 1024

// newGuardEnvironment builds the CEL environment a modification spec's
// guard expression is validated against: the IntentEvent fields a guard
// may reasonably condition on. Guards are compiled at bundle install time
// only — never evaluated on the enforcement hot path (spec.md §4.8).
func newGuardEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("actor_id", cel.StringType),
		cel.Variable("actor_kind", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("resource_kind", cel.StringType),
		cel.Variable("resource_name", cel.StringType),
		cel.Variable("data_pii", cel.BoolType),
		cel.Variable("data_sensitivity_tags", cel.ListType(cel.StringType)),
		cel.Variable("risk_auth", cel.StringType),
		cel.Variable("tool", cel.StringType),
		cel.Variable("method", cel.StringType),
	)
}

// compileGuard validates that expr is syntactically and type valid CEL
// against the guard environment, without evaluating it.
func compileGuard(env *cel.Env, expr string) error {
	if len(expr) > guardExprMaxLength {
		return fmt.Errorf("guard expression too long: %d characters (max %d)", len(expr), guardExprMaxLength)
	}
	_, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid guard expression: %w", issues.Err())
	}
	return nil
}
