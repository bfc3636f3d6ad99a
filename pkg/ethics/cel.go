package ethics

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELRule evaluates an operator-supplied CEL expression against the event.
// The expression sees a single `input` map with keys:
//
//	payload         the event payload object
//	actor_id        the actor id
//	actor_role      the actor role
//	classification  the recognized classification
//	actions         the recommended action list
//
// The expression must yield either a bool (true = pass, false = block) or
// one of the strings "pass", "warn", "block". Compile happens once at
// construction; runtime errors fail closed as block so a broken rule can
// never silently admit an action.
type CELRule struct {
	name    string
	expr    string
	program cel.Program
}

// NewCELRule compiles expr into a rule named name.
func NewCELRule(name, expr string) (*CELRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("ethics: cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("ethics: rule %q compile failed: %w", name, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("ethics: rule %q program failed: %w", name, err)
	}
	return &CELRule{name: name, expr: expr, program: program}, nil
}

func (r *CELRule) Name() string { return r.name }

func (r *CELRule) Evaluate(in Input) RuleResult {
	input := map[string]any{
		"payload":        map[string]any{},
		"actor_id":       "",
		"actor_role":     "",
		"classification": in.Classification,
		"actions":        in.RecommendedActions,
	}
	if in.Event != nil {
		if in.Event.Payload != nil {
			input["payload"] = in.Event.Payload
		}
		input["actor_id"] = in.Event.Actor.ID
		input["actor_role"] = in.Event.Actor.Role
	}

	val, _, err := r.program.Eval(map[string]any{"input": input})
	if err != nil {
		return RuleResult{
			Rule:    r.name,
			Verdict: VerdictBlock,
			Note:    fmt.Sprintf("rule evaluation failed closed: %v", err),
		}
	}

	switch v := val.Value().(type) {
	case bool:
		if v {
			return RuleResult{Rule: r.name, Verdict: VerdictPass}
		}
		return RuleResult{Rule: r.name, Verdict: VerdictBlock, Note: "rule expression returned false"}
	case string:
		switch Verdict(v) {
		case VerdictPass, VerdictWarn, VerdictBlock:
			return RuleResult{Rule: r.name, Verdict: Verdict(v)}
		}
	}
	return RuleResult{
		Rule:    r.name,
		Verdict: VerdictBlock,
		Note:    fmt.Sprintf("rule yielded unsupported verdict %v", val.Value()),
	}
}
