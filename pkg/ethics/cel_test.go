package ethics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tequmsa/awareness/pkg/contracts"
)

func TestCELRuleBoolPass(t *testing.T) {
	rule, err := NewCELRule("role_gate", `input.actor_role == "operator"`)
	require.NoError(t, err)

	res := rule.Evaluate(Input{
		Event: &contracts.CollapseEvent{Actor: contracts.Actor{ID: "a-1", Role: "operator"}},
	})
	assert.Equal(t, VerdictPass, res.Verdict)

	res = rule.Evaluate(Input{
		Event: &contracts.CollapseEvent{Actor: contracts.Actor{ID: "a-2", Role: "guest"}},
	})
	assert.Equal(t, VerdictBlock, res.Verdict)
}

func TestCELRuleStringVerdicts(t *testing.T) {
	rule, err := NewCELRule("tiered", `input.classification == "mutation" ? "warn" : "pass"`)
	require.NoError(t, err)

	assert.Equal(t, VerdictWarn, rule.Evaluate(Input{Classification: "mutation"}).Verdict)
	assert.Equal(t, VerdictPass, rule.Evaluate(Input{Classification: "query"}).Verdict)
}

func TestCELRulePayloadAccess(t *testing.T) {
	rule, err := NewCELRule("dry_run_only", `has(input.payload.dry_run) && input.payload.dry_run == true`)
	require.NoError(t, err)

	res := rule.Evaluate(Input{
		Event: &contracts.CollapseEvent{Payload: map[string]any{"dry_run": true}},
	})
	assert.Equal(t, VerdictPass, res.Verdict)
}

func TestCELRuleCompileError(t *testing.T) {
	_, err := NewCELRule("broken", `input.actor_role ==`)
	assert.Error(t, err)
}

func TestCELRuleRuntimeErrorFailsClosed(t *testing.T) {
	// Indexing a key that does not exist is a runtime error; the rule must
	// block rather than admit the action.
	rule, err := NewCELRule("missing_key", `input.payload.absent == "x"`)
	require.NoError(t, err)

	res := rule.Evaluate(Input{Event: &contracts.CollapseEvent{Payload: map[string]any{}}})
	assert.Equal(t, VerdictBlock, res.Verdict)
	assert.NotEmpty(t, res.Note)
}

func TestCELRuleUnsupportedResultBlocks(t *testing.T) {
	rule, err := NewCELRule("numeric", `42`)
	require.NoError(t, err)

	res := rule.Evaluate(Input{})
	assert.Equal(t, VerdictBlock, res.Verdict)
}

func TestCELRuleInEngine(t *testing.T) {
	rule, err := NewCELRule("no_guest_mutations",
		`!(input.actor_role == "guest" && input.classification == "mutation")`)
	require.NoError(t, err)

	engine := NewEngine(rule, AmbiguousIntentRule{})
	verdict, _ := engine.Evaluate(Input{
		Event:          &contracts.CollapseEvent{Actor: contracts.Actor{Role: "guest"}},
		Classification: "mutation",
	})
	assert.Equal(t, contracts.EthicsBlock, verdict.Evaluation)
}
