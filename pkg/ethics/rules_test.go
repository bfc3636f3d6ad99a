package ethics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tequmsa/awareness/pkg/contracts"
)

func TestEngineEmptyRuleSetAllows(t *testing.T) {
	verdict, results := NewEngine().Evaluate(Input{Classification: "query"})
	assert.Equal(t, contracts.EthicsAllow, verdict.Evaluation)
	assert.Empty(t, verdict.Notes)
	assert.Empty(t, results)
}

func TestDestructiveRuleBlocks(t *testing.T) {
	engine := NewEngine(NewDestructiveActionRule([]string{"delete", "drop"}))

	verdict, results := engine.Evaluate(Input{
		Event:              &contracts.CollapseEvent{Payload: map[string]any{}},
		Classification:     "destructive",
		RecommendedActions: []string{"delete"},
	})
	assert.Equal(t, contracts.EthicsBlock, verdict.Evaluation)
	assert.Contains(t, verdict.Notes, "destructive_action")
	assert.Len(t, results, 1)
	assert.Equal(t, VerdictBlock, results[0].Verdict)
}

func TestDestructiveRuleOverrideDowngradesToWarn(t *testing.T) {
	engine := NewEngine(NewDestructiveActionRule([]string{"delete"}))

	verdict, _ := engine.Evaluate(Input{
		Event: &contracts.CollapseEvent{
			Payload: map[string]any{OverrideKey: true},
		},
		Classification:     "destructive",
		RecommendedActions: []string{"delete"},
	})
	assert.Equal(t, contracts.EthicsWarn, verdict.Evaluation)
	assert.Contains(t, verdict.Notes, "override")
}

func TestDestructiveRuleOverrideMustBeBooleanTrue(t *testing.T) {
	engine := NewEngine(NewDestructiveActionRule([]string{"delete"}))

	for _, override := range []any{"true", 1, "yes", false} {
		verdict, _ := engine.Evaluate(Input{
			Event: &contracts.CollapseEvent{
				Payload: map[string]any{OverrideKey: override},
			},
			RecommendedActions: []string{"delete"},
		})
		assert.Equal(t, contracts.EthicsBlock, verdict.Evaluation, "override %v", override)
	}
}

func TestDestructiveRulePassesCleanActions(t *testing.T) {
	engine := NewEngine(NewDestructiveActionRule([]string{"delete"}))

	verdict, _ := engine.Evaluate(Input{
		Event:              &contracts.CollapseEvent{},
		Classification:     "query",
		RecommendedActions: []string{"read", "list"},
	})
	assert.Equal(t, contracts.EthicsAllow, verdict.Evaluation)
}

func TestAmbiguousIntentWarns(t *testing.T) {
	engine := NewEngine(AmbiguousIntentRule{})

	verdict, _ := engine.Evaluate(Input{Classification: "ambiguous"})
	assert.Equal(t, contracts.EthicsWarn, verdict.Evaluation)

	verdict, _ = engine.Evaluate(Input{Classification: "query"})
	assert.Equal(t, contracts.EthicsAllow, verdict.Evaluation)
}

func TestEngineMostSevereWinsAndRunsAllRules(t *testing.T) {
	engine := NewEngine(
		AmbiguousIntentRule{},
		NewDestructiveActionRule([]string{"delete"}),
	)

	verdict, results := engine.Evaluate(Input{
		Event:              &contracts.CollapseEvent{},
		Classification:     "ambiguous",
		RecommendedActions: []string{"delete"},
	})
	assert.Equal(t, contracts.EthicsBlock, verdict.Evaluation)
	// No short-circuit: both rules report, both notes are present.
	assert.Len(t, results, 2)
	assert.Contains(t, verdict.Notes, "ambiguous_intent")
	assert.Contains(t, verdict.Notes, "destructive_action")
}

func TestEngineDeterministic(t *testing.T) {
	engine := NewEngine(
		AmbiguousIntentRule{},
		NewDestructiveActionRule([]string{"delete"}),
	)
	in := Input{
		Event:              &contracts.CollapseEvent{Payload: map[string]any{"k": "v"}},
		Classification:     "destructive",
		RecommendedActions: []string{"delete", "read"},
	}
	a, _ := engine.Evaluate(in)
	b, _ := engine.Evaluate(in)
	assert.Equal(t, a, b)
}
