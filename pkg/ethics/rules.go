// Package ethics evaluates a fixed, deterministic rule set against a
// classified collapse event. Rules form a closed set of variants, run in
// registration order, and are combined most-severe-wins. A block verdict
// is data, not an error: it gates the embody stage but never aborts the
// pipeline.
package ethics

import (
	"fmt"
	"strings"

	"github.com/tequmsa/awareness/pkg/contracts"
)

// Verdict is a single rule's outcome.
type Verdict string

const (
	VerdictPass  Verdict = "pass"
	VerdictWarn  Verdict = "warn"
	VerdictBlock Verdict = "block"
)

// severity orders verdicts for the most-severe-wins reducer.
func severity(v Verdict) int {
	switch v {
	case VerdictBlock:
		return 2
	case VerdictWarn:
		return 1
	default:
		return 0
	}
}

// Input is what rules see. Rules must be pure over this input.
type Input struct {
	Event              *contracts.CollapseEvent
	Classification     string
	RecommendedActions []string
}

// RuleResult is one rule's evaluation.
type RuleResult struct {
	Rule    string  `json:"rule"`
	Verdict Verdict `json:"verdict"`
	Note    string  `json:"note,omitempty"`
}

// Rule is a single deterministic check.
type Rule interface {
	Name() string
	Evaluate(in Input) RuleResult
}

// Engine runs rules in fixed order and reduces their verdicts.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine over the given rules. Order matters only for
// note ordering; the reduced verdict is order-independent.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Evaluate runs every rule and reduces to a single Ethics verdict.
// All rules always run; there is no short-circuit, so notes are complete
// for audit purposes.
func (e *Engine) Evaluate(in Input) (contracts.Ethics, []RuleResult) {
	results := make([]RuleResult, 0, len(e.rules))
	worst := VerdictPass
	var notes []string

	for _, r := range e.rules {
		res := r.Evaluate(in)
		results = append(results, res)
		if severity(res.Verdict) > severity(worst) {
			worst = res.Verdict
		}
		if res.Verdict != VerdictPass && res.Note != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", res.Rule, res.Note))
		}
	}

	return contracts.Ethics{
		Evaluation: toEvaluation(worst),
		Notes:      strings.Join(notes, "; "),
	}, results
}

func toEvaluation(v Verdict) contracts.EthicsEvaluation {
	switch v {
	case VerdictBlock:
		return contracts.EthicsBlock
	case VerdictWarn:
		return contracts.EthicsWarn
	default:
		return contracts.EthicsAllow
	}
}

// OverrideKey is the payload flag that downgrades a destructive block to a
// warn. It must be an explicit boolean true.
const OverrideKey = "override_destructive"

// DestructiveActionRule blocks recommended actions that appear in the
// configured marker list unless the event payload carries an explicit
// override flag, in which case it warns.
type DestructiveActionRule struct {
	markers map[string]struct{}
}

// NewDestructiveActionRule builds the rule from the configured marker list.
func NewDestructiveActionRule(markers []string) *DestructiveActionRule {
	m := make(map[string]struct{}, len(markers))
	for _, marker := range markers {
		m[marker] = struct{}{}
	}
	return &DestructiveActionRule{markers: m}
}

func (r *DestructiveActionRule) Name() string { return "destructive_action" }

func (r *DestructiveActionRule) Evaluate(in Input) RuleResult {
	var flagged []string
	for _, action := range in.RecommendedActions {
		if _, ok := r.markers[action]; ok {
			flagged = append(flagged, action)
		}
	}
	if len(flagged) == 0 {
		return RuleResult{Rule: r.Name(), Verdict: VerdictPass}
	}

	override := false
	if in.Event != nil && in.Event.Payload != nil {
		override, _ = in.Event.Payload[OverrideKey].(bool)
	}
	if override {
		return RuleResult{
			Rule:    r.Name(),
			Verdict: VerdictWarn,
			Note:    fmt.Sprintf("destructive actions %v permitted by explicit override", flagged),
		}
	}
	return RuleResult{
		Rule:    r.Name(),
		Verdict: VerdictBlock,
		Note:    fmt.Sprintf("destructive actions %v without override flag", flagged),
	}
}

// AmbiguousIntentRule warns when classification could not settle on a
// concrete intent.
type AmbiguousIntentRule struct{}

func (AmbiguousIntentRule) Name() string { return "ambiguous_intent" }

func (AmbiguousIntentRule) Evaluate(in Input) RuleResult {
	if in.Classification == "ambiguous" {
		return RuleResult{
			Rule:    "ambiguous_intent",
			Verdict: VerdictWarn,
			Note:    "intent could not be classified",
		}
	}
	return RuleResult{Rule: "ambiguous_intent", Verdict: VerdictPass}
}
