// Package recognize turns a CollapseEvent into a RecognitionResolution:
// deterministic intent classification, consent derivation, ethics gating,
// and a confidence score backed by the sequence/coherence pair.
//
// Recognition never fails for consent or ethics reasons; those outcomes are
// recorded in the resolution and gate the embody stage downstream.
package recognize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tequmsa/awareness/pkg/coherence"
	"github.com/tequmsa/awareness/pkg/consent"
	"github.com/tequmsa/awareness/pkg/contracts"
	"github.com/tequmsa/awareness/pkg/ethics"
	"github.com/tequmsa/awareness/pkg/sequence"
)

// Classification taxonomy. Closed set; derivation from the payload is
// deterministic.
const (
	ClassQuery       = "query"
	ClassMutation    = "mutation"
	ClassDestructive = "destructive"
	ClassAmbiguous   = "ambiguous"
)

// VersionTag identifies the recognizer revision stamped on resolutions.
const VersionTag = "recognizer/v1"

// queryVerbs are action prefixes that classify as read-only.
var queryVerbs = []string{"get", "list", "read", "query", "inspect", "status"}

// Recognizer produces resolutions from collapse events.
type Recognizer struct {
	consent *consent.Checker
	engine  *ethics.Engine
	scorer  *coherence.Scorer
	markers map[string]struct{}
	seqLen  int
	clock   func() time.Time
}

// Config assembles a Recognizer.
type Config struct {
	Consent            *consent.Checker
	Engine             *ethics.Engine
	Scorer             *coherence.Scorer
	DestructiveMarkers []string
	SequenceLength     int
}

// New builds a Recognizer. Engine and Scorer fall back to defaults when nil.
func New(cfg Config) *Recognizer {
	if cfg.Engine == nil {
		cfg.Engine = ethics.NewEngine(
			ethics.NewDestructiveActionRule(cfg.DestructiveMarkers),
			ethics.AmbiguousIntentRule{},
		)
	}
	if cfg.Scorer == nil {
		cfg.Scorer = coherence.NewScorer()
	}
	if cfg.SequenceLength <= 0 {
		cfg.SequenceLength = sequence.DefaultLength
	}
	markers := make(map[string]struct{}, len(cfg.DestructiveMarkers))
	for _, m := range cfg.DestructiveMarkers {
		markers[m] = struct{}{}
	}
	return &Recognizer{
		consent: cfg.Consent,
		engine:  cfg.Engine,
		scorer:  cfg.Scorer,
		markers: markers,
		seqLen:  cfg.SequenceLength,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Recognizer) WithClock(clock func() time.Time) *Recognizer {
	r.clock = clock
	return r
}

// Recognize classifies ev and applies consent and ethics gating. Exactly one
// resolution is produced per event; blocked and missing-consent outcomes are
// carried as data.
func (r *Recognizer) Recognize(ev *contracts.CollapseEvent) (*contracts.RecognitionResolution, error) {
	if ev == nil {
		return nil, fmt.Errorf("recognize: nil event")
	}

	consentOutcome := contracts.Consent{Status: contracts.ConsentMissing}
	if r.consent != nil {
		consentOutcome = r.consent.Check(ev.ConsentToken)
	} else if ev.ConsentToken != "" {
		// No checker configured: a present token cannot be validated,
		// so it is treated as blocked rather than trusted.
		consentOutcome = contracts.Consent{
			Status: contracts.ConsentBlocked,
			Reason: "no consent checker configured",
		}
	}

	classification, actions := r.classify(ev)

	verdict, ruleResults := r.engine.Evaluate(ethics.Input{
		Event:              ev,
		Classification:     classification,
		RecommendedActions: actions,
	})

	confidence, err := r.confidence(ev, classification)
	if err != nil {
		return nil, err
	}

	res := &contracts.RecognitionResolution{
		ID:                 uuid.New().String(),
		CollapseID:         ev.ID,
		Classification:     classification,
		Confidence:         confidence,
		RecommendedActions: actions,
		Ethics:             verdict,
		Consent:            consentOutcome,
		TierContext:        ev.TierContext,
		GeneratedAt:        r.clock().UTC(),
		VersionTag:         VersionTag,
		Meta: map[string]any{
			"rule_results": ruleResults,
		},
	}
	return res, nil
}

// classify derives the taxonomy class and the recommended action list from
// the payload. Pure over the event.
func (r *Recognizer) classify(ev *contracts.CollapseEvent) (string, []string) {
	actions := recommendedActions(ev)
	if len(actions) == 0 {
		return ClassAmbiguous, actions
	}

	for _, a := range actions {
		if _, ok := r.markers[a]; ok {
			return ClassDestructive, actions
		}
	}
	for _, verb := range queryVerbs {
		if strings.HasPrefix(actions[0], verb) {
			return ClassQuery, actions
		}
	}
	return ClassMutation, actions
}

// confidence combines a per-class base with the coherence score of the
// sequence derived from (actor id, event id). Deterministic given the event.
func (r *Recognizer) confidence(ev *contracts.CollapseEvent, classification string) (float64, error) {
	seq, err := sequence.Generate(ev.Actor.ID, ev.ID, r.seqLen)
	if err != nil {
		return 0, fmt.Errorf("recognize: %w", err)
	}
	score, err := r.scorer.Score(seq)
	if err != nil {
		return 0, fmt.Errorf("recognize: %w", err)
	}

	base := 0.8
	switch classification {
	case ClassQuery:
		base = 0.9
	case ClassDestructive:
		base = 0.7
	case ClassAmbiguous:
		base = 0.5
	}
	c := base * score
	if c > 1.0 {
		c = 1.0
	}
	return c, nil
}

// recommendedActions extracts the action list from the payload: an explicit
// "actions" string list when present, otherwise the single "action" value,
// otherwise the intent hint. Order is deterministic.
func recommendedActions(ev *contracts.CollapseEvent) []string {
	if ev.Payload != nil {
		if raw, ok := ev.Payload["actions"].([]any); ok {
			var out []string
			for _, item := range raw {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				sort.Strings(out)
				return out
			}
		}
		if s, ok := ev.Payload["action"].(string); ok && s != "" {
			return []string{s}
		}
	}
	if ev.IntentHint != "" {
		return []string{ev.IntentHint}
	}
	return nil
}
