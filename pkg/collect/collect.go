// Package collect normalizes raw external triggers into CollapseEvents.
// Malformed input fails with a SchemaError and nothing is persisted;
// logging downstream requires at least a valid event.
package collect

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tequmsa/awareness/pkg/contracts"
)

// Trigger is a raw external stimulus before normalization: a webhook relay
// payload, a scheduler tick, a manual invocation.
type Trigger struct {
	SourceType   string
	SourceRef    string
	ActorID      string
	ActorRole    string
	IntentHint   string
	TierContext  string
	ConsentToken string
	Payload      map[string]any
	Meta         map[string]any
}

// Collector builds validated CollapseEvents.
type Collector struct {
	validator *contracts.Validator
	version   string
	clock     func() time.Time
}

// New builds a Collector stamping events with the given schema version.
func New(validator *contracts.Validator, schemaVersion string) *Collector {
	if schemaVersion == "" {
		schemaVersion = contracts.SchemaVersion
	}
	return &Collector{validator: validator, version: schemaVersion, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (c *Collector) WithClock(clock func() time.Time) *Collector {
	c.clock = clock
	return c
}

// Collect normalizes a trigger into a CollapseEvent. String payload values
// are NFC-normalized so logically identical text hashes identically later
// in the chain.
func (c *Collector) Collect(t Trigger) (*contracts.CollapseEvent, error) {
	ev := &contracts.CollapseEvent{
		ID:            uuid.New().String(),
		SchemaVersion: c.version,
		SourceType:    t.SourceType,
		SourceRef:     t.SourceRef,
		Actor:         contracts.Actor{ID: t.ActorID, Role: t.ActorRole},
		IntentHint:    normString(t.IntentHint),
		TierContext:   t.TierContext,
		ConsentToken:  t.ConsentToken,
		CreatedAt:     c.clock().UTC(),
		Payload:       normPayload(t.Payload),
		Meta:          t.Meta,
	}
	if err := c.validator.ValidateEvent(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// CollectRaw validates and decodes a raw JSON CollapseEvent document, then
// applies the same text normalization.
func (c *Collector) CollectRaw(raw []byte) (*contracts.CollapseEvent, error) {
	ev, err := c.validator.ValidateRaw(raw)
	if err != nil {
		return nil, err
	}
	ev.IntentHint = normString(ev.IntentHint)
	ev.Payload = normPayload(ev.Payload)
	return ev, nil
}

func normString(s string) string {
	return norm.NFC.String(s)
}

// normPayload NFC-normalizes string values recursively through maps and
// lists, leaving all other values untouched.
func normPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = normValue(v)
	}
	return out
}

func normValue(v any) any {
	switch t := v.(type) {
	case string:
		return normString(t)
	case map[string]any:
		return normPayload(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normValue(item)
		}
		return out
	default:
		return v
	}
}
