package contracts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaError marks a malformed CollapseEvent. Fatal for that event:
// nothing is persisted and the error is surfaced to the caller.
type SchemaError struct {
	Reason string
	Cause  error
}

func (e *SchemaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("collapse event schema violation: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("collapse event schema violation: %s", e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

const collapseEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "schema_version", "source_type", "actor", "tier_context", "created_at", "payload"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "schema_version": {"type": "string", "minLength": 1},
    "source_type": {"type": "string", "minLength": 1},
    "source_ref": {"type": "string"},
    "actor": {
      "type": "object",
      "required": ["id", "role"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "role": {"type": "string", "minLength": 1}
      }
    },
    "intent_hint": {"type": "string"},
    "tier_context": {"type": "string", "minLength": 1},
    "consent_token": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"},
    "payload": {"type": "object"},
    "integrity_prev_hash": {"type": "string"},
    "meta": {"type": "object"}
  }
}`

// Validator checks raw CollapseEvent documents against the pinned schema
// before anything else touches them.
type Validator struct {
	schema *jsonschema.Schema
	pinned *semver.Version
}

// NewValidator compiles the CollapseEvent schema. pinnedVersion is the
// schema_version the deployment accepts (same-major compatibility).
func NewValidator(pinnedVersion string) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://tequmsa.schemas.local/collapse_event.schema.json"
	if err := c.AddResource(url, strings.NewReader(collapseEventSchema)); err != nil {
		return nil, fmt.Errorf("collapse event schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("collapse event schema compile failed: %w", err)
	}
	pinned, err := semver.NewVersion(pinnedVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid pinned schema version %q: %w", pinnedVersion, err)
	}
	return &Validator{schema: compiled, pinned: pinned}, nil
}

// ValidateRaw checks a raw JSON document and decodes it into a CollapseEvent.
// Any violation is returned as a *SchemaError.
func (v *Validator) ValidateRaw(raw []byte) (*CollapseEvent, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &SchemaError{Reason: "invalid JSON", Cause: err}
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, &SchemaError{Reason: "schema validation failed", Cause: err}
	}

	var ev CollapseEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, &SchemaError{Reason: "decode failed", Cause: err}
	}
	if err := v.checkVersion(ev.SchemaVersion); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ValidateEvent checks an already-decoded event for required-field presence.
func (v *Validator) ValidateEvent(ev *CollapseEvent) error {
	switch {
	case ev == nil:
		return &SchemaError{Reason: "nil event"}
	case ev.ID == "":
		return &SchemaError{Reason: "missing id"}
	case ev.SchemaVersion == "":
		return &SchemaError{Reason: "missing schema_version"}
	case ev.SourceType == "":
		return &SchemaError{Reason: "missing source_type"}
	case ev.Actor.ID == "" || ev.Actor.Role == "":
		return &SchemaError{Reason: "incomplete actor"}
	case ev.TierContext == "":
		return &SchemaError{Reason: "missing tier_context"}
	case ev.CreatedAt.IsZero():
		return &SchemaError{Reason: "missing created_at"}
	case ev.Payload == nil:
		return &SchemaError{Reason: "missing payload"}
	}
	return v.checkVersion(ev.SchemaVersion)
}

// checkVersion accepts any version with the same major as the pinned one.
func (v *Validator) checkVersion(version string) error {
	got, err := semver.NewVersion(version)
	if err != nil {
		return &SchemaError{Reason: fmt.Sprintf("unparseable schema_version %q", version), Cause: err}
	}
	if got.Major() != v.pinned.Major() {
		return &SchemaError{Reason: fmt.Sprintf("schema_version %s incompatible with pinned %s", version, v.pinned)}
	}
	return nil
}
