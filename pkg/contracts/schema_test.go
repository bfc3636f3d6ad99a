package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRawEvent(mutate func(map[string]any)) []byte {
	doc := map[string]any{
		"id":             "collapse-001",
		"schema_version": SchemaVersion,
		"source_type":    "api",
		"source_ref":     "req-42",
		"actor":          map[string]any{"id": "actor-7", "role": "operator"},
		"tier_context":   "tier-1",
		"created_at":     "2026-08-27T12:00:00Z",
		"payload":        map[string]any{"action": "get_status"},
	}
	if mutate != nil {
		mutate(doc)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw
}

func TestValidateRawAccepts(t *testing.T) {
	v, err := NewValidator(SchemaVersion)
	require.NoError(t, err)

	ev, err := v.ValidateRaw(validRawEvent(nil))
	require.NoError(t, err)
	assert.Equal(t, "collapse-001", ev.ID)
	assert.Equal(t, "actor-7", ev.Actor.ID)
	assert.Equal(t, "get_status", ev.Payload["action"])
}

func TestValidateRawRejectsInvalidJSON(t *testing.T) {
	v, err := NewValidator(SchemaVersion)
	require.NoError(t, err)

	_, err = v.ValidateRaw([]byte(`{not json`))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Reason, "invalid JSON")
}

func TestValidateRawRejectsMissingRequired(t *testing.T) {
	v, err := NewValidator(SchemaVersion)
	require.NoError(t, err)

	for _, field := range []string{"id", "schema_version", "source_type", "actor", "tier_context", "created_at", "payload"} {
		raw := validRawEvent(func(doc map[string]any) { delete(doc, field) })
		_, err := v.ValidateRaw(raw)
		var schemaErr *SchemaError
		assert.ErrorAs(t, err, &schemaErr, "field %s", field)
	}
}

func TestValidateRawVersionGate(t *testing.T) {
	v, err := NewValidator(SchemaVersion)
	require.NoError(t, err)

	// Same major, newer minor: accepted.
	_, err = v.ValidateRaw(validRawEvent(func(doc map[string]any) {
		doc["schema_version"] = "1.3.0"
	}))
	assert.NoError(t, err)

	// Different major: rejected.
	_, err = v.ValidateRaw(validRawEvent(func(doc map[string]any) {
		doc["schema_version"] = "2.0.0"
	}))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Reason, "incompatible")

	// Garbage version string: rejected.
	_, err = v.ValidateRaw(validRawEvent(func(doc map[string]any) {
		doc["schema_version"] = "not-a-version"
	}))
	assert.ErrorAs(t, err, &schemaErr)
}

func TestValidateEvent(t *testing.T) {
	v, err := NewValidator(SchemaVersion)
	require.NoError(t, err)

	good := &CollapseEvent{
		ID:            "collapse-001",
		SchemaVersion: SchemaVersion,
		SourceType:    "api",
		Actor:         Actor{ID: "actor-7", Role: "operator"},
		TierContext:   "tier-1",
		CreatedAt:     time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
		Payload:       map[string]any{},
	}
	assert.NoError(t, v.ValidateEvent(good))

	cases := []struct {
		name   string
		mutate func(*CollapseEvent)
	}{
		{"missing id", func(e *CollapseEvent) { e.ID = "" }},
		{"missing source_type", func(e *CollapseEvent) { e.SourceType = "" }},
		{"incomplete actor", func(e *CollapseEvent) { e.Actor.Role = "" }},
		{"missing tier_context", func(e *CollapseEvent) { e.TierContext = "" }},
		{"missing created_at", func(e *CollapseEvent) { e.CreatedAt = time.Time{} }},
		{"missing payload", func(e *CollapseEvent) { e.Payload = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := *good
			tc.mutate(&ev)
			var schemaErr *SchemaError
			assert.ErrorAs(t, v.ValidateEvent(&ev), &schemaErr)
		})
	}

	var schemaErr *SchemaError
	assert.ErrorAs(t, v.ValidateEvent(nil), &schemaErr)
}

func TestSchemaErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &SchemaError{Reason: "decode failed", Cause: cause}
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "decode failed")
	assert.Contains(t, fmt.Sprint(err), "root cause")
}

func TestNewValidatorBadPinnedVersion(t *testing.T) {
	_, err := NewValidator("vNaN")
	assert.Error(t, err)
}
