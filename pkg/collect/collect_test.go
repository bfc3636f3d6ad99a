package collect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tequmsa/awareness/pkg/contracts"
)

func testCollector(t *testing.T) *Collector {
	t.Helper()
	v, err := contracts.NewValidator(contracts.SchemaVersion)
	require.NoError(t, err)
	return New(v, "").WithClock(func() time.Time {
		return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	})
}

func validTrigger() Trigger {
	return Trigger{
		SourceType:   "webhook",
		SourceRef:    "delivery-9",
		ActorID:      "actor-7",
		ActorRole:    "operator",
		IntentHint:   "check status",
		TierContext:  "tier-1",
		ConsentToken: "abcdefghijklmnop-0123",
		Payload:      map[string]any{"action": "get_status"},
	}
}

func TestCollectBuildsEvent(t *testing.T) {
	ev, err := testCollector(t).Collect(validTrigger())
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, contracts.SchemaVersion, ev.SchemaVersion)
	assert.Equal(t, "webhook", ev.SourceType)
	assert.Equal(t, contracts.Actor{ID: "actor-7", Role: "operator"}, ev.Actor)
	assert.Equal(t, time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC), ev.CreatedAt)
	assert.Equal(t, time.UTC, ev.CreatedAt.Location())
}

func TestCollectUniqueIDs(t *testing.T) {
	c := testCollector(t)
	a, err := c.Collect(validTrigger())
	require.NoError(t, err)
	b, err := c.Collect(validTrigger())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCollectRejectsIncompleteTrigger(t *testing.T) {
	c := testCollector(t)

	tr := validTrigger()
	tr.ActorID = ""
	_, err := c.Collect(tr)
	var schemaErr *contracts.SchemaError
	require.ErrorAs(t, err, &schemaErr)

	tr = validTrigger()
	tr.Payload = nil
	_, err = c.Collect(tr)
	assert.ErrorAs(t, err, &schemaErr)
}

func TestCollectNormalizesText(t *testing.T) {
	// "é" as e + combining acute must collapse to the precomposed form.
	decomposed := "cafe\u0301"
	precomposed := "caf\u00e9"

	tr := validTrigger()
	tr.IntentHint = decomposed
	tr.Payload = map[string]any{
		"note":   decomposed,
		"nested": map[string]any{"inner": decomposed},
		"list":   []any{decomposed, 42},
	}

	ev, err := testCollector(t).Collect(tr)
	require.NoError(t, err)
	assert.Equal(t, precomposed, ev.IntentHint)
	assert.Equal(t, precomposed, ev.Payload["note"])
	assert.Equal(t, precomposed, ev.Payload["nested"].(map[string]any)["inner"])
	assert.Equal(t, precomposed, ev.Payload["list"].([]any)[0])
	assert.Equal(t, 42, ev.Payload["list"].([]any)[1])
}

func TestCollectRaw(t *testing.T) {
	raw := []byte(`{
		"id": "collapse-001",
		"schema_version": "1.0.0",
		"source_type": "api",
		"actor": {"id": "actor-7", "role": "operator"},
		"tier_context": "tier-1",
		"created_at": "2026-08-27T12:00:00Z",
		"payload": {"note": "cafe\u0301"}
	}`)

	ev, err := testCollector(t).CollectRaw(raw)
	require.NoError(t, err)
	assert.Equal(t, "collapse-001", ev.ID)
	assert.Equal(t, "caf\u00e9", ev.Payload["note"])
}

func TestCollectRawRejectsBadDocument(t *testing.T) {
	_, err := testCollector(t).CollectRaw([]byte(`{"id": "x"}`))
	var schemaErr *contracts.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}
