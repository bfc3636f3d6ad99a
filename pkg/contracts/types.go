// Package contracts defines the wire-level records exchanged by the
// awareness pipeline: CollapseEvent in, AwarenessLogEntry out, with
// RecognitionResolution and EmbodimentManifest as the intermediate stages.
package contracts

import "time"

// SchemaVersion is the pinned schema version for CollapseEvent payloads.
const SchemaVersion = "1.0.0"

// GenesisHash is the prev_hash of the first entry in an empty partition.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ConsentStatus is the derived consent outcome recorded in resolutions and
// log entries. The raw consent_token is never persisted.
type ConsentStatus string

const (
	ConsentValid   ConsentStatus = "valid"
	ConsentMissing ConsentStatus = "missing"
	ConsentBlocked ConsentStatus = "blocked"
)

// EthicsEvaluation is the outcome of the ethics rule set.
type EthicsEvaluation string

const (
	EthicsAllow EthicsEvaluation = "allow"
	EthicsWarn  EthicsEvaluation = "warn"
	EthicsBlock EthicsEvaluation = "block"
)

// ManifestStatus describes how an embodiment attempt concluded.
type ManifestStatus string

const (
	ManifestApplied ManifestStatus = "applied"
	ManifestStaged  ManifestStatus = "staged"
	ManifestAborted ManifestStatus = "aborted"
)

// Actor identifies who or what triggered a collapse event.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// CollapseEvent is the normalized representation of an external trigger.
// Immutable once created; ID must be unique within the log.
type CollapseEvent struct {
	ID                string         `json:"id"`
	SchemaVersion     string         `json:"schema_version"`
	SourceType        string         `json:"source_type"`
	SourceRef         string         `json:"source_ref"`
	Actor             Actor          `json:"actor"`
	IntentHint        string         `json:"intent_hint,omitempty"`
	TierContext       string         `json:"tier_context"`
	ConsentToken      string         `json:"consent_token,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	Payload           map[string]any `json:"payload"`
	IntegrityPrevHash string         `json:"integrity_prev_hash,omitempty"`
	Meta              map[string]any `json:"meta,omitempty"`
}

// Consent is the gating outcome derived from the event's consent token.
type Consent struct {
	Status ConsentStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// Ethics is the combined verdict of the ethics rule set.
type Ethics struct {
	Evaluation EthicsEvaluation `json:"evaluation"`
	Notes      string           `json:"notes,omitempty"`
}

// RecognitionResolution is the classified, gated interpretation of exactly
// one CollapseEvent. Always produced, even when blocked; a blocked
// resolution still carries recommended_actions for audit, flagged not to run.
type RecognitionResolution struct {
	ID                 string         `json:"id"`
	CollapseID         string         `json:"collapse_id"`
	Classification     string         `json:"classification"`
	Confidence         float64        `json:"confidence"`
	RecommendedActions []string       `json:"recommended_actions"`
	Ethics             Ethics         `json:"ethics"`
	Consent            Consent        `json:"consent"`
	TierContext        string         `json:"tier_context"`
	GeneratedAt        time.Time      `json:"generated_at"`
	VersionTag         string         `json:"version_tag"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// Executable reports whether the embody stage may run for this resolution.
func (r *RecognitionResolution) Executable() bool {
	return r.Consent.Status == ConsentValid && r.Ethics.Evaluation != EthicsBlock
}

// EmbodimentManifest records an executed or staged action set. At most one
// exists per resolution; none when consent/ethics gate the stage off.
type EmbodimentManifest struct {
	ManifestID     string         `json:"manifest_id"`
	CollapseID     string         `json:"collapse_id"`
	ResolutionID   string         `json:"resolution_id"`
	ActionsApplied []string       `json:"actions_applied"`
	FilesWritten   []string       `json:"files_written"`
	LabelsApplied  []string       `json:"labels_applied"`
	FollowUps      []string       `json:"follow_ups"`
	Status         ManifestStatus `json:"status"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// AwarenessLogEntry is an immutable, hash-chained audit record. prev_hash
// equals the integrity_hash of the preceding entry in the same partition,
// or GenesisHash for the first entry. Write-once; never mutated or deleted.
type AwarenessLogEntry struct {
	LogID         string           `json:"log_id"`
	CollapseID    string           `json:"collapse_id"`
	ResolutionRef string           `json:"resolution_ref"`
	ManifestRef   string           `json:"manifest_ref,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	TierContext   string           `json:"tier_context"`
	ConsentStatus ConsentStatus    `json:"consent_status"`
	EthicsSignal  EthicsEvaluation `json:"ethics_signal"`
	Summary       string           `json:"summary"`
	IntegrityHash string           `json:"integrity_hash"`
	PrevHash      string           `json:"prev_hash"`
	Confidence    *float64         `json:"confidence,omitempty"`
	Meta          map[string]any   `json:"meta,omitempty"`
}
