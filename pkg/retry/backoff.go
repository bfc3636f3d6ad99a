// Package retry computes deterministic backoff delays for transient append
// contention. Jitter is hash-seeded from the attempt identity, so replays
// of the same contention sequence wait the same amount of time.
package retry

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Params identifies a single retry attempt.
type Params struct {
	Partition    string
	EventID      string
	AttemptIndex int
}

// Policy bounds the backoff schedule.
type Policy struct {
	BaseMs      int64
	MaxMs       int64
	MaxJitterMs int64
	MaxAttempts int
}

// DefaultPolicy suits tail contention: short base, tight cap.
func DefaultPolicy() Policy {
	return Policy{BaseMs: 5, MaxMs: 250, MaxJitterMs: 25, MaxAttempts: 5}
}

// ComputeBackoff returns the delay for a specific attempt using exponential
// growth with deterministic jitter.
func ComputeBackoff(params Params, policy Policy) time.Duration {
	factor := int64(1)
	if params.AttemptIndex > 0 {
		if params.AttemptIndex > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << params.AttemptIndex
		}
	}

	delay := policy.BaseMs * factor
	if delay > policy.MaxMs {
		delay = policy.MaxMs
	}

	return time.Duration(delay+computeJitter(params, policy)) * time.Millisecond
}

// computeJitter derives jitter from a PRF over the attempt identity.
func computeJitter(params Params, policy Policy) int64 {
	if policy.MaxJitterMs == 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%s:%d", params.Partition, params.EventID, params.AttemptIndex)
	hash := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(hash[:8])
	return int64(basis % uint64(policy.MaxJitterMs))
}
