// Package coherence computes a normalized scalar score from a symbolic
// sequence using weighted Fibonacci-windowed sampling. Deterministic given
// the sequence; no I/O.
package coherence

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
)

// DefaultFloor is the lower bound of the score band. The band is
// [floor, 1.0] rather than [0, 1]; the floor is configuration, not a
// hard-coded threshold.
const DefaultFloor = 0.777

// Phi is the golden ratio, used as the window weighting base.
const Phi = 1.618033988749895

// DefaultWindows is the ascending Fibonacci window set for the standard
// 144-symbol sequence.
var DefaultWindows = []int{1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144}

// ErrInvalidArgument is returned for an empty sequence.
var ErrInvalidArgument = errors.New("coherence: sequence must be non-empty")

// Scorer evaluates sequences over a fixed window set.
type Scorer struct {
	windows []int
	floor   float64
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWindows overrides the Fibonacci window set. The list must be ascending.
func WithWindows(windows []int) Option {
	return func(s *Scorer) { s.windows = windows }
}

// WithFloor overrides the band floor.
func WithFloor(floor float64) Option {
	return func(s *Scorer) { s.floor = floor }
}

// NewScorer builds a Scorer with the default window set and floor.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{windows: DefaultWindows, floor: DefaultFloor}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score maps a sequence to a float in [floor, 1.0].
//
// For each window size k not exceeding the sequence length, the first k
// symbols are hashed, the digest is normalized into [0,1], and the value is
// weighted by Phi^(k/12). The weighted average is then mapped into the band
// via floor + avg*(1-floor).
func (s *Scorer) Score(seq string) (float64, error) {
	if seq == "" {
		return 0, ErrInvalidArgument
	}

	var sum, totalWeight float64
	for _, k := range s.windows {
		if k <= 0 || k > len(seq) {
			continue
		}
		weight := math.Pow(Phi, float64(k)/12.0)
		sum += weight * normalizedHash(seq[:k])
		totalWeight += weight
	}
	if totalWeight == 0 {
		// Sequence shorter than every window; fall back to a single
		// whole-sequence sample.
		sum = normalizedHash(seq)
		totalWeight = 1
	}

	avg := sum / totalWeight
	return s.floor + avg*(1.0-s.floor), nil
}

// Floor returns the configured band floor.
func (s *Scorer) Floor() float64 { return s.floor }

// normalizedHash maps SHA-256(sub) into [0,1] using the first 8 digest bytes.
func normalizedHash(sub string) float64 {
	digest := sha256.Sum256([]byte(sub))
	v := binary.BigEndian.Uint64(digest[:8])
	return float64(v) / float64(math.MaxUint64)
}
