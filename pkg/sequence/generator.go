// Package sequence derives fixed-length symbolic sequences from a seed and
// an identifier using iterated SHA-256 hashing. Pure: identical inputs
// always yield identical output, no I/O.
package sequence

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// DefaultLength is the standard sequence length.
const DefaultLength = 144

// ErrInvalidArgument is returned when length is not positive.
var ErrInvalidArgument = errors.New("sequence: length must be positive")

// alphabet maps byte mod 4 to a symbol.
var alphabet = [4]byte{'A', 'T', 'C', 'G'}

const separator = ":"

// Generate derives a length-character string over {A,T,C,G} from seed and
// identifier.
//
// The byte stream is produced by hashing seed+":"+identifier with SHA-256
// and then repeatedly re-hashing the running digest; each byte contributes
// one symbol via byte mod 4.
func Generate(seed, identifier string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidArgument, length)
	}

	digest := sha256.Sum256([]byte(seed + separator + identifier))

	out := make([]byte, 0, length)
	for len(out) < length {
		for _, b := range digest {
			out = append(out, alphabet[b%4])
			if len(out) == length {
				break
			}
		}
		digest = sha256.Sum256(digest[:])
	}
	return string(out), nil
}

// GenerateDefault derives a DefaultLength-character sequence.
func GenerateDefault(seed, identifier string) (string, error) {
	return Generate(seed, identifier, DefaultLength)
}

// Valid reports whether s is a well-formed sequence: non-empty and drawn
// entirely from the {A,T,C,G} alphabet.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'A', 'T', 'C', 'G':
		default:
			return false
		}
	}
	return true
}
