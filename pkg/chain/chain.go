// Package chain seals awareness log entries into a rolling hash chain.
//
// integrity_hash = SHA-256(prev_hash_bytes || canonical_entry_core), where
// the entry core is the record minus its integrity_hash and prev_hash
// fields, canonicalized per RFC 8785. The first entry of a partition links
// to a genesis hash of 64 zero characters.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tequmsa/awareness/pkg/canonicalize"
	"github.com/tequmsa/awareness/pkg/contracts"
)

// CanonicalCore returns the RFC 8785 canonical bytes of the entry with the
// integrity fields excluded. Every other field, summary included, is part
// of the hashed core.
func CanonicalCore(entry *contracts.AwarenessLogEntry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal entry: %w", err)
	}
	var core map[string]any
	if err := json.Unmarshal(raw, &core); err != nil {
		return nil, fmt.Errorf("chain: decode entry: %w", err)
	}
	delete(core, "integrity_hash")
	delete(core, "prev_hash")
	return canonicalize.JCS(core)
}

// ComputeHash derives the integrity hash for an entry given its
// predecessor's hash.
func ComputeHash(prevHash string, entry *contracts.AwarenessLogEntry) (string, error) {
	core, err := CanonicalCore(entry)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(core)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seal links entry to prevHash and stamps its integrity hash. The entry is
// modified in place and must not change afterwards.
func Seal(entry *contracts.AwarenessLogEntry, prevHash string) error {
	if prevHash == "" {
		prevHash = contracts.GenesisHash
	}
	entry.PrevHash = prevHash
	hash, err := ComputeHash(prevHash, entry)
	if err != nil {
		return err
	}
	entry.IntegrityHash = hash
	return nil
}

// VerifyEntry recomputes an entry's integrity hash from its stored prev_hash
// and reports whether it matches the stored value.
func VerifyEntry(entry *contracts.AwarenessLogEntry) (bool, error) {
	computed, err := ComputeHash(entry.PrevHash, entry)
	if err != nil {
		return false, err
	}
	return computed == entry.IntegrityHash, nil
}

// Replay walks entries in order, recomputing the chain from genesis.
// It returns the first 0-based index where either the link to the
// predecessor or the recomputed content hash does not match, or -1 when the
// chain is intact.
func Replay(entries []contracts.AwarenessLogEntry) (int, error) {
	prev := contracts.GenesisHash
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prev {
			return i, nil
		}
		computed, err := ComputeHash(e.PrevHash, e)
		if err != nil {
			return i, err
		}
		if computed != e.IntegrityHash {
			return i, nil
		}
		prev = e.IntegrityHash
	}
	return -1, nil
}
