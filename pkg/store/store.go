// Package store persists hash-chained awareness log entries in ordered,
// date-partitioned, append-only segments and supports tamper detection by
// replay.
//
// The per-partition tail hash is the only mutable shared resource in the
// core; every backend serializes the read-tail/seal/append sequence and
// surfaces races as ChainContentionError for the caller to retry.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tequmsa/awareness/pkg/contracts"
)

// PartitionOf derives the date partition key (YYYY/MM/DD, UTC) for t.
func PartitionOf(t time.Time) string {
	return t.UTC().Format("2006/01/02")
}

// Tail is the per-partition chain head.
type Tail struct {
	HeadHash string `json:"head_hash"`
	Count    int    `json:"count"`
}

// IntegrityReport is the outcome of replaying a partition from genesis.
// An invalid report is an audit finding, not an operational error.
type IntegrityReport struct {
	Partition      string `json:"partition"`
	Valid          bool   `json:"valid"`
	BrokenAtIndex  int    `json:"broken_at_index"` // -1 when valid
	EntriesChecked int    `json:"entries_checked"`
	HeadHash       string `json:"head_hash"`
}

// ChainContentionError reports that an append raced another writer for the
// same previous tail. Transient: re-read the tail and retry.
type ChainContentionError struct {
	Partition    string
	ExpectedTail string
	ActualTail   string
}

func (e *ChainContentionError) Error() string {
	return fmt.Sprintf("chain contention on partition %s: expected tail %.12s, found %.12s",
		e.Partition, e.ExpectedTail, e.ActualTail)
}

// LogStore is the append-only store contract. Implementations must never
// rewrite or reorder persisted entries.
type LogStore interface {
	// Append seals entry against the partition's current tail and persists
	// it. The returned entry carries prev_hash and integrity_hash. Returns
	// *ChainContentionError when a concurrent append won the tail.
	Append(ctx context.Context, partition string, entry *contracts.AwarenessLogEntry) (*contracts.AwarenessLogEntry, error)

	// ReadTail returns the partition's current head hash and entry count.
	// An empty partition has the genesis head and count zero.
	ReadTail(ctx context.Context, partition string) (Tail, error)

	// Read returns all entries of a partition in append order.
	Read(ctx context.Context, partition string) ([]contracts.AwarenessLogEntry, error)

	// Replay recomputes the chain from genesis and reports the first index
	// where the stored hashes do not match the recomputed values.
	Replay(ctx context.Context, partition string) (*IntegrityReport, error)
}

// genesisTail is the tail of an empty partition.
func genesisTail() Tail {
	return Tail{HeadHash: contracts.GenesisHash, Count: 0}
}
