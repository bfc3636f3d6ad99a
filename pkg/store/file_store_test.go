package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tequmsa/awareness/pkg/contracts"
)

const testPartition = "2026/08/27"

func newEntry(i int) *contracts.AwarenessLogEntry {
	conf := 0.85
	return &contracts.AwarenessLogEntry{
		LogID:         fmt.Sprintf("log-%03d", i),
		CollapseID:    fmt.Sprintf("collapse-%03d", i),
		ResolutionRef: fmt.Sprintf("res-%03d", i),
		Timestamp:     time.Date(2026, 8, 27, 10, 0, i, 0, time.UTC),
		TierContext:   "tier-1",
		ConsentStatus: contracts.ConsentValid,
		EthicsSignal:  contracts.EthicsAllow,
		Summary:       fmt.Sprintf("entry %d", i),
		Confidence:    &conf,
	}
}

func TestPartitionOf(t *testing.T) {
	// Partitioning is UTC; a late evening in a western timezone lands on the
	// next UTC day.
	loc := time.FixedZone("PST", -8*3600)
	ts := time.Date(2026, 8, 26, 23, 30, 0, 0, loc)
	assert.Equal(t, "2026/08/27", PartitionOf(ts))
}

func TestFileStoreEmptyPartition(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	tail, err := s.ReadTail(context.Background(), testPartition)
	require.NoError(t, err)
	assert.Equal(t, contracts.GenesisHash, tail.HeadHash)
	assert.Equal(t, 0, tail.Count)

	report, err := s.Replay(context.Background(), testPartition)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, -1, report.BrokenAtIndex)
	assert.Equal(t, 0, report.EntriesChecked)
}

func TestFileStoreAppendChains(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := s.Append(ctx, testPartition, newEntry(0))
	require.NoError(t, err)
	assert.Equal(t, contracts.GenesisHash, first.PrevHash)
	assert.Len(t, first.IntegrityHash, 64)

	second, err := s.Append(ctx, testPartition, newEntry(1))
	require.NoError(t, err)
	assert.Equal(t, first.IntegrityHash, second.PrevHash)

	tail, err := s.ReadTail(ctx, testPartition)
	require.NoError(t, err)
	assert.Equal(t, second.IntegrityHash, tail.HeadHash)
	assert.Equal(t, 2, tail.Count)

	entries, err := s.Read(ctx, testPartition)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "log-000", entries[0].LogID)
	assert.Equal(t, "log-001", entries[1].LogID)
}

func TestFileStoreReplayValid(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, testPartition, newEntry(i))
		require.NoError(t, err)
	}

	report, err := s.Replay(ctx, testPartition)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, -1, report.BrokenAtIndex)
	assert.Equal(t, 5, report.EntriesChecked)
	assert.Equal(t, testPartition, report.Partition)
}

func TestFileStoreReplayDetectsTamper(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, testPartition, newEntry(i))
		require.NoError(t, err)
	}

	// Rewrite entry 1's summary in the segment, keeping the stored hashes.
	segment := filepath.Join(root, filepath.FromSlash(testPartition), "awareness.jsonl")
	data, err := os.ReadFile(segment)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	var tampered map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &tampered))
	tampered["summary"] = "history, revised"
	raw, err := json.Marshal(tampered)
	require.NoError(t, err)
	lines[1] = string(raw)
	require.NoError(t, os.WriteFile(segment, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	report, err := s.Replay(ctx, testPartition)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.BrokenAtIndex)
	assert.Equal(t, 3, report.EntriesChecked)
}

func TestFileStoreContention(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	a, err := NewFileStore(root)
	require.NoError(t, err)
	b, err := NewFileStore(root)
	require.NoError(t, err)

	_, err = a.Append(ctx, testPartition, newEntry(0))
	require.NoError(t, err)

	// External writer advances the segment behind a's cached tail.
	_, err = b.Append(ctx, testPartition, newEntry(1))
	require.NoError(t, err)

	_, err = a.Append(ctx, testPartition, newEntry(2))
	var contention *ChainContentionError
	require.ErrorAs(t, err, &contention)
	assert.Equal(t, testPartition, contention.Partition)

	// The contention refreshed a's view; the retry lands on the new tail.
	sealed, err := a.Append(ctx, testPartition, newEntry(2))
	require.NoError(t, err)

	report, err := a.Replay(ctx, testPartition)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, sealed.IntegrityHash, report.HeadHash)
}

func TestFileStoreResume(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(root)
	require.NoError(t, err)
	sealed, err := s.Append(ctx, testPartition, newEntry(0))
	require.NoError(t, err)

	// Fresh store instance, snapshot present and matching.
	reopened, err := NewFileStore(root)
	require.NoError(t, err)
	tail, err := reopened.Resume(ctx, testPartition)
	require.NoError(t, err)
	assert.Equal(t, sealed.IntegrityHash, tail.HeadHash)
	assert.Equal(t, 1, tail.Count)
}

func TestFileStoreResumeStaleSnapshot(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(root)
	require.NoError(t, err)
	_, err = s.Append(ctx, testPartition, newEntry(0))
	require.NoError(t, err)
	sealed, err := s.Append(ctx, testPartition, newEntry(1))
	require.NoError(t, err)

	// Poison the snapshot; the scanned segment must win.
	snap := filepath.Join(root, filepath.FromSlash(testPartition), "tail.json")
	require.NoError(t, os.WriteFile(snap, []byte(`{"head_hash":"bogus","count":9}`), 0o644))

	reopened, err := NewFileStore(root)
	require.NoError(t, err)
	tail, err := reopened.Resume(ctx, testPartition)
	require.NoError(t, err)
	assert.Equal(t, sealed.IntegrityHash, tail.HeadHash)
	assert.Equal(t, 2, tail.Count)
}

func TestFileStorePartitionsIsolated(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Append(ctx, "2026/08/26", newEntry(0))
	require.NoError(t, err)
	first, err := s.Append(ctx, "2026/08/27", newEntry(1))
	require.NoError(t, err)

	// Each partition chains from its own genesis.
	assert.Equal(t, contracts.GenesisHash, first.PrevHash)
}

func TestFileStoreCancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Append(ctx, testPartition, newEntry(0))
	assert.True(t, errors.Is(err, context.Canceled))
}
