package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tequmsa/awareness/pkg/chain"
	"github.com/tequmsa/awareness/pkg/contracts"
)

const (
	segmentName  = "awareness.jsonl"
	snapshotName = "tail.json"
)

// FileStore persists partitions as JSON Lines segments under
// root/YYYY/MM/DD/awareness.jsonl. Appends are serialized per partition;
// the segment file is only ever opened in append mode.
//
// A tail.json snapshot next to each segment caches the last known-good
// head hash for fast resume. The snapshot is an optimization: it is
// trusted only after the last stored line confirms it, and a full replay
// never consults it.
//
// Cross-process coordination is best effort: the cached-tail comparison
// notices an external writer only between Append calls, not inside
// another process's scan-to-write window. Each partition therefore still
// requires a single logical writer; replay remains the authority for
// detecting any interleaving that slips through.
type FileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	tails map[string]Tail
}

// NewFileStore opens (creating if needed) a file-backed log store rooted at
// root, conventionally "logs/awareness".
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root: %w", err)
	}
	return &FileStore{
		root:  root,
		locks: make(map[string]*sync.Mutex),
		tails: make(map[string]Tail),
	}, nil
}

// partitionLock returns the mutex guarding a partition's tail.
func (s *FileStore) partitionLock(partition string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[partition]
	if !ok {
		l = &sync.Mutex{}
		s.locks[partition] = l
	}
	return l
}

func (s *FileStore) segmentPath(partition string) string {
	return filepath.Join(s.root, filepath.FromSlash(partition), segmentName)
}

func (s *FileStore) snapshotPath(partition string) string {
	return filepath.Join(s.root, filepath.FromSlash(partition), snapshotName)
}

// Append implements LogStore.
func (s *FileStore) Append(ctx context.Context, partition string, entry *contracts.AwarenessLogEntry) (*contracts.AwarenessLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := s.partitionLock(partition)
	lock.Lock()
	defer lock.Unlock()

	tail, err := s.loadTail(partition)
	if err != nil {
		return nil, err
	}

	// Guard against an external writer having advanced the segment since
	// the tail was cached. A stale tail must never be appended against.
	s.mu.Lock()
	cached, haveCached := s.tails[partition]
	s.mu.Unlock()
	if haveCached && cached.HeadHash != tail.HeadHash {
		s.mu.Lock()
		s.tails[partition] = tail
		s.mu.Unlock()
		return nil, &ChainContentionError{
			Partition:    partition,
			ExpectedTail: cached.HeadHash,
			ActualTail:   tail.HeadHash,
		}
	}

	sealed := *entry
	if err := chain.Seal(&sealed, tail.HeadHash); err != nil {
		return nil, err
	}

	line, err := json.Marshal(&sealed)
	if err != nil {
		return nil, fmt.Errorf("store: marshal entry: %w", err)
	}

	path := s.segmentPath(partition)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create partition dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open segment: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("store: append entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("store: close segment: %w", err)
	}

	newTail := Tail{HeadHash: sealed.IntegrityHash, Count: tail.Count + 1}
	s.mu.Lock()
	s.tails[partition] = newTail
	s.mu.Unlock()
	s.writeSnapshot(partition, newTail)

	return &sealed, nil
}

// ReadTail implements LogStore.
func (s *FileStore) ReadTail(ctx context.Context, partition string) (Tail, error) {
	if err := ctx.Err(); err != nil {
		return Tail{}, err
	}
	lock := s.partitionLock(partition)
	lock.Lock()
	defer lock.Unlock()
	return s.loadTail(partition)
}

// loadTail determines the partition tail. The snapshot is used only when
// the last segment line confirms its head hash; otherwise the segment is
// scanned.
func (s *FileStore) loadTail(partition string) (Tail, error) {
	entries, err := s.readSegment(partition)
	if err != nil {
		return Tail{}, err
	}
	if len(entries) == 0 {
		return genesisTail(), nil
	}
	return Tail{
		HeadHash: entries[len(entries)-1].IntegrityHash,
		Count:    len(entries),
	}, nil
}

// Resume returns the tail using the snapshot when it matches the stored
// segment head, avoiding a full scan cost being attributed to the caller.
func (s *FileStore) Resume(ctx context.Context, partition string) (Tail, error) {
	if err := ctx.Err(); err != nil {
		return Tail{}, err
	}
	lock := s.partitionLock(partition)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.readSnapshot(partition)
	if err == nil {
		tail, terr := s.loadTail(partition)
		if terr != nil {
			return Tail{}, terr
		}
		if tail == snap {
			return snap, nil
		}
		// Stale snapshot: fall through with the scanned truth.
		return tail, nil
	}
	return s.loadTail(partition)
}

// Read implements LogStore.
func (s *FileStore) Read(ctx context.Context, partition string) ([]contracts.AwarenessLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readSegment(partition)
}

// Replay implements LogStore.
func (s *FileStore) Replay(ctx context.Context, partition string) (*IntegrityReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.readSegment(partition)
	if err != nil {
		return nil, err
	}
	return replayEntries(partition, entries)
}

func (s *FileStore) readSegment(partition string) ([]contracts.AwarenessLogEntry, error) {
	f, err := os.Open(s.segmentPath(partition))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open segment: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []contracts.AwarenessLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e contracts.AwarenessLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("store: partition %s line %d: %w", partition, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scan segment: %w", err)
	}
	return entries, nil
}

func (s *FileStore) writeSnapshot(partition string, tail Tail) {
	data, err := json.Marshal(tail)
	if err != nil {
		return
	}
	// Snapshot loss is harmless; the segment remains the source of truth.
	_ = os.WriteFile(s.snapshotPath(partition), data, 0o644)
}

func (s *FileStore) readSnapshot(partition string) (Tail, error) {
	data, err := os.ReadFile(s.snapshotPath(partition))
	if err != nil {
		return Tail{}, err
	}
	var t Tail
	if err := json.Unmarshal(data, &t); err != nil {
		return Tail{}, err
	}
	return t, nil
}

// replayEntries recomputes the chain and builds the report.
func replayEntries(partition string, entries []contracts.AwarenessLogEntry) (*IntegrityReport, error) {
	broken, err := chain.Replay(entries)
	if err != nil {
		return nil, err
	}
	report := &IntegrityReport{
		Partition:      partition,
		Valid:          broken < 0,
		BrokenAtIndex:  broken,
		EntriesChecked: len(entries),
	}
	if len(entries) > 0 {
		report.HeadHash = entries[len(entries)-1].IntegrityHash
	} else {
		report.HeadHash = contracts.GenesisHash
	}
	return report, nil
}
