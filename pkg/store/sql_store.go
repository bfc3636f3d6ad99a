package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	// Drivers for the two supported backends.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tequmsa/awareness/pkg/chain"
	"github.com/tequmsa/awareness/pkg/contracts"
)

// SQLStore implements LogStore on database/sql. It works with both SQLite
// (modernc.org/sqlite) and Postgres (lib/pq); $N placeholders are accepted
// by both.
//
// The UNIQUE(partition, idx) constraint is the tail compare-and-swap: two
// appends racing for the same predecessor collide on idx and the loser
// gets ChainContentionError.
type SQLStore struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS awareness_log (
	partition TEXT NOT NULL,
	idx INTEGER NOT NULL,
	log_id TEXT NOT NULL,
	collapse_id TEXT NOT NULL,
	integrity_hash TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	entry TEXT NOT NULL,
	UNIQUE (partition, idx)
);
CREATE INDEX IF NOT EXISTS awareness_log_partition ON awareness_log (partition, idx);
`

// NewSQLStore wraps db and ensures the schema exists.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Append implements LogStore.
func (s *SQLStore) Append(ctx context.Context, partition string, entry *contracts.AwarenessLogEntry) (*contracts.AwarenessLogEntry, error) {
	tail, err := s.ReadTail(ctx, partition)
	if err != nil {
		return nil, err
	}

	sealed := *entry
	if err := chain.Seal(&sealed, tail.HeadHash); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(&sealed)
	if err != nil {
		return nil, fmt.Errorf("store: marshal entry: %w", err)
	}

	const insert = `
		INSERT INTO awareness_log (partition, idx, log_id, collapse_id, integrity_hash, prev_hash, entry)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, insert,
		partition, tail.Count, sealed.LogID, sealed.CollapseID,
		sealed.IntegrityHash, sealed.PrevHash, string(raw),
	)
	if err != nil {
		if isUniqueViolation(err) {
			actual, terr := s.ReadTail(ctx, partition)
			if terr != nil {
				return nil, terr
			}
			return nil, &ChainContentionError{
				Partition:    partition,
				ExpectedTail: tail.HeadHash,
				ActualTail:   actual.HeadHash,
			}
		}
		return nil, fmt.Errorf("store: insert entry: %w", err)
	}
	return &sealed, nil
}

// ReadTail implements LogStore.
func (s *SQLStore) ReadTail(ctx context.Context, partition string) (Tail, error) {
	const query = `
		SELECT idx, integrity_hash FROM awareness_log
		WHERE partition = $1 ORDER BY idx DESC LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, partition)
	var idx int
	var head string
	if err := row.Scan(&idx, &head); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return genesisTail(), nil
		}
		return Tail{}, fmt.Errorf("store: read tail: %w", err)
	}
	return Tail{HeadHash: head, Count: idx + 1}, nil
}

// Read implements LogStore.
func (s *SQLStore) Read(ctx context.Context, partition string) ([]contracts.AwarenessLogEntry, error) {
	const query = `
		SELECT entry FROM awareness_log WHERE partition = $1 ORDER BY idx ASC
	`
	rows, err := s.db.QueryContext(ctx, query, partition)
	if err != nil {
		return nil, fmt.Errorf("store: read partition: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []contracts.AwarenessLogEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e contracts.AwarenessLogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("store: decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Replay implements LogStore.
func (s *SQLStore) Replay(ctx context.Context, partition string) (*IntegrityReport, error) {
	entries, err := s.Read(ctx, partition)
	if err != nil {
		return nil, err
	}
	return replayEntries(partition, entries)
}

// isUniqueViolation recognizes the constraint error across both drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
