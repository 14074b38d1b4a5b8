package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./conversations.db") or
// ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			thread_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			pending_node TEXT NOT NULL DEFAULT '',
			approval_id TEXT NOT NULL DEFAULT '',
			state BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread
		ON checkpoints(thread_id, sequence)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
			(id, version, thread_id, sequence, timestamp, parent_id, status, pending_node, approval_id, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cp.ID, cp.Version, cp.ThreadID, cp.Sequence,
		cp.Timestamp.UTC().Format(time.RFC3339Nano),
		cp.ParentID, string(cp.Status), cp.PendingNode, cp.ApprovalID,
		[]byte(cp.State),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, thread_id, sequence, timestamp, parent_id, status, pending_node, approval_id, state
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY sequence DESC
		LIMIT 1
	`, threadID)

	return scanCheckpoint(row)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, thread_id, sequence, timestamp, parent_id, status, pending_node, approval_id, state
		FROM checkpoints
		WHERE id = ?
	`, id)

	return scanCheckpoint(row)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, threadID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sequence, timestamp, status, LENGTH(state)
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY sequence ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		var ts, status string
		if err := rows.Scan(&info.ID, &info.ThreadID, &info.Sequence, &ts, &status, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.Status = Status(status)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			info.Timestamp = t
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteThread implements Store.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var ts, status string
	var state []byte

	err := row.Scan(&cp.ID, &cp.Version, &cp.ThreadID, &cp.Sequence, &ts, &cp.ParentID, &status, &cp.PendingNode, &cp.ApprovalID, &state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	cp.Status = Status(status)
	cp.State = state
	if t, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
		cp.Timestamp = t
	}
	return &cp, nil
}

func isUniqueViolation(err error) bool {
	// modernc sqlite reports constraint violations in the error text;
	// no typed error is exposed for them.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
