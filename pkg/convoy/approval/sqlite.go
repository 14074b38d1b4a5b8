package approval

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists approvals to SQLite. It can share a database
// file with the checkpoint store; the tables are independent.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore creates a new SQLite approval store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			node TEXT NOT NULL,
			status TEXT NOT NULL,
			decision TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			requested_at TEXT NOT NULL,
			resolved_at TEXT,
			consumed_at TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, a *Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, thread_id, node, status, decision, note, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ThreadID, a.Node, string(a.Status), string(a.Decision), a.Note,
		a.RequestedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.get(ctx, id)
}

// get reads a row. Caller holds the mutex.
func (s *SQLiteStore) get(ctx context.Context, id string) (*Approval, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, node, status, decision, note, requested_at, resolved_at, consumed_at
		FROM approvals WHERE id = ?
	`, id)

	var a Approval
	var status, decision, requestedAt string
	var resolvedAt, consumedAt sql.NullString

	err := row.Scan(&a.ID, &a.ThreadID, &a.Node, &status, &decision, &a.Note,
		&requestedAt, &resolvedAt, &consumedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan approval: %w", err)
	}

	a.Status = Status(status)
	a.Decision = Decision(decision)
	if t, perr := time.Parse(time.RFC3339Nano, requestedAt); perr == nil {
		a.RequestedAt = t
	}
	if resolvedAt.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, resolvedAt.String); perr == nil {
			a.ResolvedAt = &t
		}
	}
	if consumedAt.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, consumedAt.String); perr == nil {
			a.ConsumedAt = &t
		}
	}
	return &a, nil
}

// Resolve implements Store. The conditional UPDATE makes the
// pending → decided transition atomic.
func (s *SQLiteStore) Resolve(ctx context.Context, id string, decision Decision, note string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	target := StatusApproved
	if decision == DecisionReject {
		target = StatusRejected
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, decision = ?, note = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, string(target), string(decision), note, now, id, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("resolve approval: %w", err)
	}

	a, getErr := s.get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return a, ErrAlreadyResolved
	}
	return a, nil
}

// Consume implements Store. The conditional UPDATE makes the
// approved → consumed transition atomic, so the gated node runs at most
// once per approval.
func (s *SQLiteStore) Consume(ctx context.Context, id string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, consumed_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusConsumed), now, id, string(StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("consume approval: %w", err)
	}

	a, getErr := s.get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return a, ErrNotApproved
	}
	return a, nil
}

// ListPending implements Store.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM approvals WHERE status = ? ORDER BY requested_at ASC
	`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Approval, 0, len(ids))
	for _, id := range ids {
		a, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
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
