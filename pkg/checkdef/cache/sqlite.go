package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists entries to a SQLite database.
// Concurrent processes sharing the file are serialized by SQLite's locking;
// the insert is a single statement, so a reader never sees a partial row.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a SQLite store.
// The path should be a file path (e.g., ".checkdef/cache.db") or ":memory:" for testing.
// The parent directory must already exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// WAL lets concurrent checklist invocations read while one writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			fingerprint TEXT PRIMARY KEY,
			check_name TEXT NOT NULL,
			passed INTEGER NOT NULL,
			original_duration_ns INTEGER NOT NULL,
			created_at_ns INTEGER NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_results_created_at
		ON results(created_at_ns)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, fingerprint string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		e         Entry
		passed    int
		duration  int64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, check_name, passed, original_duration_ns, created_at_ns, run_id, version
		FROM results
		WHERE fingerprint = ?
	`, fingerprint).Scan(&e.Fingerprint, &e.Check, &passed, &duration, &createdAt, &e.RunID, &e.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entry: %w", err)
	}
	e.Passed = passed != 0
	e.OriginalDuration = time.Duration(duration)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	return &e, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	// DO NOTHING keeps the first writer's entry when processes race.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO results (fingerprint, check_name, passed, original_duration_ns, created_at_ns, run_id, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, e.Fingerprint, e.Check, boolToInt(e.Passed), int64(e.OriginalDuration), e.CreatedAt.UnixNano(), e.RunID, e.Version)
	if err != nil {
		return false, fmt.Errorf("record entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record entry: %w", err)
	}
	return n == 1, nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{}, ErrStoreClosed
	}

	var (
		count int
		total int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(original_duration_ns), 0) FROM results
	`).Scan(&count, &total)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return Stats{Backend: BackendSQLite, Entries: count, Original: time.Duration(total)}, nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM results WHERE created_at_ns < ?
	`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	return int(n), nil
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
