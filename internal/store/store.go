// Package store provides persistence for the livelog event log.
//
// The store is the Range Query Adapter of the pager: it answers bounded
// "older than" queries and unbounded "newer than, up to boundary" queries,
// both ordered by (ts DESC, id DESC).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/juju/clock"
	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Store handles event persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex // Protects all database operations
	clock   clock.Clock
}

// memSeq gives every in-memory database its own name so stores opened by
// different tests never share tables.
var memSeq atomic.Int64

// Open creates a SQLite-backed Store at the given path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every connection in the pool sees the same database
		connStr = fmt.Sprintf("file:livelog-mem-%d?mode=memory&cache=shared", memSeq.Add(1))
	}

	db, err := sql.Open(SQLite.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := NewWithDB(db, SQLite)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// OpenPostgres creates a Postgres-backed Store from a lib/pq DSN.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open(Postgres.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewWithDB(db, Postgres)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// OpenDriver opens a store for the named dialect. target is a file path for
// SQLite and a DSN for Postgres.
func OpenDriver(driver, target string) (*Store, error) {
	d, ok := DialectFor(driver)
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if d.Name == Postgres.Name {
		return OpenPostgres(target)
	}
	return Open(target)
}

// NewWithDB wraps an already-open database. Tables are not created; call
// Migrate when needed.
func NewWithDB(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, clock: clock.WallClock}
}

// SetClock replaces the clock used to stamp rows and report Stats.Now.
func (s *Store) SetClock(clk clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clk
}

// Migrate creates the required tables and indexes if they don't exist.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(s.dialect.schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Dialect returns the backend this store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Append stores rows, returning count of new rows inserted.
// Rows without an ID get a fresh UUIDv7; rows without a timestamp are stamped
// with the current time. Duplicate IDs are silently ignored.
// Thread-safe: acquires write lock.
func (s *Store) Append(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stamped := make([]Row, len(rows))
	nowMs := s.clock.Now().UnixMilli()
	for i, r := range rows {
		if r.Timestamp < 0 {
			return 0, fmt.Errorf("row %d: negative timestamp %d", i, r.Timestamp)
		}
		if r.Timestamp == 0 {
			r.Timestamp = nowMs
		}
		if r.ID == "" {
			id, err := NewID()
			if err != nil {
				return 0, err
			}
			r.ID = id
		}
		stamped[i] = r
	}

	var inserted int
	op := func() error {
		n, err := s.insert(ctx, stamped)
		inserted = n
		return err
	}
	var err error
	if s.dialect.Name == SQLite.Name {
		err = retryOp(ctx, defaultRetryConfig, op)
	} else {
		err = op()
	}
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// insert writes rows in a single transaction. Caller must hold s.mu.
func (s *Store) insert(ctx context.Context, rows []Row) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback is safe to call even after commit - it's a no-op
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO events (id, ts, monitor, region, status, status_code, latency_ms, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range rows {
		result, err := stmt.ExecContext(ctx,
			r.ID,
			r.Timestamp,
			r.Monitor,
			r.Region,
			r.Status,
			r.StatusCode,
			r.LatencyMs,
			r.Message,
		)
		if err != nil {
			return 0, fmt.Errorf("insert row %s: %w", r.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Stats returns the row count and timestamp bounds.
// Thread-safe: acquires read lock.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MIN(ts), 0), COALESCE(MAX(ts), 0) FROM events",
	).Scan(&st.Count, &st.Oldest, &st.Newest)
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}
	st.Now = s.clock.Now().UnixMilli()
	return st, nil
}
