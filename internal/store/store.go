// Package store provides the durable state behind the gating
// subsystem: the installation config row anchoring the trial window,
// the per-username unlock ledger, and the user directory backing
// login. Everything lives in one embedded SQLite database; the
// database's unique-key constraints are the sole concurrency-safety
// mechanism, so no in-process locking is needed.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// TrialBaseTimeKey is the system_config key holding the RFC 3339
// timestamp the trial window is anchored to.
const TrialBaseTimeKey = "trial_base_time"

// UnlockRecord is the durable proof that a valid unlock code was once
// submitted for a username. At most one record exists per username; a
// later successful unlock overwrites it.
type UnlockRecord struct {
	Username   string
	Date       string // 8-digit yyyyMMdd embedded in the code
	UnlockCode string // the two-part ciphertext exactly as submitted
}

const schema = `
CREATE TABLE IF NOT EXISTS system_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS unlock_records (
	username    TEXT PRIMARY KEY,
	date        TEXT NOT NULL,
	unlock_code TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);
`

// Config holds the parameters for opening the store.
type Config struct {
	// Path is the SQLite database file. Created if absent. Use
	// ":memory:" in tests (pool size must be 1).
	Path string

	// PoolSize is the number of pooled connections. Defaults to
	// max(NumCPU, 4). SQLite serializes writes regardless; extra
	// connections only help concurrent reads.
	PoolSize int

	// Logger receives operational messages. If nil, discards.
	Logger *slog.Logger
}

// Store is a fixed-size pool of SQLite connections with the schema
// applied. Safe for concurrent use; individual connections are not,
// so every operation takes and returns its own connection.
type Store struct {
	pool      *sqlitex.Pool
	logger    *slog.Logger
	path      string
	closeOnce sync.Once
	closeErr  error
}

// Open creates the connection pool, applies pragmas and the schema to
// every connection, and returns the store. The caller must Close it.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}
	if cfg.Path == ":memory:" {
		// Each in-memory connection is an independent database.
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	logger.Info("store opened",
		"path", cfg.Path,
		"pool_size", poolSize)

	return &Store{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned. Safe to call more than once; later calls return the first
// result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if err := s.pool.Close(); err != nil {
			s.closeErr = fmt.Errorf("store: closing %s: %w", s.path, err)
			return
		}
		s.logger.Info("store closed", "path", s.path)
	})
	return s.closeErr
}

// Ping verifies a connection can be taken and queried. Used by the
// health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	defer s.pool.Put(conn)
	return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
}

// EnsureConfig atomically creates the config row for key with value if
// it does not exist, then returns the stored value. Concurrent first
// callers observe a single winner: the INSERT OR IGNORE either wins or
// is a no-op, and the read that follows sees whichever write won.
func (s *Store) EnsureConfig(ctx context.Context, key, value string) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("store: ensure config: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO system_config (key, value) VALUES (?, ?)",
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return "", fmt.Errorf("store: ensure config insert: %w", err)
	}

	var stored string
	var found bool
	err = sqlitex.Execute(conn,
		"SELECT value FROM system_config WHERE key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stored = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("store: ensure config read: %w", err)
	}
	if !found {
		return "", fmt.Errorf("store: config key %q vanished after insert", key)
	}
	return stored, nil
}

// GetConfig returns the stored value for key, or "" when absent.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("store: get config: %w", err)
	}
	defer s.pool.Put(conn)

	var stored string
	err = sqlitex.Execute(conn,
		"SELECT value FROM system_config WHERE key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stored = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("store: get config: %w", err)
	}
	return stored, nil
}

// UpsertUnlock inserts or fully overwrites the unlock record for
// rec.Username. The username primary key makes concurrent unlocks for
// the same identity converge on the last writer.
func (s *Store) UpsertUnlock(ctx context.Context, rec UnlockRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert unlock: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO unlock_records (username, date, unlock_code) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET date = excluded.date, unlock_code = excluded.unlock_code`,
		&sqlitex.ExecOptions{Args: []any{rec.Username, rec.Date, rec.UnlockCode}})
	if err != nil {
		return fmt.Errorf("store: upsert unlock: %w", err)
	}
	return nil
}

// GetUnlock returns the unlock record for username, or nil when none
// exists.
func (s *Store) GetUnlock(ctx context.Context, username string) (*UnlockRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get unlock: %w", err)
	}
	defer s.pool.Put(conn)

	var rec *UnlockRecord
	err = sqlitex.Execute(conn,
		"SELECT username, date, unlock_code FROM unlock_records WHERE username = ?",
		&sqlitex.ExecOptions{
			Args: []any{username},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec = &UnlockRecord{
					Username:   stmt.ColumnText(0),
					Date:       stmt.ColumnText(1),
					UnlockCode: stmt.ColumnText(2),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: get unlock: %w", err)
	}
	return rec, nil
}

// prepareConnection applies standard pragmas and the schema. Runs once
// per pooled connection on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	return nil
}
