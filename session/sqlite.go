// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/courier-foundation/courier/lib/codec"
)

var _ Store = (*SQLiteStore)(nil)

// sessionSchema holds one CBOR-encoded record per session identifier.
// A single upsert replaces the whole record, so readers never observe
// a torn state.
const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	record     BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// sessionPragmas run on every connection before use. WAL keeps a Load
// on reconnect from blocking a debounced Save, and the busy timeout
// covers another process holding the write lock on a shared file.
var sessionPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// SQLiteStore persists records in a SQLite database, for deployments
// that already carry one or that store several sessions side by side.
// Records are CBOR-encoded blobs keyed by session identifier.
type SQLiteStore struct {
	pool *sqlitex.Pool
	id   string
	path string
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// scopes the store to the given session identifier. Logger may be
// nil. The caller must Close the store when done.
func OpenSQLiteStore(path, sessionID string, logger *slog.Logger) (*SQLiteStore, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session: sqlite store requires a session identifier")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Two connections: one for the client's background saves, one so a
	// concurrent Load (or a second store on the same file) does not
	// queue behind them.
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: 2,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range sessionPragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("%s: %w", pragma, err)
				}
			}
			return sqlitex.ExecuteScript(conn, sessionSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: opening sqlite store %s: %w", path, err)
	}
	logger.Debug("sqlite session store opened", "path", path, "session_id", sessionID)
	return &SQLiteStore{pool: pool, id: sessionID, path: path}, nil
}

// Close releases the database connections. It blocks until in-flight
// operations return them.
func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("session: closing sqlite store %s: %w", s.path, err)
	}
	return nil
}

func (s *SQLiteStore) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: acquiring sqlite connection: %w", err)
	}
	return conn, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Record, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var blob []byte
	err = sqlitex.Execute(conn, "SELECT record FROM sessions WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{s.id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			blob = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: loading record %q: %w", s.id, err)
	}
	if blob == nil {
		return nil, ErrNotFound
	}

	var record Record
	if err := codec.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("session: decoding record %q: %w", s.id, err)
	}
	return &record, nil
}

func (s *SQLiteStore) Save(ctx context.Context, record *Record) error {
	blob, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: encoding record %q: %w", s.id, err)
	}

	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO sessions (id, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{s.id, blob, time.Now().Unix()},
		})
	if err != nil {
		return fmt.Errorf("session: saving record %q: %w", s.id, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM sessions WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{s.id},
	})
	if err != nil {
		return fmt.Errorf("session: deleting record %q: %w", s.id, err)
	}
	return nil
}
