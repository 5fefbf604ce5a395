package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/agent-racer/sessionizer/internal/session"
)

const (
	sqliteDriver = "sqlite"
	sqliteDSNOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	run_id     TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	ip         TEXT    NOT NULL,
	first_seen TEXT    NOT NULL,
	last_seen  TEXT    NOT NULL,
	duration   INTEGER NOT NULL,
	page_count INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS sessions_ip ON sessions (ip);`

// SQLite stores every record of one run in a sessions table. All rows of a
// run are written in a single transaction committed by Close.
type SQLite struct {
	db    *sql.DB
	tx    *sql.Tx
	stmt  *sql.Stmt
	runID string
	seq   int
}

// OpenSQLite opens (creating if needed) the database at path and starts a
// run. runID must be unique per run.
func OpenSQLite(ctx context.Context, path, runID string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite sink: path is required")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("sqlite sink: run id is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite sink: create dir: %w", err)
	}
	db, err := sql.Open(sqliteDriver, path+sqliteDSNOpt)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite sink: migrate: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite sink: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO sessions (run_id, seq, ip, first_seen, last_seen, duration, page_count)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		_ = db.Close()
		return nil, fmt.Errorf("sqlite sink: prepare: %w", err)
	}
	return &SQLite{db: db, tx: tx, stmt: stmt, runID: runID}, nil
}

func (s *SQLite) Write(r session.Record) error {
	_, err := s.stmt.Exec(
		s.runID, s.seq, r.IP,
		r.FirstSeen.Format(session.TimeLayout),
		r.LastSeen.Format(session.TimeLayout),
		r.Duration, r.PageCount,
	)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert: %w", err)
	}
	s.seq++
	return nil
}

// Close commits the run and closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := errors.Join(s.stmt.Close(), s.tx.Commit(), s.db.Close())
	s.db = nil
	if err != nil {
		return fmt.Errorf("sqlite sink: close: %w", err)
	}
	return nil
}
