// Package sqlite persists the memory ledger's version log to an embedded
// SQLite file. Every commit appends its records inside one SQL transaction
// before the versions become visible; opening a file replays the log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pharmanet/internal/infra/ledger/memory"
	"pharmanet/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.Ledger = (*Ledger)(nil)

// DefaultPath is used when no file path is configured.
const DefaultPath = "pharmanet.db"

const schema = `CREATE TABLE IF NOT EXISTS ledger_versions (
	seq INTEGER NOT NULL,
	state_key BLOB NOT NULL,
	tx_id TEXT NOT NULL,
	committed_at TEXT NOT NULL,
	value BLOB,
	is_delete INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (seq, state_key)
)`

// Ledger is a memory ledger whose commits are written through to SQLite.
type Ledger struct {
	*memory.Ledger
	db   *sql.DB
	path string
}

// Open opens or creates the ledger file at path and replays its log.
func Open(ctx context.Context, path string, opts ...memory.Option) (*Ledger, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc serializes writers per connection; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	records, err := load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	l := &Ledger{db: db, path: path}
	l.Ledger = memory.New(append(opts, memory.WithCommitHook(l.persist))...)
	if err := l.Ledger.Import(records); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	return l, nil
}

func load(ctx context.Context, db *sql.DB) ([]memory.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT seq, state_key, tx_id, committed_at, value, is_delete FROM ledger_versions ORDER BY seq, state_key`)
	if err != nil {
		return nil, fmt.Errorf("select versions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []memory.Record
	for rows.Next() {
		var (
			rec memory.Record
			key []byte
			ts  string
		)
		if err := rows.Scan(&rec.Seq, &key, &rec.TxID, &ts, &rec.Value, &rec.IsDelete); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		rec.Key = string(key)
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse commit time of seq %d: %w", rec.Seq, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

func (l *Ledger) persist(ctx context.Context, records []memory.Record) (retErr error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_versions(seq, state_key, tx_id, committed_at, value, is_delete) VALUES(?,?,?,?,?,?)`,
			rec.Seq, []byte(rec.Key), rec.TxID, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Value, rec.IsDelete,
		); err != nil {
			return fmt.Errorf("insert version %d: %w", rec.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (l *Ledger) DB() *sql.DB { return l.db }

// Path returns the configured database path.
func (l *Ledger) Path() string { return l.path }
