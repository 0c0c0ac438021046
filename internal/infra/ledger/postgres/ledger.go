// Package postgres persists the memory ledger's version log to PostgreSQL.
// Commits are written in one SQL transaction before they become visible and
// the log is replayed into memory when the ledger is opened.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"pharmanet/internal/infra/ledger/memory"
	"pharmanet/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.Ledger = (*Ledger)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/pharmanet?sslmode=disable"
)

const schema = `CREATE TABLE IF NOT EXISTS ledger_versions (
	seq BIGINT NOT NULL,
	state_key BYTEA NOT NULL,
	tx_id TEXT NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL,
	value BYTEA,
	is_delete BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (seq, state_key)
)`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Ledger is a memory ledger whose commits are written through to Postgres.
type Ledger struct {
	*memory.Ledger
	db *sql.DB
}

// Open connects to dsn (or a local default), ensures the version table and
// replays it.
func Open(ctx context.Context, dsn string, opts ...memory.Option) (*Ledger, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}
	records, err := loadVersions(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	l := &Ledger{db: db}
	l.Ledger = memory.New(append(opts, memory.WithCommitHook(l.persist))...)
	if err := l.Ledger.Import(records); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	return l, nil
}

func loadVersions(ctx context.Context, db *sql.DB) ([]memory.Record, error) {
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
		)
		if err := rows.Scan(&rec.Seq, &key, &rec.TxID, &rec.Timestamp, &rec.Value, &rec.IsDelete); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		rec.Key = string(key)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

func (l *Ledger) persist(ctx context.Context, records []memory.Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_versions(seq, state_key, tx_id, committed_at, value, is_delete) VALUES($1,$2,$3,$4,$5,$6)`,
			int64(rec.Seq), []byte(rec.Key), rec.TxID, rec.Timestamp, rec.Value, rec.IsDelete,
		); err != nil {
			return fmt.Errorf("insert version %d: %w", rec.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close releases the connection pool.
func (l *Ledger) Close() error { return l.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (l *Ledger) DB() *sql.DB { return l.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
