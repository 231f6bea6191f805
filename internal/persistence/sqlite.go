package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (and migrates) the journal database at path.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &SQLiteJournal{db: db}

	if err := j.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return j, nil
}

// Migrate runs database migrations.
func (j *SQLiteJournal) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			account TEXT NOT NULL,
			broker TEXT NOT NULL,
			isin TEXT NOT NULL,
			serial INTEGER NOT NULL,
			price TEXT NOT NULL,
			volume INTEGER NOT NULL,
			executed_volume INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			recorded_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_run_id ON orders(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_serial ON orders(serial)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_isin ON orders(isin)`,

		`CREATE TABLE IF NOT EXISTS watcher_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT UNIQUE NOT NULL,
			key TEXT NOT NULL,
			account TEXT NOT NULL,
			broker TEXT NOT NULL,
			isin TEXT NOT NULL,
			target INTEGER NOT NULL,
			sold INTEGER NOT NULL,
			state TEXT NOT NULL,
			finished_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_key ON watcher_runs(key)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON watcher_runs(finished_at)`,
	}

	for i, migration := range migrations {
		if _, err := j.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// RecordOrder appends one order state record.
func (j *SQLiteJournal) RecordOrder(ctx context.Context, rec OrderRecord) error {
	query := `
		INSERT INTO orders (run_id, account, broker, isin, serial, price, volume, executed_volume, state, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Account,
		rec.Broker,
		rec.ISIN,
		rec.Serial,
		rec.Price.String(),
		rec.Volume,
		rec.ExecutedVolume,
		rec.State,
		rec.Reason,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}
	return nil
}

// GetOrders returns the order records of one run, oldest first.
func (j *SQLiteJournal) GetOrders(ctx context.Context, runID string) ([]OrderRecord, error) {
	query := `
		SELECT id, run_id, account, broker, isin, serial, price, volume, executed_volume, state, reason, recorded_at
		FROM orders
		WHERE run_id = ?
		ORDER BY id ASC
	`
	rows, err := j.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []OrderRecord
	for rows.Next() {
		var rec OrderRecord
		var price string
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Account,
			&rec.Broker,
			&rec.ISIN,
			&rec.Serial,
			&price,
			&rec.Volume,
			&rec.ExecutedVolume,
			&rec.State,
			&rec.Reason,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		rec.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecordRun upserts the outcome of one watcher run.
func (j *SQLiteJournal) RecordRun(ctx context.Context, rec WatcherRun) error {
	query := `
		INSERT INTO watcher_runs (run_id, key, account, broker, isin, target, sold, state, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			target = excluded.target,
			sold = excluded.sold,
			state = excluded.state,
			finished_at = excluded.finished_at
	`
	_, err := j.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Key,
		rec.Account,
		rec.Broker,
		rec.ISIN,
		rec.Target,
		rec.Sold,
		rec.State,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// GetRuns returns runs that finished in [from, to], oldest first.
func (j *SQLiteJournal) GetRuns(ctx context.Context, from, to time.Time) ([]WatcherRun, error) {
	query := `
		SELECT id, run_id, key, account, broker, isin, target, sold, state, finished_at
		FROM watcher_runs
		WHERE finished_at >= ? AND finished_at <= ?
		ORDER BY finished_at ASC
	`
	rows, err := j.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []WatcherRun
	for rows.Next() {
		var rec WatcherRun
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Key,
			&rec.Account,
			&rec.Broker,
			&rec.ISIN,
			&rec.Target,
			&rec.Sold,
			&rec.State,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}
