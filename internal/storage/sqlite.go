package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/batchsender/pkg/types"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode: dispatchers record outcomes while the run row is updated
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dispatch_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		mode TEXT NOT NULL,
		recipient TEXT NOT NULL,
		keys_loaded INTEGER DEFAULT 0,
		keys_rejected INTEGER DEFAULT 0,
		accounts INTEGER DEFAULT 0,
		confirmed INTEGER DEFAULT 0,
		reverted INTEGER DEFAULT 0,
		timed_out INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		status TEXT DEFAULT 'running'
	);

	CREATE INDEX IF NOT EXISTS idx_dispatch_runs_started ON dispatch_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS dispatch_txs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		address TEXT NOT NULL,
		tx_hash TEXT,
		nonce INTEGER NOT NULL,
		status TEXT NOT NULL,
		block_number INTEGER DEFAULT 0,
		attempts INTEGER DEFAULT 0,
		error_reason TEXT,
		finished_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES dispatch_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_dispatch_txs_run ON dispatch_txs(run_id);
	CREATE INDEX IF NOT EXISTS idx_dispatch_txs_hash ON dispatch_txs(tx_hash);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a new run in running state.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_runs (id, started_at, mode, recipient, keys_loaded, keys_rejected, accounts, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'running')`,
		run.ID, run.StartedAt, run.Mode, run.Recipient, run.KeysLoaded, run.KeysRejected, run.Accounts,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun finalizes a run with its outcome counters.
func (s *SQLiteStorage) CompleteRun(ctx context.Context, id string, run *Run) error {
	completed := time.Now()
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_runs
		SET completed_at = ?, confirmed = ?, reverted = ?, timed_out = ?, failed = ?, status = ?
		WHERE id = ?`,
		completed, run.Confirmed, run.Reverted, run.TimedOut, run.Failed, run.Status, id,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, mode, recipient, keys_loaded, keys_rejected,
		       accounts, confirmed, reverted, timed_out, failed, status
		FROM dispatch_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest-first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, mode, recipient, keys_loaded, keys_rejected,
		       accounts, confirmed, reverted, timed_out, failed, status
		FROM dispatch_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RecordTx appends one account's terminal outcome to the run.
func (s *SQLiteStorage) RecordTx(ctx context.Context, runID string, result types.DispatchResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_txs (run_id, address, tx_hash, nonce, status, block_number, attempts, error_reason, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, result.Address, result.TxHash, result.Nonce, string(result.Status),
		result.BlockNumber, result.Attempts, result.Error, result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tx record: %w", err)
	}
	return nil
}

// ListTxs returns a run's transaction records in insertion order.
func (s *SQLiteStorage) ListTxs(ctx context.Context, runID string, limit, offset int) ([]TxRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, address, tx_hash, nonce, status, block_number, attempts, error_reason, finished_at
		FROM dispatch_txs WHERE run_id = ? ORDER BY id ASC LIMIT ? OFFSET ?`, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query txs: %w", err)
	}
	defer rows.Close()

	var records []TxRecord
	for rows.Next() {
		var (
			rec       TxRecord
			txHash    sql.NullString
			errReason sql.NullString
			status    string
		)
		if err := rows.Scan(&rec.RunID, &rec.Address, &txHash, &rec.Nonce, &status,
			&rec.BlockNumber, &rec.Attempts, &errReason, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan tx record: %w", err)
		}
		rec.TxHash = txHash.String
		rec.Error = errReason.String
		rec.Status = types.DispatchStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		completed sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.StartedAt, &completed, &run.Mode, &run.Recipient,
		&run.KeysLoaded, &run.KeysRejected, &run.Accounts,
		&run.Confirmed, &run.Reverted, &run.TimedOut, &run.Failed, &run.Status); err != nil {
		return nil, err
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return &run, nil
}
