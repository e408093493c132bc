// Package storage journals sync runs to SQLite so recent activity can be
// inspected through the API after the fact.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ricevute/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordRun persists one sync run with its per-file outcomes and returns
// the run's journal ID.
func (r *SQLiteRepository) RecordRun(ctx context.Context, mode string, report core.Report) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sync_runs (mode, message, success_count, skipped_count, error_count, elapsed_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mode, report.Message, report.Success, report.Skipped, report.Errors, report.Elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert sync run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}

	for _, o := range report.Outcomes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_outcomes (run_id, file, status, detail) VALUES (?, ?, ?, ?)`,
			runID, o.File, string(o.Status), o.Detail); err != nil {
			return 0, fmt.Errorf("insert sync outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Sync run journaled",
		"run_id", runID,
		"mode", mode,
		"success", report.Success,
		"skipped", report.Skipped,
		"errors", report.Errors)

	return runID, nil
}

// RecentRuns returns the newest runs first, at most limit of them.
func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]core.RunSummary, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, mode, message, success_count, skipped_count, error_count, elapsed_ms, started_at
		 FROM sync_runs
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []core.RunSummary
	for rows.Next() {
		var run core.RunSummary
		var startedAt string
		if err := rows.Scan(&run.ID, &run.Mode, &run.Message,
			&run.Success, &run.Skipped, &run.Errors,
			&run.ElapsedMS, &startedAt); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			run.StartedAt = t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync runs: %w", err)
	}

	return runs, nil
}

// Outcomes returns the per-file outcomes journaled for one run.
func (r *SQLiteRepository) Outcomes(ctx context.Context, runID int64) ([]core.Outcome, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT file, status, detail FROM sync_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sync outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []core.Outcome
	for rows.Next() {
		var o core.Outcome
		var status string
		if err := rows.Scan(&o.File, &status, &o.Detail); err != nil {
			return nil, fmt.Errorf("scan sync outcome: %w", err)
		}
		o.Status = core.SyncStatus(status)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync outcomes: %w", err)
	}

	return outcomes, nil
}
