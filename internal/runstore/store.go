package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"weatherflow/internal/config"
	"weatherflow/internal/services"
)

// DatabaseFileName is the run history database under the log directory.
const DatabaseFileName = "runs.db"

// StageRecord is one persisted stage result.
type StageRecord struct {
	Name       string
	Outcome    string
	Attempts   int
	Elapsed    time.Duration
	ErrorClass string
	Diagnostic string
}

// ArtifactRecord is one persisted artifact result.
type ArtifactRecord struct {
	Name      string
	LocalPath string
	Rows      int
	Bytes     int64
	SHA256    string
	Present   bool
}

// Record is a completed pipeline run.
type Record struct {
	RunID       string
	Command     string
	Outcome     string
	StartedAt   time.Time
	FinishedAt  time.Time
	SummaryPath string
	Stages      []StageRecord
	Artifacts   []ArtifactRecord
}

// Store persists run records.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run history database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, DatabaseFileName))
}

// OpenPath opens the database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes a run with its stages and artifacts. Saving the same run ID
// again replaces the earlier record.
func (s *Store) Save(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{"stage_results", "artifacts", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", rec.RunID); err != nil {
			return fmt.Errorf("replace run (%s): %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, command, outcome, started_at, finished_at, summary_path)
         VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Command,
		rec.Outcome,
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
		nullableString(rec.SummaryPath),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, stage := range rec.Stages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_results (run_id, position, name, outcome, attempts, elapsed_ms, error_class, diagnostic)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, i, stage.Name, stage.Outcome, stage.Attempts, stage.Elapsed.Milliseconds(),
			nullableString(stage.ErrorClass), nullableString(stage.Diagnostic),
		); err != nil {
			return fmt.Errorf("insert stage %s: %w", stage.Name, err)
		}
	}

	for _, artifact := range rec.Artifacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (run_id, name, local_path, rows, bytes, sha256, present)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, artifact.Name, artifact.LocalPath, artifact.Rows, artifact.Bytes,
			nullableString(artifact.SHA256), boolToInt(artifact.Present),
		); err != nil {
			return fmt.Errorf("insert artifact %s: %w", artifact.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Latest returns the most recently started run.
func (s *Store) Latest(ctx context.Context) (*Record, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, "SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1").Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "runstore", "latest", "no runs recorded", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return s.Get(ctx, runID)
}

// Get loads one run by ID.
func (s *Store) Get(ctx context.Context, runID string) (*Record, error) {
	rec := &Record{RunID: runID}
	var started, finished string
	var summary sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT command, outcome, started_at, finished_at, summary_path FROM runs WHERE run_id = ?", runID,
	).Scan(&rec.Command, &rec.Outcome, &started, &finished, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "runstore", "get", runID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	rec.StartedAt = parseTime(started)
	rec.FinishedAt = parseTime(finished)
	rec.SummaryPath = summary.String

	stages, err := s.stages(ctx, runID)
	if err != nil {
		return nil, err
	}
	rec.Stages = stages

	artifacts, err := s.artifacts(ctx, runID)
	if err != nil {
		return nil, err
	}
	rec.Artifacts = artifacts
	return rec, nil
}

// Recent returns up to limit runs, newest first, without stage detail.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, command, outcome, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var started, finished string
		if err := rows.Scan(&rec.RunID, &rec.Command, &rec.Outcome, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt = parseTime(started)
		rec.FinishedAt = parseTime(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, outcome, attempts, elapsed_ms, error_class, diagnostic
         FROM stage_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var stage StageRecord
		var elapsedMS int64
		var class, diagnostic sql.NullString
		if err := rows.Scan(&stage.Name, &stage.Outcome, &stage.Attempts, &elapsedMS, &class, &diagnostic); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stage.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		stage.ErrorClass = class.String
		stage.Diagnostic = diagnostic.String
		out = append(out, stage)
	}
	return out, rows.Err()
}

func (s *Store) artifacts(ctx context.Context, runID string) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, local_path, rows, bytes, sha256, present FROM artifacts WHERE run_id = ? ORDER BY name", runID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var artifact ArtifactRecord
		var sum sql.NullString
		var present int
		if err := rows.Scan(&artifact.Name, &artifact.LocalPath, &artifact.Rows, &artifact.Bytes, &sum, &present); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifact.SHA256 = sum.String
		artifact.Present = present != 0
		out = append(out, artifact)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
