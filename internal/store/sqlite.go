package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/agent-evo/internal/evaluator"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt *sql.Stmt
	getRunStmt    *sql.Stmt
}

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			total INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			pass_rate REAL NOT NULL,
			release_blocked INTEGER NOT NULL,
			optimized INTEGER NOT NULL,
			report_json BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	var err error
	s.insertRunStmt, err = s.db.Prepare(`
		INSERT INTO runs (
			id, started_at, finished_at, total, passed, failed, errors,
			pass_rate, release_blocked, optimized, report_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare insert run: %w", err)
	}

	s.getRunStmt, err = s.db.Prepare(`
		SELECT id, started_at, finished_at, total, passed, failed, errors,
			pass_rate, release_blocked, optimized, report_json
		FROM runs WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("store: prepare get run: %w", err)
	}
	return nil
}

// SaveRun persists a report under the given run id.
func (s *SQLiteStore) SaveRun(ctx context.Context, id string, report *evaluator.EvalReport) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("store: empty run id")
	}
	if report == nil {
		return errors.New("store: nil report")
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("store: marshal report: %w", err)
	}

	optimized := report.Optimization != nil && report.Optimization.Success
	_, err = s.insertRunStmt.ExecContext(ctx,
		id,
		report.StartedAt.UnixMilli(),
		report.FinishedAt.UnixMilli(),
		report.Total,
		report.Passed,
		report.Failed,
		report.Errors,
		report.PassRate,
		boolToInt(report.ReleaseBlocked),
		boolToInt(optimized),
		payload,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// GetRun loads one run including its full report.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}

	var (
		rec                RunRecord
		started, finished  int64
		blocked, optimized int
		payload            []byte
	)
	err := s.getRunStmt.QueryRowContext(ctx, id).Scan(
		&rec.ID, &started, &finished, &rec.Total, &rec.Passed, &rec.Failed,
		&rec.Errors, &rec.PassRate, &blocked, &optimized, &payload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}

	rec.StartedAt = time.UnixMilli(started).UTC()
	rec.FinishedAt = time.UnixMilli(finished).UTC()
	rec.ReleaseBlocked = blocked != 0
	rec.Optimized = optimized != 0

	var report evaluator.EvalReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("store: decode report: %w", err)
	}
	rec.Report = &report
	return &rec, nil
}

// ListRuns returns run summaries, newest first. Reports are not loaded.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	since := int64(0)
	if !filter.Since.IsZero() {
		since = filter.Since.UnixMilli()
	}
	until := int64(1<<62 - 1)
	if !filter.Until.IsZero() {
		until = filter.Until.UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, total, passed, failed, errors,
			pass_rate, release_blocked, optimized
		FROM runs
		WHERE started_at >= ? AND started_at <= ?
		ORDER BY started_at DESC
		LIMIT ?
	`, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var (
			rec                RunRecord
			started, finished  int64
			blocked, optimized int
		)
		if err := rows.Scan(
			&rec.ID, &started, &finished, &rec.Total, &rec.Passed, &rec.Failed,
			&rec.Errors, &rec.PassRate, &blocked, &optimized,
		); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		rec.ReleaseBlocked = blocked != 0
		rec.Optimized = optimized != 0
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close releases prepared statements and the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	if s.insertRunStmt != nil {
		_ = s.insertRunStmt.Close()
	}
	if s.getRunStmt != nil {
		_ = s.getRunStmt.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
