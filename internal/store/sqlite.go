// Package store persists painting runs and their per-generation statistics
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is the persisted record of one painting job.
type Run struct {
	ID          string
	Status      string
	Config      evolution.Config
	Output      string
	BestScore   float64
	Generations int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the run has finished.
func (r Run) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// SQLiteStore is a run store backed by modernc.org/sqlite.
type SQLiteStore struct {
	dsn string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore returns a store for dsn. Call Init before use.
func NewSQLiteStore(dsn string) *SQLiteStore {
	return &SQLiteStore{dsn: dsn}
}

// Init opens the database and creates the schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return errors.New("sqlite dsn is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return err
	}
	// One connection keeps in-memory databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// CreateRun inserts a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", run.ID, err)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, status, config, output, best_score, generations, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Status, cfg, run.Output, run.BestScore, run.Generations, run.Error,
		formatTime(run.CreatedAt), formatTime(now))
	return err
}

// UpdateRun stores the mutable fields of run: status, best score, generation
// count and error.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE runs SET status = ?, best_score = ?, generations = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, run.Status, run.BestScore, run.Generations, run.Error, formatTime(time.Now().UTC()), run.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// GetRun loads one run. ok is false when it does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	var (
		run                  Run
		cfg                  []byte
		createdAt, updatedAt string
	)
	err = db.QueryRowContext(ctx, `
		SELECT id, status, config, output, best_score, generations, error, created_at, updated_at
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Status, &cfg, &run.Output, &run.BestScore, &run.Generations, &run.Error,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}

	if err := json.Unmarshal(cfg, &run.Config); err != nil {
		return Run{}, false, fmt.Errorf("decode config %s: %w", id, err)
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return Run{}, false, err
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

// AppendGeneration stores the statistics of one generation of runID.
func (s *SQLiteStore) AppendGeneration(ctx context.Context, runID string, g evolution.GenerationStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (run_id, generation, best_score, mean_score, std_score, worst_score,
			stagnation, remutated, evaluations, seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			best_score = excluded.best_score,
			mean_score = excluded.mean_score,
			std_score = excluded.std_score,
			worst_score = excluded.worst_score,
			stagnation = excluded.stagnation,
			remutated = excluded.remutated,
			evaluations = excluded.evaluations,
			seconds = excluded.seconds
	`, runID, g.Generation, g.BestScore, g.MeanScore, g.StdScore, g.WorstScore,
		g.Stagnation, g.Remutated, g.Evaluations, g.Seconds)
	return err
}

// ListGenerations returns the stored statistics of runID in generation order.
func (s *SQLiteStore) ListGenerations(ctx context.Context, runID string) ([]evolution.GenerationStats, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT generation, best_score, mean_score, std_score, worst_score, stagnation, remutated, evaluations, seconds
		FROM generations WHERE run_id = ? ORDER BY generation
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evolution.GenerationStats
	for rows.Next() {
		var g evolution.GenerationStats
		if err := rows.Scan(&g.Generation, &g.BestScore, &g.MeanScore, &g.StdScore, &g.WorstScore,
			&g.Stagnation, &g.Remutated, &g.Evaluations, &g.Seconds); err != nil {
			return nil, err
		}
		g.Duration = time.Duration(g.Seconds * float64(time.Second))
		out = append(out, g)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			config BLOB NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			best_score REAL NOT NULL DEFAULT 0,
			generations INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			generation INTEGER NOT NULL,
			best_score REAL NOT NULL,
			mean_score REAL NOT NULL,
			std_score REAL NOT NULL,
			worst_score REAL NOT NULL,
			stagnation INTEGER NOT NULL,
			remutated INTEGER NOT NULL,
			evaluations INTEGER NOT NULL,
			seconds REAL NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
	`)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
