// Package storage keeps a history of analysis runs in SQLite.
//
// Each run is stored with the event effects it produced, so earlier results can
// be listed and compared without re-running the regression. The database is a
// single file; ":memory:" gives a throwaway store for tests.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/eventstudy/internal/models"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	dataset       TEXT NOT NULL,
	chart_path    TEXT NOT NULL,
	n             INTEGER NOT NULL,
	clusters      INTEGER NOT NULL,
	regressors    INTEGER NOT NULL,
	dropped       TEXT NOT NULL,
	plotted_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS effects (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	var        TEXT NOT NULL,
	event_time INTEGER NOT NULL,
	coef       REAL NOT NULL,
	stderr     REAL NOT NULL,
	pval       REAL,
	ci_lower   REAL NOT NULL,
	ci_upper   REAL NOT NULL,
	n          INTEGER NOT NULL,
	PRIMARY KEY (run_id, var)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// timeLayout has a fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Storage is a SQLite-backed run history.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and applies the schema.
func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its effects atomically.
func (s *Storage) SaveRun(run *models.Run, effects []models.EventEffect) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	for i := range effects {
		if err := effects[i].Validate(); err != nil {
			return fmt.Errorf("invalid effect %s: %w", effects[i].Var, err)
		}
	}

	dropped, err := json.Marshal(run.Dropped)
	if err != nil {
		return fmt.Errorf("failed to encode dropped columns: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO runs
		(id, started_at, finished_at, dataset, chart_path, n, clusters, regressors, dropped, plotted_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Dataset,
		run.ChartPath,
		run.N,
		run.Clusters,
		run.Regressors,
		string(dropped),
		run.PlottedCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO effects
		(run_id, var, event_time, coef, stderr, pval, ci_lower, ci_upper, n)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare effect insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range effects {
		// SQLite has no NaN; an undefined p-value is stored as NULL.
		pval := sql.NullFloat64{Float64: e.PValue, Valid: !math.IsNaN(e.PValue)}
		if _, err := stmt.Exec(run.ID, e.Var, e.EventTime, e.Coef, e.StdErr, pval, e.CILower, e.CIUpper, e.N); err != nil {
			return fmt.Errorf("failed to insert effect %s: %w", e.Var, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	query := `SELECT id, started_at, finished_at, dataset, chart_path, n, clusters, regressors, dropped, plotted_count
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run by ID.
func (s *Storage) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT id, started_at, finished_at, dataset, chart_path, n, clusters, regressors, dropped, plotted_count
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// GetEffects returns the effects of a run ordered by event time.
func (s *Storage) GetEffects(runID string) ([]models.EventEffect, error) {
	rows, err := s.db.Query(`SELECT var, event_time, coef, stderr, pval, ci_lower, ci_upper, n
		FROM effects WHERE run_id = ? ORDER BY event_time`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query effects: %w", err)
	}
	defer rows.Close()

	var effects []models.EventEffect
	for rows.Next() {
		var (
			e    models.EventEffect
			pval sql.NullFloat64
		)
		if err := rows.Scan(&e.Var, &e.EventTime, &e.Coef, &e.StdErr, &pval, &e.CILower, &e.CIUpper, &e.N); err != nil {
			return nil, fmt.Errorf("failed to scan effect: %w", err)
		}
		e.PValue = math.NaN()
		if pval.Valid {
			e.PValue = pval.Float64
		}
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read effects: %w", err)
	}
	return effects, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.Run, error) {
	var (
		run               models.Run
		started, finished string
		dropped           string
	)
	err := sc.Scan(&run.ID, &started, &finished, &run.Dataset, &run.ChartPath,
		&run.N, &run.Clusters, &run.Regressors, &dropped, &run.PlottedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("run %s: bad finished_at: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(dropped), &run.Dropped); err != nil {
		return nil, fmt.Errorf("run %s: bad dropped list: %w", run.ID, err)
	}
	return &run, nil
}
