// Package store keeps the history of churn runs and their per-model
// scores in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

//go:embed schema.sql
var schemaSQL string

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the churn pipeline.
type Run struct {
	ID          string
	DataPath    string
	Target      string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ModelResult is the test-set evaluation of one model in a run.
type ModelResult struct {
	ID         int64
	RunID      string
	Model      string
	Accuracy   float64
	ROCAUC     float64
	MacroF1    float64
	FitSeconds float64
	ReportJSON string
	CreatedAt  time.Time
}

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore is the run-history store.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory database.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping sqlite database")
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates the tables when they do not exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "failed to initialize schema")
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad timestamp %q", s)
	}
	return t, nil
}

// CreateRun inserts a running run with a fresh UUID.
func (s *SQLiteStore) CreateRun(ctx context.Context, dataPath, target string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		DataPath:  dataPath,
		Target:    target,
		Status:    RunStatusRunning,
		StartedAt: now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, data_path, target, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.DataPath, run.Target, string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create run")
	}
	return run, nil
}

// CompleteRun sets the final status of a run. errMsg is stored only when
// non-empty.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(now()), errVal, id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to complete run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return nil
}

// SaveModelResult stores r and fills in its ID and CreatedAt.
func (s *SQLiteStore) SaveModelResult(ctx context.Context, r *ModelResult) error {
	r.CreatedAt = now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO model_results (run_id, model, accuracy, roc_auc, macro_f1, fit_seconds, report_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Model, r.Accuracy, r.ROCAUC, r.MacroF1, r.FitSeconds, r.ReportJSON, formatTime(r.CreatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save result for %s", r.Model)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// GetRun returns one run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data_path, target, status, started_at, completed_at, error FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return run, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data_path, target, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetResults returns the model results of a run in insertion order.
func (s *SQLiteStore) GetResults(ctx context.Context, runID string) ([]*ModelResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, model, accuracy, roc_auc, macro_f1, fit_seconds, report_json, created_at
		 FROM model_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get results")
	}
	defer rows.Close()

	var out []*ModelResult
	for rows.Next() {
		r := &ModelResult{}
		var created string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Model, &r.Accuracy, &r.ROCAUC, &r.MacroF1,
			&r.FitSeconds, &r.ReportJSON, &created); err != nil {
			return nil, errors.Wrap(err, "failed to scan result")
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{}
	var status, started string
	var completed, errMsg sql.NullString
	if err := sc.Scan(&run.ID, &run.DataPath, &run.Target, &status, &started, &completed, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan run")
	}
	run.Status = RunStatus(status)

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return run, nil
}
