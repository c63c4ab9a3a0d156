package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists jobs in postgres. The schema is created lazily on
// first use so local runs need no migration step.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  project_id TEXT NOT NULL DEFAULT '',
  agent_id TEXT NOT NULL DEFAULT '',
  simulation_id TEXT NOT NULL DEFAULT '',
  policy_doc_id TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  parameters JSONB,
  result JSONB,
  metrics JSONB,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  started_at TIMESTAMP WITH TIME ZONE,
  completed_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs (kind, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_simulation_id ON jobs (simulation_id);
`)
	})
	return s.schemaErr
}

const jobColumns = `id, kind, status, project_id, agent_id, simulation_id, policy_doc_id, city,
parameters, result, metrics, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j                          Job
		parameters, result, metric []byte
		startedAt, completedAt     sql.NullTime
	)
	err := row.Scan(
		&j.ID, &j.Kind, &j.Status, &j.ProjectID, &j.AgentID, &j.SimulationID,
		&j.PolicyDocID, &j.City, &parameters, &result, &metric,
		&j.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	j.Parameters = parameters
	j.Result = result
	j.Metrics = metric
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, status, project_id, agent_id, simulation_id, policy_doc_id, city, parameters, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		j.ID, j.Kind, j.Status, j.ProjectID, j.AgentID, j.SimulationID,
		j.PolicyDocID, j.City, []byte(j.Parameters), j.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, strings.TrimSpace(id))
	return scanJob(row)
}

func (s *PostgresStore) List(ctx context.Context, kind Kind) ([]*Job, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE kind = $1 ORDER BY created_at DESC`, kind)
	}
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (s *PostgresStore) ListBySimulation(ctx context.Context, kind Kind, simulationID string) ([]*Job, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE kind = $1 AND simulation_id = $2 ORDER BY created_at DESC`,
		kind, strings.TrimSpace(simulationID))
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	out := make([]*Job, 0, 16)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return s.conditional(ctx, `
UPDATE jobs SET status = 'RUNNING', started_at = $2
WHERE id = $1 AND status = 'PENDING'`, strings.TrimSpace(id), at)
}

func (s *PostgresStore) Complete(ctx context.Context, id string, result, metrics json.RawMessage, at time.Time) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = 'COMPLETED', result = $2, metrics = $3, completed_at = $4
WHERE id = $1 AND status = 'RUNNING'`,
		strings.TrimSpace(id), []byte(result), []byte(metrics), at)
	if err != nil {
		return err
	}
	return requireAffected(ctx, s, res, id)
}

func (s *PostgresStore) Fail(ctx context.Context, id string, at time.Time) error {
	return s.conditional(ctx, `
UPDATE jobs SET status = 'FAILED', completed_at = $2
WHERE id = $1 AND status IN ('PENDING', 'RUNNING')`, strings.TrimSpace(id), at)
}

func (s *PostgresStore) conditional(ctx context.Context, query, id string, at time.Time) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	return requireAffected(ctx, s, res, id)
}

// requireAffected distinguishes "job missing" from "transition rejected" when
// a conditional update matched no rows.
func requireAffected(ctx context.Context, s *PostgresStore, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrStatusConflict
}
