package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Pool is the subset of the pgxpool API the journal uses.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresJournal implements Journal using pgxpool.
type PostgresJournal struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used journal operations.
var preparedStatements = map[string]string{
	"insert_run":  `INSERT INTO runs (id, workbook, status, started_at) VALUES ($1, $2, $3, $4)`,
	"finish_run":  `UPDATE runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
	"get_run":     `SELECT id, workbook, status, summary, started_at, finished_at FROM runs WHERE id = $1`,
	"insert_skip": `INSERT INTO run_skips (id, run_id, institution, reason, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
	"list_skips":  `SELECT institution, reason FROM run_skips WHERE run_id = $1 ORDER BY recorded_at, id`,
}

// NewPostgres creates a PostgresJournal with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresJournal, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresJournal{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	workbook    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_skips (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	institution TEXT NOT NULL,
	reason      TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_workbook ON runs(workbook);
CREATE INDEX IF NOT EXISTS idx_run_skips_run_id ON run_skips(run_id);
`

func (j *PostgresJournal) Migrate(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}

func (j *PostgresJournal) StartRun(ctx context.Context, workbook string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := j.pool.Exec(ctx,
		`INSERT INTO runs (id, workbook, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, workbook, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Workbook:  workbook,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (j *PostgresJournal) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	var summaryJSON []byte
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
		summaryJSON = b
	}

	tag, err := j.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (j *PostgresJournal) RecordSkip(ctx context.Context, runID, institution, reason string) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO run_skips (id, run_id, institution, reason, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), runID, institution, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert skip for run %s", runID)
}

func (j *PostgresJournal) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var summaryNull *[]byte

	err := j.pool.QueryRow(ctx,
		`SELECT id, workbook, status, summary, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Workbook, &r.Status, &summaryNull, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.New("run not found")
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if summaryNull != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(*summaryNull, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

func (j *PostgresJournal) ListRuns(ctx context.Context, filter Filter) ([]model.Run, error) {
	query := `SELECT id, workbook, status, summary, started_at, finished_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Workbook != "" {
		query += fmt.Sprintf(` AND workbook = $%d`, argIdx)
		args = append(args, filter.Workbook)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summaryNull *[]byte

		if err := rows.Scan(&r.ID, &r.Workbook, &r.Status, &summaryNull, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if summaryNull != nil {
			r.Summary = &model.RunSummary{}
			if err := json.Unmarshal(*summaryNull, r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (j *PostgresJournal) ListSkips(ctx context.Context, runID string) ([]model.SkipRecord, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT institution, reason FROM run_skips WHERE run_id = $1 ORDER BY recorded_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list skips for run %s", runID)
	}
	defer rows.Close()

	var skips []model.SkipRecord
	for rows.Next() {
		var s model.SkipRecord
		if err := rows.Scan(&s.Institution, &s.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan skip")
		}
		skips = append(skips, s)
	}
	return skips, eris.Wrap(rows.Err(), "postgres: list skips iterate")
}
