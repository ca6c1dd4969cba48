package journal

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

// newMockPostgresJournal creates a PostgresJournal backed by pgxmock for unit testing.
func newMockPostgresJournal(t *testing.T) (*PostgresJournal, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	j := &PostgresJournal{pool: mock}
	return j, mock
}

func TestPostgresJournal_StartRun(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "instituicoes.xlsx", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := j.StartRun(context.Background(), "instituicoes.xlsx")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_FinishRun(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, summary = \$2, finished_at = \$3 WHERE id = \$4`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-7").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	summary := &model.RunSummary{Processed: 4, Merged: 3, Skipped: 1}
	err := j.FinishRun(context.Background(), "run-7", model.RunStatusComplete, summary)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_FinishRun_NotFound(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("aborted", pgxmock.AnyArg(), pgxmock.AnyArg(), "gone-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := j.FinishRun(context.Background(), "gone-run", model.RunStatusAborted, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_GetRun_NotFound(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	mock.ExpectQuery(`SELECT id, workbook, status, summary, started_at, finished_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := j.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_ListRuns_AppliesFilters(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	cols := []string{"id", "workbook", "status", "summary", "started_at", "finished_at"}
	mock.ExpectQuery(`SELECT .+ FROM runs WHERE true AND status = \$1 AND workbook = \$2 ORDER BY started_at DESC LIMIT \$3`).
		WithArgs("complete", "instituicoes.xlsx", 25).
		WillReturnRows(pgxmock.NewRows(cols))

	runs, err := j.ListRuns(context.Background(), Filter{
		Status:   model.RunStatusComplete,
		Workbook: "instituicoes.xlsx",
		Limit:    25,
	})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_RecordSkip(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	mock.ExpectExec(`INSERT INTO run_skips`).
		WithArgs(pgxmock.AnyArg(), "run-7", "Colégio Alfa", "all providers failed", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := j.RecordSkip(context.Background(), "run-7", "Colégio Alfa", "all providers failed")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_ListSkips(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	rows := pgxmock.NewRows([]string{"institution", "reason"}).
		AddRow("Colégio Alfa", "all providers failed").
		AddRow("Colégio Beta", "no usable evidence")
	mock.ExpectQuery(`SELECT institution, reason FROM run_skips WHERE run_id = \$1`).
		WithArgs("run-7").
		WillReturnRows(rows)

	skips, err := j.ListSkips(context.Background(), "run-7")
	require.NoError(t, err)
	require.Len(t, skips, 2)
	assert.Equal(t, "Colégio Alfa", skips[0].Institution)
	assert.Equal(t, "no usable evidence", skips[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_Migrate(t *testing.T) {
	j, mock := newMockPostgresJournal(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	err := j.Migrate(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
