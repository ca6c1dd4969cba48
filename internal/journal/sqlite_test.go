package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func newTestSQLiteJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() }) //nolint:errcheck
	require.NoError(t, j.Migrate(context.Background()))
	return j
}

// --- Runs ---

func TestSQLite_StartRun_And_GetRun(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "instituicoes.xlsx")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, "instituicoes.xlsx", run.Workbook)

	fetched, err := j.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, "instituicoes.xlsx", fetched.Workbook)
	assert.Nil(t, fetched.Summary)
	assert.Nil(t, fetched.FinishedAt)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	j := newTestSQLiteJournal(t)

	_, err := j.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_FinishRun(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "instituicoes.xlsx")
	require.NoError(t, err)

	summary := &model.RunSummary{
		Processed:     12,
		Merged:        9,
		Skipped:       3,
		FieldChanges:  31,
		Disagreements: 2,
		ProviderFailures: map[string]int{
			"brave": 1,
		},
		Skips: []model.SkipRecord{
			{Institution: "Colégio Fantasma", Reason: "no provider evidence"},
		},
	}
	err = j.FinishRun(ctx, run.ID, model.RunStatusComplete, summary)
	require.NoError(t, err)

	fetched, err := j.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, fetched.Status)
	require.NotNil(t, fetched.FinishedAt)
	require.NotNil(t, fetched.Summary)
	assert.Equal(t, summary, fetched.Summary)
}

func TestSQLite_FinishRun_NilSummary(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "instituicoes.xlsx")
	require.NoError(t, err)

	// An interrupted run may have no summary to report.
	err = j.FinishRun(ctx, run.ID, model.RunStatusInterrupted, nil)
	require.NoError(t, err)

	fetched, err := j.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusInterrupted, fetched.Status)
	assert.Nil(t, fetched.Summary)
	assert.NotNil(t, fetched.FinishedAt)
}

func TestSQLite_FinishRun_Missing(t *testing.T) {
	j := newTestSQLiteJournal(t)

	err := j.FinishRun(context.Background(), "nonexistent-run", model.RunStatusComplete, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	_, err := j.StartRun(ctx, "a.xlsx")
	require.NoError(t, err)
	_, err = j.StartRun(ctx, "b.xlsx")
	require.NoError(t, err)

	runs, err := j.ListRuns(ctx, Filter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_ListRuns_FilterByStatus(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "instituicoes.xlsx")
	require.NoError(t, err)
	require.NoError(t, j.FinishRun(ctx, run.ID, model.RunStatusComplete, nil))

	// A second run that stays running.
	_, err = j.StartRun(ctx, "instituicoes.xlsx")
	require.NoError(t, err)

	runs, err := j.ListRuns(ctx, Filter{Status: model.RunStatusComplete, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSQLite_ListRuns_FilterByWorkbook(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	_, err := j.StartRun(ctx, "north.xlsx")
	require.NoError(t, err)
	south, err := j.StartRun(ctx, "south.xlsx")
	require.NoError(t, err)

	runs, err := j.ListRuns(ctx, Filter{Workbook: "south.xlsx", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, south.ID, runs[0].ID)
}

// --- Skips ---

func TestSQLite_RecordSkip_And_ListSkips(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "instituicoes.xlsx")
	require.NoError(t, err)

	require.NoError(t, j.RecordSkip(ctx, run.ID, "Colégio Alfa", "all providers failed"))
	require.NoError(t, j.RecordSkip(ctx, run.ID, "Colégio Beta", "no usable evidence"))

	skips, err := j.ListSkips(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, skips, 2)
	assert.Equal(t, "Colégio Alfa", skips[0].Institution)
	assert.Equal(t, "all providers failed", skips[0].Reason)
	assert.Equal(t, "Colégio Beta", skips[1].Institution)
}

func TestSQLite_ListSkips_Empty(t *testing.T) {
	j := newTestSQLiteJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "instituicoes.xlsx")
	require.NoError(t, err)

	skips, err := j.ListSkips(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, skips)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	j := newTestSQLiteJournal(t)

	// Migrate already ran in the helper; a second call must not error.
	err := j.Migrate(context.Background())
	require.NoError(t, err)
}
