// Package journal records enrichment runs so interrupted batches can be
// audited and resumed. Two backends exist: SQLite for single-operator use
// and Postgres for shared deployments.
package journal

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Journal persists run lifecycle and skip records.
type Journal interface {
	// StartRun opens a new run for the given workbook path.
	StartRun(ctx context.Context, workbook string) (*model.Run, error)

	// FinishRun closes a run with its terminal status and summary.
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error

	// RecordSkip notes an institution the run left untouched.
	RecordSkip(ctx context.Context, runID, institution, reason string) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// ListRuns retrieves runs matching the filter, newest first.
	ListRuns(ctx context.Context, filter Filter) ([]model.Run, error)

	// ListSkips retrieves the skip records of a run in the order they
	// were written.
	ListSkips(ctx context.Context, runID string) ([]model.SkipRecord, error)

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// Close releases the underlying connection(s).
	Close() error
}

// Filter narrows ListRuns results.
type Filter struct {
	Status   model.RunStatus
	Workbook string
	Limit    int
	Offset   int
}

// Open builds the journal backend named by cfg.Driver. An empty driver
// selects SQLite.
func Open(ctx context.Context, cfg config.JournalConfig) (Journal, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "enrich-runs.db"
		}
		return NewSQLite(path)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("journal: postgres driver requires database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	default:
		return nil, eris.Errorf("journal: unknown driver %q", cfg.Driver)
	}
}
