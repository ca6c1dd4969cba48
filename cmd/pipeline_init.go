package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/aggregate"
	"github.com/sells-group/enrich-cli/internal/consolidate"
	"github.com/sells-group/enrich-cli/internal/journal"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/provider"
	"github.com/sells-group/enrich-cli/internal/store"
	anthropicpkg "github.com/sells-group/enrich-cli/pkg/anthropic"
)

// pipelineEnv holds everything the enrich command wires together. Callers
// should defer env.Close().
type pipelineEnv struct {
	Store      *store.Store
	Journal    journal.Journal
	Aggregator *aggregate.Aggregator
	Engine     *consolidate.Engine
	Driver     *pipeline.Driver
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Journal != nil {
		_ = pe.Journal.Close()
	}
}

// openStore loads the configured workbook.
func openStore() (*store.Store, error) {
	st, err := store.Open(store.Options{
		Path:         cfg.Workbook.Path,
		Sheet:        cfg.Workbook.Sheet,
		SkipRows:     cfg.Workbook.SkipRows,
		ConfirmOnTie: cfg.Enrich.ConfirmOnTie,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open workbook")
	}
	return st, nil
}

// openJournal opens the configured journal backend and migrates its schema.
func openJournal(ctx context.Context) (journal.Journal, error) {
	j, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		return nil, eris.Wrap(err, "open journal")
	}
	if err := j.Migrate(ctx); err != nil {
		_ = j.Close()
		return nil, eris.Wrap(err, "migrate journal")
	}
	return j, nil
}

// initPipeline sets up the store, journal, providers, consolidation engine,
// and the driver for a full enrichment run.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("enrich"); err != nil {
		return nil, err
	}

	st, err := openStore()
	if err != nil {
		return nil, err
	}

	j, err := openJournal(ctx)
	if err != nil {
		return nil, err
	}

	reg := provider.FromConfig(cfg)
	if reg.Len() == 0 {
		_ = j.Close()
		return nil, eris.New("no search provider has a credential configured")
	}
	agg := aggregate.New(reg, cfg)

	var policy *consolidate.Policy
	if cfg.Enrich.PolicyPath != "" {
		policy, err = consolidate.LoadPolicy(cfg.Enrich.PolicyPath)
		if err != nil {
			_ = j.Close()
			return nil, err
		}
	}
	engine := consolidate.New(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg, policy)

	return &pipelineEnv{
		Store:      st,
		Journal:    j,
		Aggregator: agg,
		Engine:     engine,
		Driver:     pipeline.New(cfg, st, agg, engine, j),
	}, nil
}
