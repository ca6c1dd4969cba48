// Package pipeline drives an enrichment run: it walks the workbook, gathers
// provider evidence, consolidates it into candidates, and merges the results
// back into the store under a bounded worker pool.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/consolidate"
	"github.com/sells-group/enrich-cli/internal/journal"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Gatherer collects provider evidence for one institution.
type Gatherer interface {
	Gather(ctx context.Context, inst *model.Institution) model.EvidenceSet
	FailureCounts() map[string]int
	Disabled() []string
}

// Consolidator reduces an evidence set to a candidate record.
type Consolidator interface {
	Consolidate(ctx context.Context, inst *model.Institution, evidence model.EvidenceSet) (*model.CandidateRecord, error)
}

// Workbook is the store surface the driver writes through.
type Workbook interface {
	Len() int
	Path() string
	Iterate(fn func(*model.Institution) error) error
	Merge(name string, cand *model.CandidateRecord) (*model.Institution, int, error)
	Flush() error
	Backup(dir string) (string, error)
}

// Driver runs one enrichment pass over every institution in the workbook.
type Driver struct {
	cfg        *config.Config
	wb         Workbook
	gatherer   Gatherer
	engine     Consolidator
	journal    journal.Journal
	flushRetry resilience.RetryConfig

	mu                sync.Mutex
	summary           model.RunSummary
	disagreements     []disagreementNote
	uncommitted       int
	mergesSinceBackup int
}

// disagreementNote is kept aside for the end-of-run triage log.
type disagreementNote struct {
	institution string
	field       model.FieldKey
	values      []string
}

// New creates a Driver with all dependencies.
func New(cfg *config.Config, wb Workbook, g Gatherer, e Consolidator, j journal.Journal) *Driver {
	return &Driver{
		cfg:      cfg,
		wb:       wb,
		gatherer: g,
		engine:   e,
		journal:  j,
		flushRetry: resilience.RetryConfig{
			MaxAttempts:    cfg.Enrich.FlushRetries,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:     cfg.Retry.Multiplier,
			JitterFraction: cfg.Retry.JitterFraction,
			// A lock conflict clears when the operator closes the workbook,
			// so every flush failure gets the bounded retries.
			ShouldRetry: func(error) bool { return true },
		},
	}
}

// Run executes the enrichment pass. Cancelling ctx stops intake; institutions
// already started finish their steps and their merges reach disk before the
// run winds down.
func (d *Driver) Run(ctx context.Context) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("workbook", d.wb.Path()))

	run, err := d.journal.StartRun(ctx, d.wb.Path())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}

	var insts []*model.Institution
	if err := d.wb.Iterate(func(inst *model.Institution) error {
		insts = append(insts, inst)
		return nil
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: iterate records")
	}

	log.Info("pipeline: run started",
		zap.String("run_id", run.ID),
		zap.Int("institutions", len(insts)),
		zap.Int("concurrency", d.cfg.Enrich.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Enrich.Concurrency)

	for _, inst := range insts {
		if gctx.Err() != nil {
			break // stop intake; workers already running finish their records
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return d.process(gctx, run.ID, inst)
		})
	}

	runErr := g.Wait()

	d.summary.ProviderFailures = d.gatherer.FailureCounts()

	if d.summary.Merged > 0 {
		if path, backupErr := d.wb.Backup(d.cfg.Workbook.BackupDir); backupErr != nil {
			log.Warn("pipeline: final backup failed", zap.Error(backupErr))
		} else {
			log.Info("pipeline: final backup written", zap.String("path", path))
		}
	}

	status := model.RunStatusComplete
	switch {
	case runErr != nil:
		status = model.RunStatusAborted
	case ctx.Err() != nil:
		status = model.RunStatusInterrupted
	}

	// The journal write must survive the cancellation that ended the run.
	if err := d.journal.FinishRun(context.WithoutCancel(ctx), run.ID, status, &d.summary); err != nil {
		log.Warn("pipeline: finish run", zap.Error(err))
	}

	d.logOutcome(log, status, runErr)

	if runErr != nil {
		return &d.summary, runErr
	}
	return &d.summary, nil
}

// process runs one institution through search, consolidation, and merge.
// Cancellation only stops intake: a record in flight finishes its steps on a
// detached context, bounded by the provider and model timeouts.
func (d *Driver) process(ctx context.Context, runID string, inst *model.Institution) error {
	log := zap.L().With(zap.String("institution", inst.Name))
	stepCtx := context.WithoutCancel(ctx)

	log.Info("pipeline: searching", zap.String("state", string(model.StateSearching)))
	evidence := d.gatherer.Gather(stepCtx, inst)
	if evidence.AllFailed() {
		d.skip(stepCtx, runID, inst.Name, "all providers failed")
		return nil
	}

	log.Info("pipeline: consolidating",
		zap.String("state", string(model.StateConsolidating)),
		zap.Int("items", len(evidence.Items())),
	)
	cand, err := d.engine.Consolidate(stepCtx, inst, evidence)
	if err != nil {
		log.Warn("pipeline: consolidation failed",
			zap.String("kind", string(consolidate.KindOf(err))),
			zap.Error(err),
		)
		d.skip(stepCtx, runID, inst.Name, "consolidation failed: "+string(consolidate.KindOf(err)))
		return nil
	}

	return d.commit(inst.Name, cand, log)
}

// commit merges the candidate and makes it durable before the worker moves
// on. Commits are serialized so the workbook on disk never trails memory by
// more than the record being written.
func (d *Driver) commit(name string, cand *model.CandidateRecord, log *zap.Logger) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, changed, err := d.wb.Merge(name, cand)
	if err != nil {
		return eris.Wrapf(err, "pipeline: merge %s", name)
	}
	d.summary.Processed++

	if err := d.flush(name); err != nil {
		d.uncommitted += changed
		return err
	}

	d.summary.Merged++
	d.summary.FieldChanges += changed
	for _, dis := range cand.Disagreements {
		d.summary.Disagreements++
		d.disagreements = append(d.disagreements, disagreementNote{
			institution: name,
			field:       dis.Field,
			values:      dis.Values,
		})
	}

	log.Info("pipeline: merged",
		zap.String("state", string(model.StateMerged)),
		zap.Int("field_changes", changed),
		zap.Int("disagreements", len(cand.Disagreements)),
	)

	d.mergesSinceBackup++
	if d.cfg.Workbook.BackupEvery > 0 && d.mergesSinceBackup >= d.cfg.Workbook.BackupEvery {
		d.mergesSinceBackup = 0
		if path, backupErr := d.wb.Backup(d.cfg.Workbook.BackupDir); backupErr != nil {
			log.Warn("pipeline: backup failed", zap.Error(backupErr))
		} else {
			log.Info("pipeline: backup written", zap.String("path", path))
		}
	}
	return nil
}

// flush makes the store durable, retrying a bounded number of times before
// giving up and aborting the run.
func (d *Driver) flush(name string) error {
	rc := d.flushRetry
	rc.OnRetry = resilience.RetryLogger("store", "flush")
	err := resilience.Do(context.Background(), rc, func(context.Context) error {
		return d.wb.Flush()
	})
	if err != nil {
		return eris.Wrapf(err, "pipeline: flush after merging %s", name)
	}
	return nil
}

// skip records an institution the run left untouched.
func (d *Driver) skip(ctx context.Context, runID, name, reason string) {
	zap.L().Warn("pipeline: institution skipped",
		zap.String("institution", name),
		zap.String("state", string(model.StateSkipped)),
		zap.String("reason", reason),
	)
	if err := d.journal.RecordSkip(ctx, runID, name, reason); err != nil {
		zap.L().Warn("pipeline: record skip", zap.Error(err))
	}

	d.mu.Lock()
	d.summary.Processed++
	d.summary.Skipped++
	d.summary.Skips = append(d.summary.Skips, model.SkipRecord{Institution: name, Reason: reason})
	d.mu.Unlock()
}

// logOutcome prints the end-of-run accounting: every skip and every
// disagreement left for human triage.
func (d *Driver) logOutcome(log *zap.Logger, status model.RunStatus, runErr error) {
	for _, s := range d.summary.Skips {
		log.Warn("pipeline: skipped",
			zap.String("institution", s.Institution),
			zap.String("reason", s.Reason),
		)
	}
	for _, dn := range d.disagreements {
		log.Warn("pipeline: disagreement for review",
			zap.String("institution", dn.institution),
			zap.String("field", string(dn.field)),
			zap.Strings("values", dn.values),
		)
	}
	if disabled := d.gatherer.Disabled(); len(disabled) > 0 {
		log.Warn("pipeline: providers disabled during run", zap.Strings("providers", disabled))
	}

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("processed", d.summary.Processed),
		zap.Int("merged", d.summary.Merged),
		zap.Int("skipped", d.summary.Skipped),
		zap.Int("field_changes", d.summary.FieldChanges),
		zap.Int("disagreements", d.summary.Disagreements),
	}
	if runErr != nil {
		fields = append(fields,
			zap.Int("committed_changes", d.summary.FieldChanges),
			zap.Int("uncommitted_changes", d.uncommitted),
			zap.Error(runErr),
		)
		log.Error("pipeline: run aborted", fields...)
		return
	}
	log.Info("pipeline: run finished", fields...)
}
