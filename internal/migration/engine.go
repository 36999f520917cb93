// Package migration implements the legacy migration engine: it builds legacy-id lookup
// tables from the target, streams source rows in key order, transforms them, and writes
// them with conflict-safe multi-row inserts so that re-running a plan is a no-op for rows
// that already made it.
package migration

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/logger"
	"github.com/casebridge/dispatch-migrate/internal/observability/metrics"
)

// finishTimeout bounds bookkeeping writes made after the run context is gone.
const finishTimeout = 10 * time.Second

// Options tune every run of an engine. Zero values keep plan defaults.
type Options struct {
	BatchSize        int
	DryRun           bool
	Resume           bool
	RowFallback      bool
	BatchesPerSecond float64
	RecordIssues     bool
}

// CheckpointStore persists the per-plan resume cursor.
type CheckpointStore interface {
	Checkpoint(ctx context.Context, plan string) (datastore.MigrationCheckpoint, bool, error)
	StartRun(ctx context.Context, plan string, resume bool) (int64, error)
	SaveProgress(ctx context.Context, plan string, lastKey int64, counts datastore.RunCounts) error
	FinishRun(ctx context.Context, plan string, counts datastore.RunCounts, runErr error) error
}

// IssueRecorder persists skipped and errored legacy ids.
type IssueRecorder interface {
	RecordIssues(ctx context.Context, issues []datastore.MigrationIssue) error
	ResolveIssues(ctx context.Context, plan string, legacyIDs []int64) (int64, error)
}

// Config wires an engine to its stores and collaborators. Source and Target are required.
type Config struct {
	Source      *datastore.Store
	Target      *datastore.Store
	Logger      logger.Logger
	Metrics     metrics.MigrationRecorder
	Cache       *LookupCache
	Checkpoints CheckpointStore
	Issues      IssueRecorder
	Options     Options
	RunID       string
}

// Engine runs plans one at a time. Batches are processed strictly sequentially.
type Engine struct {
	source      *datastore.Store
	target      *datastore.Store
	logger      logger.Logger
	metrics     metrics.MigrationRecorder
	cache       *LookupCache
	checkpoints CheckpointStore
	issues      IssueRecorder
	opts        Options
	limiter     *rate.Limiter
	runID       string
}

// New creates an engine.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil || cfg.Source == nil || cfg.Target == nil {
		return nil, errors.Newf("migration engine needs a source and a target store").
			Component("migration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Options.BatchSize < 0 || cfg.Options.BatchSize > conf.MaxBatchSize {
		return nil, errors.Newf("batch size %d out of range [%d, %d]", cfg.Options.BatchSize, conf.MinBatchSize, conf.MaxBatchSize).
			Component("migration").
			Category(errors.CategoryConfiguration).
			Build()
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil)
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	runID := cfg.RunID
	if runID == "" {
		runID = NewRunID()
	}

	e := &Engine{
		source:      cfg.Source,
		target:      cfg.Target,
		logger:      log.Module("migration"),
		metrics:     recorder,
		cache:       cfg.Cache,
		checkpoints: cfg.Checkpoints,
		issues:      cfg.Issues,
		opts:        cfg.Options,
		runID:       runID,
	}
	if cfg.Options.BatchesPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.Options.BatchesPerSecond), 1)
	}
	return e, nil
}

// RunID returns the identifier attached to every report and recorded issue of this engine.
func (e *Engine) RunID() string {
	return e.runID
}

// RunAll runs plans in order and stops at the first fatal error. The reports of all
// plans that ran are returned, including the partial report of the failed one.
func (e *Engine) RunAll(ctx context.Context, plans []*Plan) ([]*Report, error) {
	reports := make([]*Report, 0, len(plans))
	for _, plan := range plans {
		report, err := e.Run(ctx, plan)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Run executes one migration pass. Non-fatal problems (skips, row errors, failed
// batches) are accumulated in the report; a returned error is always fatal to the run,
// and the report then describes the work done before the failure.
func (e *Engine) Run(ctx context.Context, plan *Plan) (*Report, error) {
	if plan == nil {
		return nil, errors.Newf("nil plan").Component("migration").Category(errors.CategoryValidation).Build()
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	r := &planRun{
		engine:    e,
		plan:      plan,
		report:    newReport(plan, e.runID, e.opts.DryRun),
		batchSize: e.batchSize(plan),
		fallback:  plan.RowFallback || e.opts.RowFallback,
		log: e.logger.With(
			logger.String("plan", plan.Name),
			logger.String("run_id", e.runID)),
	}

	r.log.Info("migration run started",
		logger.String("table", plan.Target.Table),
		logger.Int("batch_size", r.batchSize),
		logger.Bool("dry_run", e.opts.DryRun),
		logger.Bool("resume", e.opts.Resume))

	lookups, err := e.buildLookups(ctx, plan, r.log)
	if err != nil {
		return r.abort(ctx, err)
	}
	r.lookups = lookups

	if col := plan.Target.LegacyIDColumn; col != "" {
		existing, err := LoadLegacyIDs(ctx, e.target.DB(), plan.Target.Table, col)
		if err != nil {
			return r.abort(ctx, err)
		}
		r.existing = existing
		r.log.Debug("loaded already migrated legacy ids", logger.Int("count", len(existing)))
	}

	startKey, err := r.start(ctx)
	if err != nil {
		return r.abort(ctx, err)
	}
	r.cursor = startKey
	r.bounded = startKey != 0
	r.report.ResumedAfter = startKey
	r.report.LastKey = startKey

	r.reader = newSourceReader(e.source.DB(), plan.Source)
	r.writer = newBatchWriter(e.target, plan.Target)

	if err := r.loop(ctx); err != nil {
		return r.abort(ctx, err)
	}
	return r.complete(ctx), nil
}

func (e *Engine) batchSize(plan *Plan) int {
	switch {
	case e.opts.BatchSize > 0:
		return e.opts.BatchSize
	case plan.BatchSize > 0:
		return plan.BatchSize
	default:
		return conf.DefaultBatchSize
	}
}

// buildLookups builds every lookup table before any row is read. Failure is fatal.
func (e *Engine) buildLookups(ctx context.Context, plan *Plan, log logger.Logger) (*Lookups, error) {
	tables := make([]*LookupTable, 0, len(plan.Lookups))
	for _, spec := range plan.Lookups {
		if cached, ok := e.cache.Get(spec); ok {
			e.metrics.RecordLookup(spec.Name, cached.Len(), 0, true)
			log.Debug("lookup table reused from cache",
				logger.String("lookup", spec.Name),
				logger.Int("size", cached.Len()))
			tables = append(tables, cached)
			continue
		}

		start := time.Now()
		table, err := BuildLookup(ctx, e.target.DB(), spec)
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)
		e.metrics.RecordLookup(spec.Name, table.Len(), elapsed, false)
		e.cache.Put(spec, table)

		log.Info("lookup table built",
			logger.String("lookup", spec.Name),
			logger.String("table", spec.Table),
			logger.Int("size", table.Len()),
			logger.Duration("duration", elapsed))
		if table.Duplicates() > 0 {
			log.Warn("lookup table has duplicate legacy ids, first target id kept",
				logger.String("lookup", spec.Name),
				logger.Int("duplicates", table.Duplicates()))
		}
		tables = append(tables, table)
	}
	return NewLookups(tables...), nil
}

func cancellationError(err error, plan string) error {
	return errors.New(fmt.Errorf("migration canceled: %w", err)).
		Component("migration").
		Category(errors.CategoryCancellation).
		Context("plan", plan).
		Build()
}
