package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/logger"
	"github.com/casebridge/dispatch-migrate/internal/observability/metrics"
)

// planRun is the state of one Engine.Run call.
type planRun struct {
	engine    *Engine
	plan      *Plan
	report    *Report
	log       logger.Logger
	lookups   *Lookups
	existing  map[int64]struct{}
	reader    *sourceReader
	writer    *batchWriter
	batchSize int
	fallback  bool

	started bool
	cursor  int64 // last source key read
	// bounded is false until the first page of a full scan was read; that page has no
	// lower key bound.
	bounded bool
	// held is set once a batch had errored rows; the persisted cursor then stops
	// advancing so a resumed run revisits them.
	held bool
}

// batchResult collects the outcome of one batch before it is folded into the report.
type batchResult struct {
	number            int
	firstKey, lastKey int64

	inserted, existing, skipped, errored, planned int64

	skips     []SkipDetail
	rowErrors []RowError
	batchErr  *BatchError
	issues    []datastore.MigrationIssue
	resolved  []int64
}

func (r *planRun) start(ctx context.Context) (int64, error) {
	cp := r.engine.checkpoints
	if cp == nil {
		return 0, nil
	}
	if r.engine.opts.DryRun {
		if !r.engine.opts.Resume {
			return 0, nil
		}
		checkpoint, _, err := cp.Checkpoint(ctx, r.plan.Name)
		return checkpoint.LastKey, err
	}

	startKey, err := cp.StartRun(ctx, r.plan.Name, r.engine.opts.Resume)
	if err != nil {
		return 0, err
	}
	r.started = true
	if startKey > 0 {
		r.log.Info("resuming after checkpoint", logger.Int64("after_key", startKey))
	}
	return startKey, nil
}

func (r *planRun) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return cancellationError(err, r.plan.Name)
		}
		if r.engine.limiter != nil {
			if err := r.engine.limiter.Wait(ctx); err != nil {
				return cancellationError(err, r.plan.Name)
			}
		}

		rows, err := r.reader.next(ctx, r.cursor, r.bounded, r.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return cancellationError(ctx.Err(), r.plan.Name)
			}
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		if err := r.processBatch(ctx, rows); err != nil {
			return err
		}
		r.bounded = true
		if len(rows) < r.batchSize {
			return nil
		}
	}
}

func (r *planRun) processBatch(ctx context.Context, rows []SourceRow) error {
	start := time.Now()
	r.report.Batches++
	res := &batchResult{number: r.report.Batches}

	var (
		records []Record
		keys    []int64
	)
	for i, row := range rows {
		key, ok := row.Int64(r.plan.Source.KeyColumn)
		if !ok {
			return r.sourceKeyError(fmt.Errorf("row has no integer %q key: %v", r.plan.Source.KeyColumn, row[r.plan.Source.KeyColumn]))
		}
		if i > 0 && key <= r.cursor {
			return r.sourceKeyError(fmt.Errorf("source key %d is not strictly ascending after %d", key, r.cursor))
		}
		r.cursor = key
		if i == 0 {
			res.firstKey = key
		}
		res.lastKey = key

		if _, done := r.existing[key]; done {
			res.existing++
			res.resolved = append(res.resolved, key)
			continue
		}

		record, err := r.plan.Transform(row, r.lookups)
		if err != nil {
			r.classifyTransformError(res, key, err)
			continue
		}
		if record == nil {
			res.addSkip(key, &SkipError{Reason: "excluded by transform"})
			continue
		}
		if col := r.plan.Target.LegacyIDColumn; col != "" {
			if _, set := record[col]; !set {
				record[col] = key
			}
		}
		records = append(records, record)
		keys = append(keys, key)
	}
	// counted only once every row has an outcome, so an aborted batch leaves the report balanced
	r.report.Processed += int64(len(rows))

	if err := r.write(ctx, res, records, keys); err != nil {
		return err
	}

	r.fold(res)
	r.recordIssues(ctx, res)
	r.saveProgress(ctx, res)
	r.recordBatchMetrics(res, time.Since(start))

	r.log.Debug("batch processed",
		logger.Int("batch", res.number),
		logger.Int64("first_key", res.firstKey),
		logger.Int64("last_key", res.lastKey),
		logger.Int64("inserted", res.inserted),
		logger.Int64("existing", res.existing),
		logger.Int64("skipped", res.skipped),
		logger.Int64("errored", res.errored),
		logger.Duration("duration", time.Since(start)))
	return nil
}

func (r *planRun) classifyTransformError(res *batchResult, key int64, err error) {
	if skip, ok := AsSkip(err); ok {
		res.addSkip(key, skip)
		r.log.Debug("row skipped",
			logger.Int64("legacy_id", key),
			logger.String("lookup", skip.Lookup),
			logger.String("reason", skip.Reason))
		return
	}
	res.errored++
	res.rowErrors = append(res.rowErrors, RowError{
		LegacyID: key,
		Batch:    res.number,
		Category: string(errors.CategoryTransform),
		Message:  err.Error(),
	})
	res.issues = append(res.issues, datastore.MigrationIssue{
		LegacyID: key,
		Kind:     datastore.IssueErrored,
		Reason:   err.Error(),
	})
	r.log.Warn("row transform failed", logger.Int64("legacy_id", key), logger.Error(err))
}

func (res *batchResult) addSkip(key int64, skip *SkipError) {
	res.skipped++
	res.skips = append(res.skips, SkipDetail{
		LegacyID:     key,
		Lookup:       skip.Lookup,
		UnresolvedID: skip.UnresolvedID,
		Reason:       skip.Reason,
		Batch:        res.number,
	})
	res.issues = append(res.issues, datastore.MigrationIssue{
		LegacyID:     key,
		Kind:         datastore.IssueSkipped,
		Lookup:       skip.Lookup,
		UnresolvedID: skip.UnresolvedID,
		Reason:       skip.Reason,
	})
}

// write sends the batch's insertable records to the target. Only cancellation is fatal;
// a rejected batch is recorded and the run moves on.
func (r *planRun) write(ctx context.Context, res *batchResult, records []Record, keys []int64) error {
	if len(records) == 0 {
		return nil
	}
	if r.engine.opts.DryRun {
		res.planned = int64(len(records))
		return nil
	}

	inserted, err := r.writer.write(ctx, records)
	if err == nil {
		inserted = min(inserted, int64(len(records)))
		res.inserted += inserted
		res.existing += int64(len(records)) - inserted
		res.resolved = append(res.resolved, keys...)
		return nil
	}

	if ctx.Err() != nil {
		res.errored += int64(len(records))
		r.fold(res)
		return cancellationError(ctx.Err(), r.plan.Name)
	}

	detail := datastore.ClassifyWriteError(err)
	r.engine.metrics.RecordBatchError(r.plan.Name, string(detail.Kind))

	if r.fallback {
		r.log.Warn("batch write failed, retrying rows individually",
			logger.Int("batch", res.number),
			logger.Int("records", len(records)),
			logger.String("kind", detail.String()),
			logger.Error(err))
		r.writeRows(ctx, res, records, keys)
		return nil
	}

	res.errored += int64(len(records))
	res.batchErr = &BatchError{
		Batch:       res.number,
		FirstKey:    keys[0],
		LastKey:     keys[len(keys)-1],
		Records:     len(records),
		Kind:        string(detail.Kind),
		Code:        detail.Code,
		Message:     err.Error(),
		FirstRecord: records[0].Shape(),
	}
	for _, key := range keys {
		res.issues = append(res.issues, datastore.MigrationIssue{
			LegacyID: key,
			Kind:     datastore.IssueErrored,
			Reason:   fmt.Sprintf("batch %d rejected: %s", res.number, detail),
		})
	}
	r.log.Error("batch write failed",
		logger.Int("batch", res.number),
		logger.Int64("first_key", keys[0]),
		logger.Int64("last_key", keys[len(keys)-1]),
		logger.Int("records", len(records)),
		logger.String("kind", detail.String()),
		logger.Any("first_record", res.batchErr.FirstRecord),
		logger.Error(err))
	return nil
}

func (r *planRun) writeRows(ctx context.Context, res *batchResult, records []Record, keys []int64) {
	for i, result := range r.writer.writeEach(ctx, records) {
		key := keys[i]
		switch {
		case result.err == nil && result.inserted:
			res.inserted++
			res.resolved = append(res.resolved, key)
		case result.err == nil:
			res.existing++
			res.resolved = append(res.resolved, key)
		default:
			detail := datastore.ClassifyWriteError(result.err)
			res.errored++
			res.rowErrors = append(res.rowErrors, RowError{
				LegacyID: key,
				Batch:    res.number,
				Category: string(errors.CategoryBatchWrite),
				Kind:     detail.String(),
				Message:  result.err.Error(),
			})
			res.issues = append(res.issues, datastore.MigrationIssue{
				LegacyID: key,
				Kind:     datastore.IssueErrored,
				Reason:   result.err.Error(),
			})
		}
	}
}

func (r *planRun) fold(res *batchResult) {
	rep := r.report
	rep.Inserted += res.inserted
	rep.Existing += res.existing
	rep.Skipped += res.skipped
	rep.Errored += res.errored
	rep.Planned += res.planned
	rep.Skips = append(rep.Skips, res.skips...)
	rep.RowErrors = append(rep.RowErrors, res.rowErrors...)
	if res.batchErr != nil {
		rep.BatchErrors = append(rep.BatchErrors, *res.batchErr)
	}
	if r.bounded {
		rep.LastKey = max(rep.LastKey, res.lastKey)
	} else {
		rep.LastKey = res.lastKey
	}
}

func (r *planRun) recordIssues(ctx context.Context, res *batchResult) {
	e := r.engine
	if !e.opts.RecordIssues || e.issues == nil || e.opts.DryRun {
		return
	}
	if len(res.issues) > 0 {
		for i := range res.issues {
			res.issues[i].Plan = r.plan.Name
			res.issues[i].Batch = res.number
			res.issues[i].RunID = e.runID
		}
		if err := e.issues.RecordIssues(ctx, res.issues); err != nil {
			r.log.Warn("failed to record migration issues", logger.Int("batch", res.number), logger.Error(err))
		}
	}
	if len(res.resolved) > 0 {
		n, err := e.issues.ResolveIssues(ctx, r.plan.Name, res.resolved)
		if err != nil {
			r.log.Warn("failed to resolve migration issues", logger.Int("batch", res.number), logger.Error(err))
		} else if n > 0 {
			r.log.Debug("resolved previously recorded issues", logger.Int64("count", n))
		}
	}
}

// saveProgress advances the persisted cursor over the contiguous prefix of batches
// without errored rows. Skipped rows do not hold the cursor: they are reported, and a
// full rescan without resume picks them up once their lookups resolve.
func (r *planRun) saveProgress(ctx context.Context, res *batchResult) {
	if res.errored > 0 && !r.held {
		r.held = true
		r.log.Info("checkpoint cursor held before errored batch",
			logger.Int("batch", res.number),
			logger.Int64("first_key", res.firstKey))
	}
	if r.held || !r.started {
		return
	}
	if err := r.engine.checkpoints.SaveProgress(ctx, r.plan.Name, res.lastKey, r.report.Counts()); err != nil {
		r.log.Warn("failed to save checkpoint", logger.Int64("last_key", res.lastKey), logger.Error(err))
	}
}

func (r *planRun) recordBatchMetrics(res *batchResult, elapsed time.Duration) {
	m := r.engine.metrics
	name := r.plan.Name
	m.RecordRows(name, metrics.OutcomeInserted, int(res.inserted))
	m.RecordRows(name, metrics.OutcomeExisting, int(res.existing))
	m.RecordRows(name, metrics.OutcomeSkipped, int(res.skipped))
	m.RecordRows(name, metrics.OutcomeErrored, int(res.errored))
	m.RecordRows(name, metrics.OutcomePlanned, int(res.planned))

	status := metrics.StatusSuccess
	switch {
	case r.engine.opts.DryRun:
		status = metrics.StatusDryRun
	case res.batchErr != nil:
		status = metrics.StatusError
	}
	m.RecordBatch(name, status, elapsed)
}

func (r *planRun) sourceKeyError(err error) error {
	return errors.New(err).
		Component("migration").
		Category(errors.CategorySourceRead).
		Context("plan", r.plan.Name).
		Context("key_column", r.plan.Source.KeyColumn).
		Build()
}

// complete finalizes a successful run.
func (r *planRun) complete(ctx context.Context) *Report {
	rep := r.report
	rep.finish()
	r.finishCheckpoint(ctx, nil)

	if rep.Inserted > 0 {
		if dropped := r.engine.cache.InvalidateTable(r.plan.Target.Table); dropped > 0 {
			r.log.Debug("invalidated cached lookups", logger.String("table", r.plan.Target.Table), logger.Int("dropped", dropped))
		}
	}

	status := metrics.StatusSuccess
	if rep.DryRun {
		status = metrics.StatusDryRun
	}
	r.engine.metrics.RecordRun(r.plan.Name, status, rep.Duration)

	r.log.Info("migration run finished",
		logger.Int64("processed", rep.Processed),
		logger.Int64("inserted", rep.Inserted),
		logger.Int64("existing", rep.Existing),
		logger.Int64("skipped", rep.Skipped),
		logger.Int64("errored", rep.Errored),
		logger.Int64("planned", rep.Planned),
		logger.String("success_rate", rep.SuccessRate()),
		logger.Float64("coverage", rep.CoveragePercent()),
		logger.Duration("duration", rep.Duration))
	return rep
}

// abort finalizes a run that hit a fatal error and returns the partial report with it.
func (r *planRun) abort(ctx context.Context, err error) (*Report, error) {
	rep := r.report
	rep.finish()
	r.finishCheckpoint(ctx, err)
	if rep.Inserted > 0 {
		r.engine.cache.InvalidateTable(r.plan.Target.Table)
	}
	r.engine.metrics.RecordRun(r.plan.Name, metrics.StatusError, rep.Duration)
	r.log.Error("migration run aborted",
		logger.Int64("processed", rep.Processed),
		logger.Int64("inserted", rep.Inserted),
		logger.Error(err))
	return rep, err
}

func (r *planRun) finishCheckpoint(ctx context.Context, runErr error) {
	if !r.started {
		return
	}
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := r.engine.checkpoints.FinishRun(finishCtx, r.plan.Name, r.report.Counts(), runErr); err != nil {
		r.log.Warn("failed to finish checkpoint", logger.Error(err))
	}
}
