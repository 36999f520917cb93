package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casebridge/dispatch-migrate/internal/datastore"
)

// TargetSpec is the target side of a plan.
type TargetSpec struct {
	Table string
	// ConflictColumns is the unique key used for ON CONFLICT DO NOTHING.
	ConflictColumns []string
	// LegacyIDColumn holds the source key on the target row. It drives the
	// already-migrated pre-filter and is filled from the source key when a
	// transform leaves it out.
	LegacyIDColumn string
}

func (t TargetSpec) validate() error {
	switch {
	case t.Table == "":
		return fmt.Errorf("target table is required")
	case len(t.ConflictColumns) == 0:
		return fmt.Errorf("target %s needs at least one conflict column", t.Table)
	}
	return nil
}

// batchWriter issues one multi-row conflict-safe INSERT per batch.
type batchWriter struct {
	store  *datastore.Store
	target TargetSpec
	onConf clause.OnConflict
}

func newBatchWriter(store *datastore.Store, target TargetSpec) *batchWriter {
	return &batchWriter{store: store, target: target, onConf: conflictClause(store, target)}
}

// conflictClause renders ON CONFLICT (...) DO NOTHING, or its MySQL equivalent.
// MySQL has no DO NOTHING and INSERT IGNORE would also swallow NOT NULL and
// truncation errors, so duplicates are absorbed with a self-assignment instead;
// an unchanged row reports zero affected rows.
func conflictClause(store *datastore.Store, target TargetSpec) clause.OnConflict {
	columns := make([]clause.Column, len(target.ConflictColumns))
	for i, c := range target.ConflictColumns {
		columns[i] = clause.Column{Name: c}
	}
	if store.IsMySQL() {
		first := clause.Column{Name: target.ConflictColumns[0]}
		return clause.OnConflict{
			Columns:   columns,
			DoUpdates: []clause.Assignment{{Column: first, Value: first}},
		}
	}
	return clause.OnConflict{Columns: columns, DoNothing: true}
}

// write inserts records and returns how many rows were actually inserted.
// Records whose conflict key already exists are silently left alone.
func (w *batchWriter) write(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	values := make([]map[string]any, len(records))
	columns := 0
	for i, r := range records {
		values[i] = r
		columns = max(columns, len(r))
	}

	// a batch is all or nothing, even when it has to be split into several statements
	var inserted int64
	err := w.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Table(w.target.Table).
			Clauses(w.onConf).
			CreateInBatches(&values, chunkSize(columns))
		inserted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// maxBindParams is the lowest placeholder limit of the supported drivers (SQLite's
// SQLITE_MAX_VARIABLE_NUMBER; postgres and mysql allow 65535).
const maxBindParams = 32766

func chunkSize(columns int) int {
	if columns <= 0 {
		return maxBindParams
	}
	return max(1, maxBindParams/columns)
}

// rowResult is the outcome of writing one record on the fallback path.
type rowResult struct {
	inserted bool
	err      error
}

// writeEach retries records one at a time after a failed batch.
func (w *batchWriter) writeEach(ctx context.Context, records []Record) []rowResult {
	results := make([]rowResult, len(records))
	for i, r := range records {
		if ctx.Err() != nil {
			results[i] = rowResult{err: ctx.Err()}
			continue
		}
		n, err := w.write(ctx, []Record{r})
		results[i] = rowResult{inserted: n > 0, err: err}
	}
	return results
}
