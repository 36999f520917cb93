package migration

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// SourceSpec is the source side of a plan.
type SourceSpec struct {
	// Query is a SELECT against the source store. It is wrapped as a derived table,
	// so it must not carry its own ORDER BY or LIMIT.
	Query string
	Args  []any
	// KeyColumn is the unique, ascending integer key the query is paged by.
	KeyColumn string
}

func (s SourceSpec) validate() error {
	query := strings.TrimSpace(s.Query)
	switch {
	case query == "":
		return fmt.Errorf("source query is empty")
	case !strings.HasPrefix(strings.ToUpper(query), "SELECT") && !strings.HasPrefix(strings.ToUpper(query), "WITH"):
		return fmt.Errorf("source query must be a SELECT")
	case s.KeyColumn == "":
		return fmt.Errorf("source key column is required")
	}
	return nil
}

// sourceReader pages a source query with keyset pagination: every page is the next
// limit rows whose key is greater than the last key seen, so rows inserted or deleted
// behind the cursor never shift a page the way OFFSET would.
type sourceReader struct {
	db    *gorm.DB
	spec  SourceSpec
	first string // first page of a full scan, no lower bound
	query string
}

func newSourceReader(db *gorm.DB, spec SourceSpec) *sourceReader {
	key := db.Statement.Quote(clause.Column{Table: "src", Name: spec.KeyColumn})
	source := strings.TrimSpace(spec.Query)
	return &sourceReader{
		db:    db,
		spec:  spec,
		first: fmt.Sprintf("SELECT * FROM (%s) AS src ORDER BY %s LIMIT ?", source, key),
		query: fmt.Sprintf("SELECT * FROM (%s) AS src WHERE %s > ? ORDER BY %s LIMIT ?", source, key, key),
	}
}

// next returns up to limit rows in key order. When bounded, only keys greater than
// afterKey are returned; otherwise the page starts at the lowest key, zero and
// negative keys included.
func (r *sourceReader) next(ctx context.Context, afterKey int64, bounded bool, limit int) ([]SourceRow, error) {
	query, args := r.first, slices.Concat(r.spec.Args, []any{limit})
	if bounded {
		query, args = r.query, slices.Concat(r.spec.Args, []any{afterKey, limit})
	}

	var raw []map[string]any
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, errors.New(fmt.Errorf("read source page after key %d: %w", afterKey, err)).
			Component("migration").
			Category(errors.CategorySourceRead).
			Context("after_key", afterKey).
			Context("limit", limit).
			Build()
	}

	rows := make([]SourceRow, len(raw))
	for i, m := range raw {
		rows[i] = NewSourceRow(m)
	}
	return rows, nil
}

// CountSource returns the number of rows the source query yields.
func CountSource(ctx context.Context, db *gorm.DB, spec SourceSpec) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS src", strings.TrimSpace(spec.Query))
	if err := db.WithContext(ctx).Raw(query, spec.Args...).Scan(&count).Error; err != nil {
		return 0, errors.New(fmt.Errorf("count source rows: %w", err)).
			Component("migration").
			Category(errors.CategorySourceRead).
			Build()
	}
	return count, nil
}
