package migration

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// LookupSpec describes one legacyID -> targetID map built from a target table.
type LookupSpec struct {
	Name         string // name used by transforms, e.g. "doctors"
	Table        string
	LegacyColumn string
	KeyColumn    string
	Where        string // optional extra SQL predicate
}

func (s LookupSpec) cacheKey() string {
	return s.Table + "|" + s.LegacyColumn + "|" + s.KeyColumn + "|" + s.Where
}

// Validate checks that the spec names a table and both columns.
func (s LookupSpec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("lookup spec for table %q has no name", s.Table)
	case s.Table == "" || s.LegacyColumn == "" || s.KeyColumn == "":
		return fmt.Errorf("lookup %q needs table, legacy column and key column", s.Name)
	}
	return nil
}

// LookupTable is an immutable legacyID -> targetID map.
type LookupTable struct {
	name       string
	table      string
	entries    map[int64]string
	duplicates int
}

// NewLookupTable builds a table from an existing map. The map is copied.
func NewLookupTable(name, table string, entries map[int64]string) *LookupTable {
	return &LookupTable{name: name, table: table, entries: maps.Clone(entries)}
}

func (t *LookupTable) Name() string  { return t.name }
func (t *LookupTable) Table() string { return t.table }
func (t *LookupTable) Len() int      { return len(t.entries) }

// Duplicates is the number of legacy ids that appeared more than once in the target table.
// The first target id seen wins.
func (t *LookupTable) Duplicates() int { return t.duplicates }

// Resolve returns the target id of a legacy id.
func (t *LookupTable) Resolve(legacyID int64) (string, bool) {
	v, ok := t.entries[legacyID]
	return v, ok
}

// Lookups is the read-only resolution service handed to transforms.
type Lookups struct {
	tables map[string]*LookupTable
}

// NewLookups indexes tables by name.
func NewLookups(tables ...*LookupTable) *Lookups {
	l := &Lookups{tables: make(map[string]*LookupTable, len(tables))}
	for _, t := range tables {
		l.tables[t.name] = t
	}
	return l
}

// Table returns a lookup table by name.
func (l *Lookups) Table(name string) (*LookupTable, bool) {
	if l == nil {
		return nil, false
	}
	t, ok := l.tables[name]
	return t, ok
}

// Resolve maps a required reference. An absent legacy id yields a *SkipError; an
// unknown lookup name is a programming error and yields a plain error.
func (l *Lookups) Resolve(name string, legacyID int64) (string, error) {
	t, ok := l.Table(name)
	if !ok {
		return "", fmt.Errorf("lookup %q is not configured for this plan", name)
	}
	id, ok := t.Resolve(legacyID)
	if !ok {
		return "", unresolved(name, legacyID)
	}
	return id, nil
}

// ResolveOptional maps a nullable reference. NULL stays NULL; a non-NULL id that
// cannot be resolved is still a skip.
func (l *Lookups) ResolveOptional(name string, legacyID *int64) (*string, error) {
	if legacyID == nil {
		return nil, nil
	}
	id, err := l.Resolve(name, *legacyID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// BuildLookup loads a full lookup table from the target store.
// Any failure is a LookupBuildError, which is fatal to the run.
func BuildLookup(ctx context.Context, db *gorm.DB, spec LookupSpec) (*LookupTable, error) {
	if err := spec.Validate(); err != nil {
		return nil, lookupError(err, spec, "validate")
	}

	query := db.WithContext(ctx).
		Table(spec.Table).
		Select("?, ?", clause.Column{Name: spec.LegacyColumn}, clause.Column{Name: spec.KeyColumn}).
		Where("? IS NOT NULL", clause.Column{Name: spec.LegacyColumn})
	if spec.Where != "" {
		query = query.Where(spec.Where)
	}

	rows, err := query.Rows()
	if err != nil {
		return nil, lookupError(err, spec, "query")
	}
	defer rows.Close()

	table := &LookupTable{name: spec.Name, table: spec.Table, entries: make(map[int64]string)}
	for rows.Next() {
		var legacy, key any
		if err := rows.Scan(&legacy, &key); err != nil {
			return nil, lookupError(err, spec, "scan")
		}
		legacyID, ok := toInt64(legacy)
		if !ok {
			return nil, lookupError(fmt.Errorf("legacy column %s holds non-integer value %v", spec.LegacyColumn, legacy), spec, "scan")
		}
		targetID, ok := normalizeTargetID(key)
		if !ok {
			return nil, lookupError(fmt.Errorf("key column %s holds unsupported value %T", spec.KeyColumn, key), spec, "scan")
		}
		if _, dup := table.entries[legacyID]; dup {
			table.duplicates++
			continue
		}
		table.entries[legacyID] = targetID
	}
	if err := rows.Err(); err != nil {
		return nil, lookupError(err, spec, "iterate")
	}
	return table, nil
}

// LoadLegacyIDs returns the set of legacy ids already present in a target table.
func LoadLegacyIDs(ctx context.Context, db *gorm.DB, table, column string) (map[int64]struct{}, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Table(table).
		Where("? IS NOT NULL", clause.Column{Name: column}).
		Pluck(column, &ids).Error
	if err != nil {
		return nil, errors.New(fmt.Errorf("load migrated legacy ids: %w", err)).
			Component("migration").
			Category(errors.CategoryLookupBuild).
			Context("table", table).
			Context("column", column).
			Build()
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func normalizeTargetID(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		return id, true
	case uuid.UUID:
		return id.String(), true
	case [16]byte:
		return uuid.UUID(id).String(), true
	case []byte:
		// binary(16) UUID columns on MySQL
		if len(id) == 16 && !utf8.Valid(id) {
			u, err := uuid.FromBytes(id)
			if err == nil {
				return u.String(), true
			}
		}
		return string(id), true
	default:
		if n, ok := toInt64(id); ok {
			return strconv.FormatInt(n, 10), true
		}
		return "", false
	}
}

func lookupError(err error, spec LookupSpec, stage string) error {
	return errors.New(fmt.Errorf("build lookup %s: %w", spec.Name, err)).
		Component("migration").
		Category(errors.CategoryLookupBuild).
		Context("lookup", spec.Name).
		Context("table", spec.Table).
		Context("stage", stage).
		Build()
}
