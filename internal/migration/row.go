package migration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SourceRow is one row fetched from the source store, keyed by column name.
// Drivers disagree on the Go types they return (int64 vs int32, []byte vs string,
// time.Time vs text on SQLite); the accessors normalize them.
type SourceRow map[string]any

// NewSourceRow wraps a map-scanned row. gorm leaves columns without a declared type
// (computed columns, JSON on SQLite) as *any; those are unwrapped to their value.
func NewSourceRow(m map[string]any) SourceRow {
	row := make(SourceRow, len(m))
	for col, v := range m {
		row[col] = unwrap(v)
	}
	return row
}

func unwrap(v any) any {
	if p, ok := v.(*any); ok {
		if p == nil {
			return nil
		}
		return unwrap(*p)
	}
	return v
}

// get returns the column value with any pointer wrapping removed.
func (r SourceRow) get(col string) any {
	return unwrap(r[col])
}

// Has reports whether the column is present in the row, NULL or not.
func (r SourceRow) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// IsNull reports whether the column is absent or NULL.
func (r SourceRow) IsNull(col string) bool {
	_, ok := r[col]
	return !ok || r.get(col) == nil
}

// Int64 returns an integer column. ok is false for NULL or non-integer values.
func (r SourceRow) Int64(col string) (int64, bool) {
	return toInt64(r.get(col))
}

// NullInt64 returns an integer column as a pointer, nil for NULL.
func (r SourceRow) NullInt64(col string) *int64 {
	v, ok := toInt64(r.get(col))
	if !ok {
		return nil
	}
	return &v
}

// String returns a text column, "" for NULL.
func (r SourceRow) String(col string) string {
	switch v := r.get(col).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// NullString returns a text column as a pointer, nil for NULL.
func (r SourceRow) NullString(col string) *string {
	if r.IsNull(col) {
		return nil
	}
	s := r.String(col)
	return &s
}

// TrimmedString returns a text column with surrounding whitespace removed, nil when
// NULL or blank. Legacy Django CharFields store "" rather than NULL.
func (r SourceRow) TrimmedString(col string) *string {
	s := strings.TrimSpace(r.String(col))
	if s == "" {
		return nil
	}
	return &s
}

// Bool returns a boolean column. MySQL and SQLite store booleans as integers.
func (r SourceRow) Bool(col string) bool {
	switch v := r.get(col).(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

// Float64 returns a numeric column.
func (r SourceRow) Float64(col string) (float64, bool) {
	switch v := r.get(col).(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil
	default:
		n, ok := toInt64(v)
		return float64(n), ok
	}
}

// timeLayouts covers what the three drivers hand back for timestamp columns stored as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Time returns a timestamp column in UTC.
func (r SourceRow) Time(col string) (time.Time, bool) {
	switch v := r.get(col).(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	default:
		return time.Time{}, false
	}
}

// NullTime returns a timestamp column as a pointer, nil for NULL or unparsable values.
func (r SourceRow) NullTime(col string) *time.Time {
	t, ok := r.Time(col)
	if !ok {
		return nil
	}
	return &t
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
