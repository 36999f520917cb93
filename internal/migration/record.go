package migration

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Record is a transformed row ready to be written, keyed by target column.
type Record map[string]any

// Columns returns the record's column names in sorted order.
func (r Record) Columns() []string {
	return slices.Sorted(maps.Keys(r))
}

// Shape describes the record as column -> Go type, without values. Batch error reports
// carry the shape of the first record so failures can be diagnosed without leaking data.
func (r Record) Shape() map[string]string {
	shape := make(map[string]string, len(r))
	for col, v := range r {
		if v == nil {
			shape[col] = "nil"
			continue
		}
		shape[col] = fmt.Sprintf("%T", v)
	}
	return shape
}

// deref unwraps the nullable values SourceRow accessors return.
func deref(v any) any {
	switch x := v.(type) {
	case *string:
		if x != nil {
			return *x
		}
	case *int64:
		if x != nil {
			return *x
		}
	case *float64:
		if x != nil {
			return *x
		}
	case *time.Time:
		if x != nil {
			return x.UTC().Format(time.RFC3339)
		}
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case []byte:
		return string(x)
	default:
		return v
	}
	return nil
}

// Metadata encodes unmapped legacy fields as a JSON column value. NULL values are dropped.
func Metadata(fields map[string]any) datatypes.JSON {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if v = deref(v); v != nil {
			clean[k] = v
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		// only reachable with unsupported values such as channels or NaN
		data, _ = json.Marshal(map[string]string{"_encode_error": err.Error()})
	}
	return datatypes.JSON(data)
}
