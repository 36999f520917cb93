package plans

import (
	"fmt"
	"strings"
	"time"

	"github.com/casebridge/dispatch-migrate/internal/migration"
)

func legacyID(row migration.SourceRow) int64 {
	id, _ := row.Int64("id")
	return id
}

// lowerEmail trims and lower-cases an address; blank becomes NULL.
func lowerEmail(row migration.SourceRow, col string) *string {
	v := row.TrimmedString(col)
	if v == nil {
		return nil
	}
	email := strings.ToLower(*v)
	return &email
}

// createdAt returns the required creation time of a legacy row.
func createdAt(row migration.SourceRow, entity string, col string) (time.Time, error) {
	ts, ok := row.Time(col)
	if !ok {
		return time.Time{}, fmt.Errorf("%s %d has no valid %s", entity, legacyID(row), col)
	}
	return ts, nil
}
