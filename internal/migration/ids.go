package migration

import (
	"strconv"

	"github.com/google/uuid"
)

// idNamespace scopes every generated target identifier.
var idNamespace = uuid.MustParse("6f1c1a52-93f2-4c0e-9a55-5b0d8e6f3c21")

// StableID derives the target surrogate key of a legacy row. The same table and legacy
// id always produce the same UUID, so separate runs and batch sizes yield identical rows.
func StableID(table string, legacyID int64) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(table+":"+strconv.FormatInt(legacyID, 10)))
}

// NewRunID returns a random identifier tagging one process invocation.
func NewRunID() string {
	return uuid.NewString()
}
