package migration

import (
	"fmt"
	"strconv"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// SkipError is returned by a transform to classify a row as SKIPPED.
// Lookup and UnresolvedID are set when a required reference could not be resolved.
type SkipError struct {
	Lookup       string
	UnresolvedID *int64
	Reason       string
}

func (e *SkipError) Error() string {
	if e.Lookup == "" {
		return "skipped: " + e.Reason
	}
	id := "<nil>"
	if e.UnresolvedID != nil {
		id = strconv.FormatInt(*e.UnresolvedID, 10)
	}
	return fmt.Sprintf("skipped: unresolved %s reference %s", e.Lookup, id)
}

// ErrorCategory lets skips be grouped with other categorized errors.
func (e *SkipError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryUnresolvedReference
}

// Skip returns a SkipError for a row excluded for a reason other than a failed lookup.
func Skip(format string, args ...any) *SkipError {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

func unresolved(lookup string, id int64) *SkipError {
	return &SkipError{
		Lookup:       lookup,
		UnresolvedID: &id,
		Reason:       fmt.Sprintf("legacy id %d not found in %s lookup", id, lookup),
	}
}

// AsSkip reports whether err is (or wraps) a SkipError.
func AsSkip(err error) (*SkipError, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip, true
	}
	return nil, false
}
