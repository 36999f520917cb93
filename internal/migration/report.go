package migration

import (
	"fmt"
	"time"

	"github.com/casebridge/dispatch-migrate/internal/datastore"
)

// DefaultMinCoverage is the coverage percentage at or above which a run is considered healthy.
const DefaultMinCoverage = 90.0

// SkipDetail describes one SKIPPED row.
type SkipDetail struct {
	LegacyID     int64  `json:"legacy_id" yaml:"legacy_id"`
	Lookup       string `json:"lookup,omitempty" yaml:"lookup,omitempty"`
	UnresolvedID *int64 `json:"unresolved_id,omitempty" yaml:"unresolved_id,omitempty"`
	Reason       string `json:"reason" yaml:"reason"`
	Batch        int    `json:"batch" yaml:"batch"`
}

// RowError describes one row that was ERRORED on its own: a transform failure, or a
// failed single-row write on the fallback path.
type RowError struct {
	LegacyID int64  `json:"legacy_id" yaml:"legacy_id"`
	Batch    int    `json:"batch" yaml:"batch"`
	Category string `json:"category" yaml:"category"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

// BatchError describes a batch the target rejected as a whole.
type BatchError struct {
	Batch    int    `json:"batch" yaml:"batch"`
	FirstKey int64  `json:"first_key" yaml:"first_key"`
	LastKey  int64  `json:"last_key" yaml:"last_key"`
	Records  int    `json:"records" yaml:"records"`
	Kind     string `json:"kind" yaml:"kind"`
	Code     string `json:"code,omitempty" yaml:"code,omitempty"`
	Message  string `json:"message" yaml:"message"`
	// FirstRecord is the column -> type shape of the batch's first record.
	FirstRecord map[string]string `json:"first_record" yaml:"first_record"`
}

// Report is the outcome of one plan run.
type Report struct {
	Plan   string `json:"plan" yaml:"plan"`
	Table  string `json:"table" yaml:"table"`
	RunID  string `json:"run_id" yaml:"run_id"`
	DryRun bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`

	Processed int64 `json:"processed" yaml:"processed"`
	Inserted  int64 `json:"inserted" yaml:"inserted"`
	// Existing rows were already in the target, either filtered before the
	// transform or left alone by the conflict clause.
	Existing int64 `json:"existing" yaml:"existing"`
	Skipped  int64 `json:"skipped" yaml:"skipped"`
	Errored  int64 `json:"errored" yaml:"errored"`
	// Planned rows would have been written; only set on dry runs.
	Planned int64 `json:"planned,omitempty" yaml:"planned,omitempty"`
	Batches int   `json:"batches" yaml:"batches"`

	Skips       []SkipDetail `json:"skips,omitempty" yaml:"skips,omitempty"`
	RowErrors   []RowError   `json:"row_errors,omitempty" yaml:"row_errors,omitempty"`
	BatchErrors []BatchError `json:"batch_errors,omitempty" yaml:"batch_errors,omitempty"`

	// ResumedAfter is the source key the run started after; 0 for a full scan.
	ResumedAfter int64 `json:"resumed_after,omitempty" yaml:"resumed_after,omitempty"`
	// LastKey is the highest source key read.
	LastKey int64 `json:"last_key" yaml:"last_key"`

	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"-" yaml:"-"`
	DurationSeconds float64       `json:"duration_seconds" yaml:"duration_seconds"`
}

func newReport(plan *Plan, runID string, dryRun bool) *Report {
	return &Report{
		Plan:      plan.Name,
		Table:     plan.Target.Table,
		RunID:     runID,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

func (r *Report) finish() {
	r.Duration = time.Since(r.StartedAt)
	r.DurationSeconds = r.Duration.Round(time.Millisecond).Seconds()
}

// SuccessRatePercent is inserted / processed * 100, or 0 when nothing was processed.
func (r *Report) SuccessRatePercent() float64 {
	return percent(r.Inserted, r.Processed)
}

// SuccessRate formats SuccessRatePercent with two decimals.
func (r *Report) SuccessRate() string {
	return fmt.Sprintf("%.2f", r.SuccessRatePercent())
}

// CoveragePercent is the share of processed rows present in the target after the run.
// On a dry run planned rows count as covered.
func (r *Report) CoveragePercent() float64 {
	return percent(r.Inserted+r.Existing+r.Planned, r.Processed)
}

// Healthy reports whether coverage reaches minCoverage. An empty run is healthy.
func (r *Report) Healthy(minCoverage float64) bool {
	if r.Processed == 0 {
		return true
	}
	return r.CoveragePercent() >= minCoverage
}

// Verdict renders the health judgment operators read at the end of a run.
func (r *Report) Verdict(minCoverage float64) string {
	if r.Healthy(minCoverage) {
		return "✅"
	}
	return "⚠️"
}

// Balanced reports whether every processed row is accounted for by exactly one outcome.
func (r *Report) Balanced() bool {
	return r.Inserted+r.Existing+r.Skipped+r.Errored+r.Planned == r.Processed
}

// Counts returns the counters persisted with a checkpoint.
func (r *Report) Counts() datastore.RunCounts {
	return datastore.RunCounts{
		Processed: r.Processed,
		Inserted:  r.Inserted,
		Existing:  r.Existing,
		Skipped:   r.Skipped,
		Errored:   r.Errored,
	}
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
