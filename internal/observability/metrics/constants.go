// Package metrics provides Prometheus metrics for migration runs.
package metrics

// Row outcome label values. Every processed source row is counted under exactly one.
const (
	OutcomeInserted = "inserted"
	OutcomeExisting = "existing"
	OutcomeSkipped  = "skipped"
	OutcomeErrored  = "errored"
	OutcomePlanned  = "planned"
)

// Batch and run status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDryRun  = "dry_run"
)

// Histogram bucket parameters.
const (
	// BucketStart10ms is the first bucket of batch and lookup duration histograms.
	BucketStart10ms = 0.01
	// BucketFactor2 doubles each bucket.
	BucketFactor2 = 2.0
	// BucketCount14 spans 10ms to ~82s.
	BucketCount14 = 14
)
