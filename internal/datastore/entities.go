package datastore

import "time"

// CheckpointStatus is the lifecycle state of a plan's checkpoint row.
type CheckpointStatus string

const (
	CheckpointRunning   CheckpointStatus = "running"
	CheckpointCompleted CheckpointStatus = "completed"
	CheckpointFailed    CheckpointStatus = "failed"
)

// MigrationCheckpoint is the per-plan resume cursor.
// LastKey is the highest source key below which every row was processed without a write error.
type MigrationCheckpoint struct {
	Plan         string           `gorm:"primaryKey;type:varchar(64)"`
	Status       CheckpointStatus `gorm:"type:varchar(20);not null;default:'running'"`
	LastKey      int64            `gorm:"not null;default:0"`
	Processed    int64            `gorm:"not null;default:0"`
	Inserted     int64            `gorm:"not null;default:0"`
	Existing     int64            `gorm:"not null;default:0"`
	Skipped      int64            `gorm:"not null;default:0"`
	Errored      int64            `gorm:"not null;default:0"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string    `gorm:"type:text"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (MigrationCheckpoint) TableName() string {
	return "migration_checkpoints"
}

// Counts returns the run counters stored on the checkpoint.
func (c *MigrationCheckpoint) Counts() RunCounts {
	return RunCounts{
		Processed: c.Processed,
		Inserted:  c.Inserted,
		Existing:  c.Existing,
		Skipped:   c.Skipped,
		Errored:   c.Errored,
	}
}

// IsActive reports whether a run was started and never finished.
func (c *MigrationCheckpoint) IsActive() bool {
	return c.Status == CheckpointRunning
}

// RunCounts are the outcome counters persisted with a checkpoint.
type RunCounts struct {
	Processed int64
	Inserted  int64
	Existing  int64
	Skipped   int64
	Errored   int64
}

// IssueKind distinguishes skipped rows from rows lost in a failed batch.
type IssueKind string

const (
	IssueSkipped IssueKind = "skipped"
	IssueErrored IssueKind = "errored"
)

// MigrationIssue records one legacy row that did not reach the target.
// Re-recording the same (plan, legacy id, kind) replaces the reason.
type MigrationIssue struct {
	ID           uint      `gorm:"primaryKey"`
	Plan         string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_issue_plan_legacy_kind"`
	LegacyID     int64     `gorm:"not null;uniqueIndex:idx_issue_plan_legacy_kind"`
	Kind         IssueKind `gorm:"type:varchar(16);not null;uniqueIndex:idx_issue_plan_legacy_kind"`
	Lookup       string    `gorm:"type:varchar(64)"`
	UnresolvedID *int64
	Batch        int
	Reason       string    `gorm:"type:text"`
	RunID        string    `gorm:"type:varchar(36);index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (MigrationIssue) TableName() string {
	return "migration_issues"
}

// IssueCount is one row of the per-plan issue summary.
type IssueCount struct {
	Plan  string
	Kind  IssueKind
	Count int64
}
