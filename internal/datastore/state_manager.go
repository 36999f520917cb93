package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// issueBatchSize bounds the multi-row upsert used for recorded issues.
const issueBatchSize = 200

// StateManager persists per-plan checkpoints and the issue ledger in the target store.
type StateManager struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewStateManager creates a new migration state manager.
func NewStateManager(db *gorm.DB) *StateManager {
	return &StateManager{db: db}
}

// EnsureSchema creates the bookkeeping tables when missing.
func (m *StateManager) EnsureSchema(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationCheckpoint{}, &MigrationIssue{}); err != nil {
		return checkpointError(err, "", "ensure_schema")
	}
	return nil
}

// HasSchema reports whether the bookkeeping tables exist. Read-only callers use it to
// treat a fresh target as having no checkpoints.
func (m *StateManager) HasSchema(ctx context.Context) bool {
	migrator := m.db.WithContext(ctx).Migrator()
	return migrator.HasTable(&MigrationCheckpoint{}) && migrator.HasTable(&MigrationIssue{})
}

// Checkpoint returns the stored checkpoint of a plan. found is false when the plan never ran.
func (m *StateManager) Checkpoint(ctx context.Context, plan string) (cp MigrationCheckpoint, found bool, err error) {
	err = m.db.WithContext(ctx).Where("plan = ?", plan).First(&cp).Error
	switch {
	case err == nil:
		return cp, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return MigrationCheckpoint{Plan: plan}, false, nil
	default:
		return cp, false, checkpointError(err, plan, "get_checkpoint")
	}
}

// StartRun marks a plan as running and returns the source key to start after.
// Without resume the cursor and counters are reset and the returned key is 0.
func (m *StateManager) StartRun(ctx context.Context, plan string, resume bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	db := m.db.WithContext(ctx)

	var cp MigrationCheckpoint
	err := db.Where("plan = ?", plan).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cp = MigrationCheckpoint{Plan: plan, Status: CheckpointRunning, StartedAt: &now}
		if err := db.Create(&cp).Error; err != nil {
			return 0, checkpointError(err, plan, "start_run")
		}
		return 0, nil
	}
	if err != nil {
		return 0, checkpointError(err, plan, "start_run")
	}

	updates := map[string]any{
		"status":        CheckpointRunning,
		"started_at":    &now,
		"completed_at":  nil,
		"error_message": "",
		"processed":     0,
		"inserted":      0,
		"existing":      0,
		"skipped":       0,
		"errored":       0,
	}
	startKey := cp.LastKey
	if !resume {
		updates["last_key"] = 0
		startKey = 0
	}

	if err := db.Model(&MigrationCheckpoint{}).Where("plan = ?", plan).Updates(updates).Error; err != nil {
		return 0, checkpointError(err, plan, "start_run")
	}
	return startKey, nil
}

// SaveProgress advances the cursor and stores the counters of the current run.
func (m *StateManager) SaveProgress(ctx context.Context, plan string, lastKey int64, counts RunCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updates := countUpdates(counts)
	updates["last_key"] = lastKey

	result := m.db.WithContext(ctx).Model(&MigrationCheckpoint{}).
		Where("plan = ? AND last_key <= ?", plan, lastKey).
		Updates(updates)
	if result.Error != nil {
		return checkpointError(result.Error, plan, "save_progress")
	}
	return nil
}

// FinishRun stores the final counters and marks the run completed, or failed when runErr is set.
func (m *StateManager) FinishRun(ctx context.Context, plan string, counts RunCounts, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	updates := countUpdates(counts)
	updates["completed_at"] = &now
	updates["status"] = CheckpointCompleted
	updates["error_message"] = ""
	if runErr != nil {
		updates["status"] = CheckpointFailed
		updates["error_message"] = runErr.Error()
	}

	if err := m.db.WithContext(ctx).Model(&MigrationCheckpoint{}).Where("plan = ?", plan).Updates(updates).Error; err != nil {
		return checkpointError(err, plan, "finish_run")
	}
	return nil
}

// ListCheckpoints returns all checkpoints ordered by plan name.
func (m *StateManager) ListCheckpoints(ctx context.Context) ([]MigrationCheckpoint, error) {
	var checkpoints []MigrationCheckpoint
	if err := m.db.WithContext(ctx).Order("plan").Find(&checkpoints).Error; err != nil {
		return nil, checkpointError(err, "", "list_checkpoints")
	}
	return checkpoints, nil
}

// ResetCheckpoint removes a plan's checkpoint so the next run starts from the beginning.
func (m *StateManager) ResetCheckpoint(ctx context.Context, plan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.WithContext(ctx).Where("plan = ?", plan).Delete(&MigrationCheckpoint{}).Error; err != nil {
		return checkpointError(err, plan, "reset_checkpoint")
	}
	return nil
}

// RecordIssues upserts issue rows keyed by (plan, legacy id, kind).
func (m *StateManager) RecordIssues(ctx context.Context, issues []MigrationIssue) error {
	if len(issues) == 0 {
		return nil
	}
	err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plan"}, {Name: "legacy_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"lookup", "unresolved_id", "batch", "reason", "run_id", "updated_at"}),
		}).
		CreateInBatches(&issues, issueBatchSize).Error
	if err != nil {
		return checkpointError(err, issues[0].Plan, "record_issues")
	}
	return nil
}

// ResolveIssues deletes recorded issues for legacy IDs that have since reached the target.
func (m *StateManager) ResolveIssues(ctx context.Context, plan string, legacyIDs []int64) (int64, error) {
	if len(legacyIDs) == 0 {
		return 0, nil
	}
	result := m.db.WithContext(ctx).
		Where("plan = ? AND legacy_id IN ?", plan, legacyIDs).
		Delete(&MigrationIssue{})
	if result.Error != nil {
		return 0, checkpointError(result.Error, plan, "resolve_issues")
	}
	return result.RowsAffected, nil
}

// Issues returns recorded issues of a plan ordered by legacy ID, at most limit rows (0 = all).
func (m *StateManager) Issues(ctx context.Context, plan string, limit int) ([]MigrationIssue, error) {
	query := m.db.WithContext(ctx).Where("plan = ?", plan).Order("legacy_id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var issues []MigrationIssue
	if err := query.Find(&issues).Error; err != nil {
		return nil, checkpointError(err, plan, "list_issues")
	}
	return issues, nil
}

// IssueSummary counts recorded issues per plan and kind.
func (m *StateManager) IssueSummary(ctx context.Context) ([]IssueCount, error) {
	var counts []IssueCount
	err := m.db.WithContext(ctx).Model(&MigrationIssue{}).
		Select("plan, kind, COUNT(*) AS count").
		Group("plan, kind").
		Order("plan, kind").
		Scan(&counts).Error
	if err != nil {
		return nil, checkpointError(err, "", "issue_summary")
	}
	return counts, nil
}

func countUpdates(c RunCounts) map[string]any {
	return map[string]any{
		"processed": c.Processed,
		"inserted":  c.Inserted,
		"existing":  c.Existing,
		"skipped":   c.Skipped,
		"errored":   c.Errored,
	}
}

func checkpointError(err error, plan, operation string) error {
	return errors.New(fmt.Errorf("%s: %w", operation, err)).
		Component("datastore").
		Category(errors.CategoryCheckpoint).
		Context("plan", plan).
		Context("operation", operation).
		Build()
}
