package batch

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the current persisted record format version. Older files
// are migrated on load.
const SchemaVersion = 1

// Status tracks a batch through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. No lifecycle operation is
// accepted from a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Record is the durable state of one batch. It is owned exclusively by the
// coordinator and rewritten to its snapshot file on every mutation.
type Record struct {
	SchemaVersion  int             `json:"schema_version"`
	BatchID        string          `json:"batch_id"`
	GroupID        string          `json:"group_id,omitempty"`
	UnitIDs        []string        `json:"unit_ids"`
	ProcessedIDs   []string        `json:"processed_ids"`
	FailedIDs      []string        `json:"failed_ids"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	PausedAt       *time.Time      `json:"paused_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	TotalUnits     int             `json:"total_units"`
	ProcessedCount int             `json:"processed_count"`
	FailedCount    int             `json:"failed_count"`
	Config         json.RawMessage `json:"config,omitempty"`
	TaskHandles    []string        `json:"task_handles"`
}

// Recorded reports whether the unit already appears in the processed or
// failed set.
func (r *Record) Recorded(unitID string) bool {
	return contains(r.ProcessedIDs, unitID) || contains(r.FailedIDs, unitID)
}

// Remaining returns the units not yet recorded as processed or failed, in
// original submission order.
func (r *Record) Remaining() []string {
	var remaining []string
	for _, unitID := range r.UnitIDs {
		if !r.Recorded(unitID) {
			remaining = append(remaining, unitID)
		}
	}
	return remaining
}

// ProgressPercent reports completion as a percentage of total units.
func (r *Record) ProgressPercent() float64 {
	if r.TotalUnits == 0 {
		return 0
	}
	done := len(r.ProcessedIDs) + len(r.FailedIDs)
	return float64(done) / float64(r.TotalUnits) * 100
}

// refreshCounts keeps the persisted counters in lockstep with the id sets.
func (r *Record) refreshCounts() {
	r.TotalUnits = len(r.UnitIDs)
	r.ProcessedCount = len(r.ProcessedIDs)
	r.FailedCount = len(r.FailedIDs)
}

func (r *Record) clone() *Record {
	cp := *r
	cp.UnitIDs = append([]string(nil), r.UnitIDs...)
	cp.ProcessedIDs = append([]string(nil), r.ProcessedIDs...)
	cp.FailedIDs = append([]string(nil), r.FailedIDs...)
	cp.TaskHandles = append([]string(nil), r.TaskHandles...)
	cp.Config = append(json.RawMessage(nil), r.Config...)
	return &cp
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
