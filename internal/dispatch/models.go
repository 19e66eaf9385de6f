package dispatch

import (
	"time"

	"darkroom/internal/backend"
)

// Status tracks a job through its dispatcher-observed lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs are never
// mutated again; cleanup is the only way they leave the store.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Lane names a priority consumption lane. Lane assignment is derived from the
// job's priority at submission time and does not change afterwards.
type Lane string

const (
	LaneRush     Lane = "rush"
	LaneStandard Lane = "standard"
	LaneBulk     Lane = "bulk"
)

// KnownLane reports whether name is a valid lane identifier.
func KnownLane(name string) bool {
	switch Lane(name) {
	case LaneRush, LaneStandard, LaneBulk:
		return true
	default:
		return false
	}
}

// Job is one unit submission tracked by the dispatcher. The ID doubles as the
// caller-facing handle; BackendHandle is the execution pool's own reference and
// stays empty while a job is held in a paused lane.
type Job struct {
	ID            string
	UnitID        string
	GroupID       string
	Priority      int
	Lane          Lane
	Status        Status
	RetryCount    int
	ConfigJSON    string
	BackendHandle string
	OriginJobID   string
	ErrorMessage  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Held reports whether the job is waiting locally for its lane to resume.
func (j *Job) Held() bool {
	return j.Status == StatusPending && j.BackendHandle == ""
}

func statusFromTaskState(state backend.TaskState) (Status, bool) {
	switch state {
	case backend.StatePending:
		return StatusPending, true
	case backend.StateRunning:
		return StatusProcessing, true
	case backend.StateCompleted:
		return StatusCompleted, true
	case backend.StateFailed:
		return StatusFailed, true
	case backend.StateCancelled:
		return StatusCancelled, true
	default:
		return StatusPending, false
	}
}
