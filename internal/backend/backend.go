package backend

import "context"

// TaskState is the execution backend's view of a submitted unit.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateCancelled TaskState = "cancelled"
	StateUnknown   TaskState = "unknown"
)

// Terminal reports whether a state is final.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Backend is the narrow capability interface onto the external worker pool.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Submit hands a unit to the pool at the given priority and returns an
	// opaque task handle.
	Submit(ctx context.Context, unitID string, priority int) (string, error)
	// Cancel revokes a task best-effort. It returns false when the task was
	// already past the cancellable window.
	Cancel(ctx context.Context, handle string) (bool, error)
	// Status reports the task's current state. Unknown handles yield
	// StateUnknown without error.
	Status(ctx context.Context, handle string) (TaskState, error)
}
