package backend

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process backend used for tests and local runs without a
// worker pool attached. Tasks stay pending until driven to a terminal state
// through Complete or Fail.
type Memory struct {
	mu        sync.Mutex
	tasks     map[string]TaskState
	units     map[string]string
	submitErr error
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[string]TaskState),
		units: make(map[string]string),
	}
}

// SetSubmitError injects a submission failure for tests. A nil error restores
// normal behavior.
func (m *Memory) SetSubmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

// Submit implements Backend.
func (m *Memory) Submit(_ context.Context, unitID string, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return "", m.submitErr
	}
	handle := uuid.NewString()
	m.tasks[handle] = StatePending
	m.units[handle] = unitID
	return handle, nil
}

// Cancel implements Backend. Terminal tasks are past the cancellable window.
func (m *Memory) Cancel(_ context.Context, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.tasks[handle]
	if !ok || state.Terminal() {
		return false, nil
	}
	m.tasks[handle] = StateCancelled
	return true, nil
}

// Status implements Backend.
func (m *Memory) Status(_ context.Context, handle string) (TaskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.tasks[handle]
	if !ok {
		return StateUnknown, nil
	}
	return state, nil
}

// Run marks a pending task as running.
func (m *Memory) Run(handle string) { m.set(handle, StateRunning) }

// Complete drives a task to the completed state.
func (m *Memory) Complete(handle string) { m.set(handle, StateCompleted) }

// Fail drives a task to the failed state.
func (m *Memory) Fail(handle string) { m.set(handle, StateFailed) }

// UnitFor returns the unit id a handle was submitted for.
func (m *Memory) UnitFor(handle string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[handle]
	return unit, ok
}

// TaskCount returns the number of tasks ever submitted.
func (m *Memory) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *Memory) set(handle string, state TaskState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[handle]; ok {
		m.tasks[handle] = state
	}
}
