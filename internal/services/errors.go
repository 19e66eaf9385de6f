package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks lookups for unknown batch, job, or unit identifiers.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks lifecycle operations rejected by the current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrBackend marks execution backend communication failures. Submissions
	// wrapped with it are retryable.
	ErrBackend = errors.New("backend failure")
	// ErrPersistence marks durable state read/write failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrValidation marks rejected caller input.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks failures that are expected to succeed on retry.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the caller may reasonably retry the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackend) || errors.Is(err, ErrTransient)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
