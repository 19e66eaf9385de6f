// Package services defines the sentinel error taxonomy shared by the
// orchestration components.
//
// Mutating operations return errors tagged with one of the exported sentinels
// (ErrNotFound, ErrInvalidState, ErrBackend, ErrPersistence, ErrValidation,
// ErrTransient) so callers can branch with errors.Is instead of string
// matching. Read-only queries never return these for missing records; they
// report absence through an ok flag.
package services
