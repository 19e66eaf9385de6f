// Package photos models the external photo catalog as a narrow capability
// interface so the orchestration core never couples to a concrete database.
package photos
