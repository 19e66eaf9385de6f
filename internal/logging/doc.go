// Package logging builds slog loggers with console and JSON handlers plus
// attr helpers shared across the daemon.
//
// The console handler renders "TIMESTAMP LEVEL component: message key=value"
// lines with the component attribute promoted into the prefix. Standardized
// field keys (batch_id, job_id, unit_id, lane, event_type) keep structured
// output greppable across components.
package logging
