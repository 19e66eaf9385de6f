// Package backend defines the capability interface onto the external
// execution pool and its adapters.
//
// The orchestration core only ever sees {Submit, Cancel, Status}. The NATS
// adapter speaks request/reply to a real distributed worker pool; the Memory
// backend keeps tasks in-process for tests and local runs.
package backend
