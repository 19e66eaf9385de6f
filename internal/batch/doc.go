// Package batch owns the batch lifecycle state machine and its durable
// snapshots. Each batch persists as one JSON file that is atomically
// rewritten on every mutation, which keeps crash recovery a matter of
// re-reading the directory.
package batch
