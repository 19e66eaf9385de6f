// Package main hosts the darkroom CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the orchestration daemon: batch lifecycle operations, single
// job submission, lane valves, priority maintenance, resource inspection, and
// configuration scaffolding. Configuration and daemon address resolution live
// in commandContext so subcommands stay small.
package main
