// Package resources samples system telemetry and classifies load so the
// submission path can throttle itself.
//
// A single background goroutine collects CPU, memory, disk, and optional GPU
// readings on a fixed interval, keeps a bounded history, and derives one of
// four states: idle, normal, busy, critical. Classification rules are ordered
// and first-match-wins; critical always implies a 0.0 speed multiplier. All
// read accessors report the most recent completed sample and never block on
// the sampling loop.
package resources
