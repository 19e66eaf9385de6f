// Package priority computes bounded submission priorities and guards against
// starvation.
//
// Priorities combine four weighted signals: a quality-score bucket, a linear
// age boost, a flat user-request bonus, and a shoot-context score. Every
// result is clamped to [1,10]. The calculator also rebalances pending units,
// boosts whole groups, and detects units whose wait time exceeds the
// starvation threshold.
package priority
