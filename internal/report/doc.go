// Package report accumulates per-run counters and turns them into the
// end-of-run summary, cost estimates, and ETA projections.
package report
