// Package batch schedules transcription work in fixed-size rounds.
//
// A run scans the corpus, reconciles the ledger with what is on disk, and
// dispatches the remaining items in rounds of at most RoundSize concurrent
// calls. Each round is a barrier: the next round starts only after every item
// in the current one has finished, and the ledger is flushed in between.
// Per-item failures never abort a run; they are tagged with an outcome and
// retried on the next invocation.
package batch
