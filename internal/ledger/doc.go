// Package ledger persists the set of completed work item IDs that makes batch
// runs resumable.
//
// The ledger is a JSON document rewritten atomically on every persist. It is
// loaded once per run, appended after each successful item, and guarded by an
// advisory lock file so two runners never share it.
package ledger
