// Package preflight provides readiness checks for the directories and the
// transcription API that a batch run depends on.
//
// The run command calls RunAll before touching the ledger and refuses to
// start when any check fails. The status command shows the same results.
package preflight
