// Command cuebatch transcribes a directory tree of videos into paired
// subtitle files, resuming from a progress ledger on every run.
//
// Commands:
//
//	cuebatch run       process pending items (--dry-run lists them)
//	cuebatch status    ledger, lock, last run, and preflight checks
//	cuebatch reset     delete the progress ledger
//	cuebatch history   recent runs from the history database
//	cuebatch config    init or validate the configuration file
package main
