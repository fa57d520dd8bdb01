// Package history records completed batch runs in a SQLite database so the
// CLI can show past runs and items that keep failing.
//
// The schema lives in embedded migrations applied on Open.
package history
