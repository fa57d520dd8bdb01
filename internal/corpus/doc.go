// Package corpus discovers media assets under a corpus root and decides which
// of them still need artifacts.
//
// The scanner walks directories depth-first in lexical order and derives the
// two sibling cue file paths for each asset. Filter drops assets the ledger
// already records as completed.
package corpus
