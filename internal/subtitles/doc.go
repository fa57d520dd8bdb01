// Package subtitles renders transcript segments as SRT cue files and parses
// them back for structural verification.
package subtitles
