// Package services defines shared utilities consumed by the batch scheduler
// and the external transcription integration.
//
// Key responsibilities:
//   - Context helpers that stamp work item IDs, round numbers, run IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and OutcomeFor which
//     translates an item failure into the outcome tag recorded for the run
//     (success, skipped_too_large, skipped_empty_result, failed).
//
// Use these helpers when wiring new pipeline steps so error classification and
// observability stay uniform.
package services
