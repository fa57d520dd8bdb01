// Package config loads, normalizes, and validates cuebatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and CUEBATCH_CORPUS_DIR. The Config type centralizes every
// knob the CLI needs, so the corpus root, ledger, and transcription service
// settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical suffixes, and clear validation errors.
package config
