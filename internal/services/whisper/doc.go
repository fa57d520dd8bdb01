// Package whisper talks to OpenAI-compatible audio transcription and
// translation endpoints.
//
// Each call uploads the asset as multipart form data, requests verbose_json
// with segment timestamps, and returns ordered segments. Files above the
// configured ceiling are rejected before any network traffic. There is no
// automatic retry; callers decide whether to try again on a later run.
package whisper
