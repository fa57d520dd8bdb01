package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrTooLarge      = errors.New("too_large")
	ErrEmptyResult   = errors.New("empty result")
)

// Outcome tags recorded for each processed work item.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeSkippedTooLarge    Outcome = "skipped_too_large"
	OutcomeSkippedEmptyResult Outcome = "skipped_empty_result"
	OutcomeFailed             Outcome = "failed"
)

// Skipped reports whether the outcome counts toward the skipped total. Only
// the size gate skips; an empty result is tagged separately but counts as a
// failure.
func (o Outcome) Skipped() bool {
	return o == OutcomeSkippedTooLarge
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later outcome classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// OutcomeFor maps an item error to the outcome the scheduler should record.
// A nil error is a success.
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrTooLarge):
		return OutcomeSkippedTooLarge
	case errors.Is(err, ErrEmptyResult):
		return OutcomeSkippedEmptyResult
	default:
		return OutcomeFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
