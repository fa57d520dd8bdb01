package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cuebatch/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcribe", "upload", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcribe", "upload", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestOutcomeForMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Outcome
	}{
		{"nil", nil, services.OutcomeSuccess},
		{"too large", services.Wrap(services.ErrTooLarge, "transcribe", "size check", "26MB", nil), services.OutcomeSkippedTooLarge},
		{"empty", services.Wrap(services.ErrEmptyResult, "translate", "decode", "no segments", nil), services.OutcomeSkippedEmptyResult},
		{"timeout", services.Wrap(services.ErrTimeout, "transcribe", "request", "", context.DeadlineExceeded), services.OutcomeFailed},
		{"plain", fmt.Errorf("write artifact: %w", errors.New("disk full")), services.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.OutcomeFor(tt.err); got != tt.want {
				t.Fatalf("OutcomeFor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOutcomeSkipped(t *testing.T) {
	if !services.OutcomeSkippedTooLarge.Skipped() {
		t.Fatal("expected too-large outcome to report skipped")
	}
	for _, o := range []services.Outcome{services.OutcomeSuccess, services.OutcomeFailed, services.OutcomeSkippedEmptyResult} {
		if o.Skipped() {
			t.Fatalf("%s should not count as skipped", o)
		}
	}
}
