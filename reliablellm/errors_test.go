package reliablellm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBackendErrorFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{413, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{599, true},
	}

	for _, tt := range tests {
		err := BackendErrorFromStatus("openai", tt.status, "test error")
		if err.StatusCode != tt.status {
			t.Errorf("status %d: got StatusCode %d", tt.status, err.StatusCode)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"backend retryable", &BackendError{Retryable: true}, true},
		{"backend permanent", &BackendError{Retryable: false}, false},
		{"unavailable", &BackendUnavailableError{Backend: "ollama"}, true},
		{"recovery", &RecoveryError{}, false},
		{"validation", NewValidationError(FieldFailure{Path: "name", Reason: "required"}), false},
		{"retry exhausted", &RetryExhaustedError{Retries: 2}, false},
		{"config error", &ConfigurationError{}, false},
		{"abort", newAbortError(context.Canceled), false},
		{"context canceled", context.Canceled, false},
		{"wrapped backend", fmt.Errorf("outer: %w", &BackendError{Retryable: false}), false},
		{"wrapped validation", fmt.Errorf("outer: %w", NewValidationError()), false},
		{"unknown error", errors.New("unknown"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRetryable(tt.err)
			if got != tt.retryable {
				t.Errorf("IsRetryable(%T) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &SDKError{Message: "wrapper", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected SDKError to unwrap to its cause")
	}

	be := &BackendError{SDKError: SDKError{Message: "request failed", Cause: cause}, Backend: "ollama"}
	if !errors.Is(be, cause) {
		t.Error("expected BackendError to unwrap to its cause")
	}
}

func TestBackendErrorMessage(t *testing.T) {
	err := BackendErrorFromStatus("openai", 429, "rate limit exceeded")
	msg := err.Error()
	if !strings.Contains(msg, "openai") || !strings.Contains(msg, "rate limit") || !strings.Contains(msg, "429") {
		t.Errorf("error message missing expected content: %q", msg)
	}
}

func TestAggregatedFailureMessage(t *testing.T) {
	err := &AggregatedFailure{
		Op: "complete",
		Attempts: []AttemptError{
			{Source: "ollama", Message: "not available", Err: &BackendUnavailableError{Backend: "ollama"}},
			{Source: "openai", Message: "boom", Err: errors.New("boom")},
		},
	}
	want := "complete: all backends failed:\n  - ollama: not available\n  - openai: boom"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if err.AllUnavailable() {
		t.Error("expected AllUnavailable = false")
	}

	empty := &AggregatedFailure{Op: "complete"}
	if empty.Error() != "complete: no backends configured" {
		t.Errorf("unexpected empty message %q", empty.Error())
	}
	if empty.AllUnavailable() || empty.AllInvalidOutput() {
		t.Error("empty failure must not classify as all-unavailable or all-invalid")
	}
}

func TestAggregatedFailureUnwrap(t *testing.T) {
	ve := NewValidationError(FieldFailure{Path: "age", Reason: "required"})
	err := &AggregatedFailure{
		Op: "complete_structured",
		Attempts: []AttemptError{
			{Source: "ollama", Message: ve.Error(), Err: ve},
			{Source: "lorem", Message: "bad", Err: &RecoveryError{Prefix: "nope"}},
		},
	}

	var got *ValidationError
	if !errors.As(err, &got) || got != ve {
		t.Error("expected errors.As to reach the validation error")
	}
	if !err.AllInvalidOutput() {
		t.Error("expected AllInvalidOutput = true")
	}
	if IsRetryable(err) {
		t.Error("aggregate of output errors must not be retryable")
	}
}

func TestAggregatedFailureAllUnavailable(t *testing.T) {
	err := &AggregatedFailure{
		Op: "complete",
		Attempts: []AttemptError{
			{Source: "ollama", Message: "not available", Err: &BackendUnavailableError{Backend: "ollama"}},
			{Source: "openai", Message: "not available", Err: &BackendUnavailableError{Backend: "openai"}},
		},
	}
	if !err.AllUnavailable() {
		t.Error("expected AllUnavailable = true")
	}
	if !IsRetryable(err) {
		t.Error("expected unavailable backends to be retryable later")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError(
		FieldFailure{Path: "name", Reason: "required"},
		FieldFailure{Path: "age", Reason: "must be >= 0"},
	)
	want := "schema validation failed: name: required, age: must be >= 0"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestRetryExhaustedErrorMessage(t *testing.T) {
	cause := NewValidationError(FieldFailure{Path: "name", Reason: "required"})
	err := &RetryExhaustedError{SDKError: SDKError{Message: "still invalid", Cause: cause}, Retries: 2}
	if !strings.HasPrefix(err.Error(), "failed after 2 retries") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected RetryExhaustedError to unwrap to the last failure")
	}
}
