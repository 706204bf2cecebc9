package reliablellm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SDKError is the base error type for all reliablellm errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// BackendUnavailableError reports a failed availability probe.
type BackendUnavailableError struct {
	SDKError
	Backend string
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("[%s] not available", e.Backend)
}

// BackendError represents a transport or call failure inside a backend:
// network errors, non-success statuses, timeouts, missing credentials.
type BackendError struct {
	SDKError
	Backend    string
	StatusCode int
	Retryable  bool
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] %s (status=%d)", e.Backend, e.Message, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Backend, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Backend, e.Message)
}

// RecoveryError is returned when no extraction or repair strategy produced
// parseable output. Prefix holds the start of the offending text.
type RecoveryError struct {
	SDKError
	Prefix string
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("%s; text starts with %q: %v", e.Message, e.Prefix, e.Cause)
}

// FieldFailure is a single schema violation.
type FieldFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (f FieldFailure) String() string {
	if f.Path == "" {
		return f.Reason
	}
	return f.Path + ": " + f.Reason
}

// ValidationError is returned when a parsed value does not satisfy a Schema.
type ValidationError struct {
	SDKError
	Failures []FieldFailure
}

func (e *ValidationError) Error() string {
	if len(e.Failures) == 0 {
		return "schema validation failed: " + e.Message
	}
	return "schema validation failed: " + e.Describe()
}

// Describe joins the field failures into a single line.
func (e *ValidationError) Describe() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}

// NewValidationError builds a ValidationError from field failures.
func NewValidationError(failures ...FieldFailure) *ValidationError {
	return &ValidationError{
		SDKError: SDKError{Message: "value does not match schema"},
		Failures: failures,
	}
}

// AttemptError records why one backend did not produce a result.
type AttemptError struct {
	Source  string
	Message string
	Err     error
}

func (a AttemptError) String() string {
	return a.Source + ": " + a.Message
}

// AggregatedFailure is returned when every configured backend has been tried
// without success. Attempts holds one entry per backend, in order.
type AggregatedFailure struct {
	Op       string
	Attempts []AttemptError
}

func (e *AggregatedFailure) Error() string {
	var sb strings.Builder
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: no backends configured", e.Op)
	}
	fmt.Fprintf(&sb, "%s: all backends failed:", e.Op)
	for _, a := range e.Attempts {
		sb.WriteString("\n  - ")
		sb.WriteString(a.String())
	}
	return sb.String()
}

// Unwrap exposes the per-backend errors to errors.Is and errors.As.
func (e *AggregatedFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// AllUnavailable reports whether no backend was reachable at all.
func (e *AggregatedFailure) AllUnavailable() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		var u *BackendUnavailableError
		if !errors.As(a.Err, &u) {
			return false
		}
	}
	return true
}

// AllInvalidOutput reports whether every backend answered but none produced
// output that survived recovery and validation.
func (e *AggregatedFailure) AllInvalidOutput() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if !isOutputError(a.Err) {
			return false
		}
	}
	return true
}

// RetryExhaustedError is returned when a correction loop gives up.
type RetryExhaustedError struct {
	SDKError
	Retries int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Retries, e.Cause)
}

// Non-backend errors.

type AbortError struct{ SDKError }
type ConfigurationError struct{ SDKError }

func newAbortError(err error) *AbortError {
	return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
}

// BackendErrorFromStatus maps an HTTP status code to a BackendError.
func BackendErrorFromStatus(backend string, statusCode int, message string) *BackendError {
	be := &BackendError{
		SDKError:   SDKError{Message: message},
		Backend:    backend,
		StatusCode: statusCode,
	}
	switch statusCode {
	case 400, 401, 403, 404, 413, 422:
		be.Retryable = false
	case 408, 429, 500, 502, 503, 504:
		be.Retryable = true
	default:
		// Unknown errors default to retryable.
		be.Retryable = true
	}
	return be
}

// IsRetryable returns true if repeating the same call might succeed.
// Output errors (recovery, validation) and configuration errors are not
// retryable; transport errors follow their status classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var agg *AggregatedFailure
	if errors.As(err, &agg) {
		for _, a := range agg.Attempts {
			if IsRetryable(a.Err) {
				return true
			}
		}
		return false
	}
	switch e := err.(type) {
	case *BackendError:
		return e.Retryable
	case *BackendUnavailableError:
		return true
	case *RecoveryError, *ValidationError, *RetryExhaustedError:
		return false
	case *ConfigurationError, *AbortError:
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	if isOutputError(err) {
		return false
	}
	// Unknown errors default to retryable.
	return true
}

func isOutputError(err error) bool {
	var re *RecoveryError
	var ve *ValidationError
	return errors.As(err, &re) || errors.As(err, &ve)
}
