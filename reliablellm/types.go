package reliablellm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defaults applied by backends when a request leaves a parameter unset.
const (
	DefaultTextTemperature       = 0.7
	DefaultStructuredTemperature = 0.3
	DefaultMaxTokens             = 2000
)

// CompletionRequest is a single free-text completion request. It is passed by
// value and never mutated by the client or the backends.
type CompletionRequest struct {
	Prompt        string   `json:"prompt" validate:"required"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens     *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// StructuredRequest is a CompletionRequest whose output must satisfy Schema.
type StructuredRequest struct {
	CompletionRequest

	// Schema validates the recovered value. Nil accepts any parseable value.
	Schema Schema `json:"-"`

	// CorrectionRetries is how many times a backend may re-prompt itself with
	// the validation failure before giving up. Zero disables the loop; nil
	// leaves the choice to the client.
	CorrectionRetries *int `json:"correction_retries,omitempty" validate:"omitempty,gte=0"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks parameter ranges.
func (r CompletionRequest) Validate() error {
	return validateRequest(r)
}

// Validate checks parameter ranges, including the embedded CompletionRequest.
func (r StructuredRequest) Validate() error {
	return validateRequest(r)
}

func validateRequest(r any) error {
	err := requestValidator.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ConfigurationError{SDKError: SDKError{Message: "invalid request", Cause: err}}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), describeTag(fe)))
	}
	return &ConfigurationError{SDKError: SDKError{
		Message: "invalid request: " + strings.Join(msgs, ", "),
		Cause:   err,
	}}
}

// WithTemperature returns a copy of r with the temperature set.
func (r CompletionRequest) WithTemperature(t float64) CompletionRequest {
	r.Temperature = &t
	return r
}

// WithMaxTokens returns a copy of r with the token limit set.
func (r CompletionRequest) WithMaxTokens(n int) CompletionRequest {
	r.MaxTokens = &n
	return r
}

// TemperatureOr returns the request temperature or def when unset.
func (r CompletionRequest) TemperatureOr(def float64) float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return def
}

// MaxTokensOr returns the request token limit or def when unset.
func (r CompletionRequest) MaxTokensOr(def int) int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return def
}

// CorrectionRetriesOr returns the request correction budget or def when unset.
func (r StructuredRequest) CorrectionRetriesOr(def int) int {
	if r.CorrectionRetries != nil {
		return *r.CorrectionRetries
	}
	return def
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
