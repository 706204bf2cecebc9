package reliablellm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RecoveryPrefixLen bounds the amount of original text carried by a
// RecoveryError.
const RecoveryPrefixLen = 200

// DefaultArrayKey is the field ExtractArray looks in when the parsed value is
// an object.
const DefaultArrayKey = "items"

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*?)```")

// candidate is one strategy's view of the text.
type candidate struct {
	strategy string
	text     string
}

// candidates lists the texts to try, in order: the text itself, the first
// fenced code block, the span between the outermost braces, and repaired
// versions of the brace span and of the whole text.
func candidates(text string) []candidate {
	out := []candidate{{strategy: "direct", text: text}}
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		out = append(out, candidate{strategy: "fenced", text: strings.TrimSpace(m[1])})
	}
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first >= 0 && last > first {
		span := text[first : last+1]
		out = append(out,
			candidate{strategy: "boundary", text: span},
			candidate{strategy: "repair", text: RepairJSON(span)},
		)
	}
	out = append(out, candidate{strategy: "repair_full", text: RepairJSON(text)})
	return out
}

// ParseJSON extracts a JSON value from model output, trying progressively
// more aggressive strategies. It fails with a *RecoveryError only when none
// of them yields parseable JSON.
func ParseJSON(text string) (any, error) {
	return Recover(text, nil)
}

// Recover is ParseJSON with a schema: a strategy only succeeds when its
// output parses and, if schema is non-nil, validates. The validated value is
// returned. When some strategy parsed but none validated, the last
// *ValidationError is returned instead of a *RecoveryError.
func Recover(text string, schema Schema) (any, error) {
	var lastParseErr, lastValidationErr error
	seen := make(map[string]bool)
	for _, c := range candidates(text) {
		if seen[c.text] {
			continue
		}
		seen[c.text] = true

		v, err := decodeJSON(c.text)
		if err != nil {
			lastParseErr = err
			continue
		}
		if schema == nil {
			return v, nil
		}
		validated, err := schema.Validate(v)
		if err != nil {
			lastValidationErr = asValidationError(err)
			continue
		}
		return validated, nil
	}
	if lastValidationErr != nil {
		return nil, lastValidationErr
	}
	return nil, &RecoveryError{
		SDKError: SDKError{Message: "failed to parse JSON after all strategies", Cause: lastParseErr},
		Prefix:   truncate(text, RecoveryPrefixLen),
	}
}

// ExtractArray returns the array held in text. It accepts a bare array, an
// object whose key field is an array, or any bracketed span in otherwise
// unparseable text. It never fails; missing arrays come back empty.
func ExtractArray(text, key string) []any {
	if key == "" {
		key = DefaultArrayKey
	}
	if v, err := ParseJSON(text); err == nil {
		switch t := v.(type) {
		case []any:
			return t
		case map[string]any:
			if arr, ok := t[key].([]any); ok {
				return arr
			}
		}
	}
	first := strings.IndexByte(text, '[')
	last := strings.LastIndexByte(text, ']')
	if first >= 0 && last > first {
		span := text[first : last+1]
		for _, s := range []string{span, RepairJSON(span)} {
			if v, err := decodeJSON(s); err == nil {
				if arr, ok := v.([]any); ok {
					return arr
				}
			}
		}
	}
	return []any{}
}

// CorrectionFunc re-prompts a backend with feedback about its previous
// output and returns the new raw text.
type CorrectionFunc func(ctx context.Context, feedback string) (string, error)

// ParseWithRetry recovers and validates text, asking correct for a new answer
// after each failure. correct is called at most maxRetries times. If the text
// is still invalid afterwards a *RetryExhaustedError wrapping the last
// failure is returned. Errors from correct itself are returned unchanged.
func ParseWithRetry(ctx context.Context, text string, schema Schema, correct CorrectionFunc, maxRetries int) (any, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	current := text
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		v, err := Recover(current, schema)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == maxRetries || correct == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, newAbortError(err)
		}
		current, err = correct(ctx, CorrectionFeedback(lastErr))
		if err != nil {
			return nil, err
		}
	}
	return nil, &RetryExhaustedError{
		SDKError: SDKError{Message: "structured output still invalid", Cause: lastErr},
		Retries:  maxRetries,
	}
}

// CorrectionFeedback builds the message sent back to a backend after its
// output failed recovery or validation.
func CorrectionFeedback(err error) string {
	var reason string
	var ve *ValidationError
	if errors.As(err, &ve) {
		reason = "schema validation failed: " + ve.Describe()
		if len(ve.Failures) == 0 {
			reason = "schema validation failed: " + ve.Message
		}
	} else {
		var re *RecoveryError
		if errors.As(err, &re) && re.Cause != nil {
			reason = "parse failed: " + re.Cause.Error()
		} else {
			reason = "parse failed: " + err.Error()
		}
	}
	return fmt.Sprintf("Previous response was invalid.\n\nError: %s\n\n"+
		"Please return ONLY valid JSON matching the requested format. "+
		"No markdown, no explanation, just the JSON object.", reason)
}

func decodeJSON(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func asValidationError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return &ValidationError{SDKError: SDKError{Message: err.Error(), Cause: err}}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
