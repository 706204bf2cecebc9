package reliablellm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	loremgen "github.com/bozaro/golorem"
)

// LoremStyle selects how LoremBackend formats structured output.
type LoremStyle int

const (
	// LoremFenced wraps the object in a markdown fence with a trailing comma.
	LoremFenced LoremStyle = iota
	// LoremSingleQuoted uses single-quoted keys and values.
	LoremSingleQuoted
	// LoremBareKeys uses unquoted keys, a comment and a chatty preamble.
	LoremBareKeys
	// LoremClean emits valid JSON.
	LoremClean

	loremStyleCount
)

// LoremBackend generates placeholder text offline. Its structured output is
// an object {"text": ..., "sentences": [...]} written in deliberately sloppy
// JSON, rotating through the LoremStyle variants unless one is pinned.
type LoremBackend struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
	next      int
	pinned    *LoremStyle
	available bool
}

// LoremOption configures a LoremBackend.
type LoremOption func(*LoremBackend)

// WithLoremStyle always uses style s for structured output.
func WithLoremStyle(s LoremStyle) LoremOption {
	return func(b *LoremBackend) {
		b.pinned = &s
	}
}

// WithLoremAvailable sets what IsAvailable reports.
func WithLoremAvailable(available bool) LoremOption {
	return func(b *LoremBackend) {
		b.available = available
	}
}

// NewLoremBackend creates a lorem backend.
func NewLoremBackend(opts ...LoremOption) *LoremBackend {
	b := &LoremBackend{
		generator: loremgen.New(),
		available: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *LoremBackend) Name() string { return "lorem" }

func (b *LoremBackend) IsAvailable(ctx context.Context) bool {
	return b.available && ctx.Err() == nil
}

// Complete returns a few paragraphs. MaxTokens, when set, caps the output at
// roughly that many words.
func (b *LoremBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &BackendError{SDKError: SDKError{Message: "request cancelled", Cause: err}, Backend: b.Name()}
	}

	b.mu.Lock()
	paragraphs := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		paragraphs = append(paragraphs, b.generator.Paragraph(3, 5))
	}
	b.mu.Unlock()

	text := strings.Join(paragraphs, "\n\n")
	if req.MaxTokens != nil {
		words := strings.Fields(text)
		if len(words) > *req.MaxTokens {
			text = strings.Join(words[:*req.MaxTokens], " ")
		}
	}
	return text, nil
}

func (b *LoremBackend) CompleteStructured(ctx context.Context, req StructuredRequest) (any, error) {
	return runStructured(ctx, req, func(ctx context.Context, _ CompletionRequest) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", &BackendError{SDKError: SDKError{Message: "request cancelled", Cause: err}, Backend: b.Name()}
		}
		return b.sloppyJSON(), nil
	})
}

func (b *LoremBackend) sloppyJSON() string {
	b.mu.Lock()
	style := LoremStyle(b.next % int(loremStyleCount))
	b.next++
	if b.pinned != nil {
		style = *b.pinned
	}
	text := b.generator.Sentence(5, 15)
	sentences := []string{b.generator.Sentence(5, 15), b.generator.Sentence(5, 15)}
	b.mu.Unlock()

	return formatLorem(style, text, sentences)
}

func formatLorem(style LoremStyle, text string, sentences []string) string {
	switch style {
	case LoremFenced:
		return fmt.Sprintf("Here is the JSON you asked for:\n```json\n{\n  \"text\": %s,\n  \"sentences\": [%s],\n}\n```\nLet me know if you need anything else.",
			quoteJSON(text), joinQuoted(sentences, quoteJSON))
	case LoremSingleQuoted:
		return fmt.Sprintf("{'text': '%s', 'sentences': [%s]}",
			text, joinQuoted(sentences, func(s string) string { return "'" + s + "'" }))
	case LoremBareKeys:
		return fmt.Sprintf("Sure! {text: %s, sentences: [%s], // generated\n}",
			quoteJSON(text), joinQuoted(sentences, quoteJSON))
	default:
		raw, _ := json.Marshal(map[string]any{"text": text, "sentences": sentences})
		return string(raw)
	}
}

func quoteJSON(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func joinQuoted(items []string, quote func(string) string) string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = quote(s)
	}
	return strings.Join(out, ", ")
}
