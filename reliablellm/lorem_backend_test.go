package reliablellm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loremAnswer struct {
	Text      string   `json:"text" validate:"required"`
	Sentences []string `json:"sentences" validate:"min=1"`
}

func TestLoremBackendComplete(t *testing.T) {
	b := NewLoremBackend()
	assert.Equal(t, "lorem", b.Name())
	assert.True(t, b.IsAvailable(context.Background()))

	text, err := b.Complete(context.Background(), CompletionRequest{Prompt: "anything"})
	require.NoError(t, err)
	assert.Len(t, strings.Split(text, "\n\n"), 3)

	text, err = b.Complete(context.Background(), CompletionRequest{Prompt: "anything", MaxTokens: Int(4)})
	require.NoError(t, err)
	assert.Len(t, strings.Fields(text), 4)
}

func TestLoremBackendStylesAreSloppy(t *testing.T) {
	for _, style := range []LoremStyle{LoremFenced, LoremSingleQuoted, LoremBareKeys} {
		raw := formatLorem(style, "Lorem ipsum dolor.", []string{"Sit amet.", "Consectetur."})
		_, err := decodeJSON(raw)
		assert.Error(t, err, "style %d should not be valid JSON as-is", style)

		v, err := ParseJSON(raw)
		require.NoError(t, err, "style %d: %s", style, raw)
		assert.Equal(t, map[string]any{
			"text":      "Lorem ipsum dolor.",
			"sentences": []any{"Sit amet.", "Consectetur."},
		}, v)
	}
}

func TestLoremBackendCompleteStructuredRotates(t *testing.T) {
	b := NewLoremBackend()
	req := StructuredRequest{
		CompletionRequest: CompletionRequest{Prompt: "q"},
		Schema:            NewStructSchema[loremAnswer](),
	}
	for i := 0; i < int(loremStyleCount)*2; i++ {
		v, err := b.CompleteStructured(context.Background(), req)
		require.NoError(t, err, "call %d", i)
		answer, ok := v.(loremAnswer)
		require.True(t, ok)
		assert.NotEmpty(t, answer.Text)
		assert.Len(t, answer.Sentences, 2)
	}
}

func TestLoremBackendPinnedStyleAndSchemaMismatch(t *testing.T) {
	b := NewLoremBackend(WithLoremStyle(LoremSingleQuoted))
	_, err := b.CompleteStructured(context.Background(), StructuredRequest{
		CompletionRequest: CompletionRequest{Prompt: "q"},
		Schema:            ObjectSchema("missing"),
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "missing", ve.Failures[0].Path)
}

func TestLoremBackendUnavailable(t *testing.T) {
	b := NewLoremBackend(WithLoremAvailable(false))
	assert.False(t, b.IsAvailable(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, NewLoremBackend().IsAvailable(ctx))
	_, err := NewLoremBackend().Complete(ctx, CompletionRequest{Prompt: "x"})
	var be *BackendError
	require.ErrorAs(t, err, &be)
}
