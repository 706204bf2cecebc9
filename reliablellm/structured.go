package reliablellm

import (
	"context"
	"strings"
)

const jsonOnlyInstruction = "IMPORTANT: Return ONLY valid JSON matching the requested format. " +
	"No markdown code blocks, no explanation, no preamble - just the JSON object."

// generateFunc performs one raw generation against a backend.
type generateFunc func(ctx context.Context, req CompletionRequest) (string, error)

// structuredPrompt appends the JSON-only instruction to the prompt and, when
// the schema can describe itself, puts that description in the system prompt.
func structuredPrompt(req StructuredRequest) CompletionRequest {
	out := req.CompletionRequest
	out.Prompt = req.Prompt + "\n\n" + jsonOnlyInstruction

	if d, ok := req.Schema.(SchemaDescriber); ok {
		if desc := strings.TrimSpace(d.Describe()); desc != "" {
			schemaText := "You must respond with valid JSON matching this schema:\n```json\n" + desc + "\n```"
			if out.SystemPrompt != "" {
				out.SystemPrompt += "\n\n" + schemaText
			} else {
				out.SystemPrompt = schemaText
			}
		}
	}
	return out
}

// runStructured generates text, then recovers and validates it. Recovery runs
// even for backends with a native JSON mode. With CorrectionRetries set, each
// failure re-prompts the same backend with its previous answer and the
// reason it was rejected.
func runStructured(ctx context.Context, req StructuredRequest, generate generateFunc) (any, error) {
	prompt := structuredPrompt(req)
	text, err := generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	retries := req.CorrectionRetriesOr(0)
	if retries <= 0 {
		return Recover(text, req.Schema)
	}

	previous := text
	correct := func(ctx context.Context, feedback string) (string, error) {
		next := prompt
		next.Prompt = prompt.Prompt + "\n\nPrevious response:\n" + previous + "\n\n" + feedback
		out, err := generate(ctx, next)
		if err != nil {
			return "", err
		}
		previous = out
		return out, nil
	}
	return ParseWithRetry(ctx, text, req.Schema, correct, retries)
}
