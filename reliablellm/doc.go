// Package reliablellm gives callers a single "ask a language model" call that
// survives any one backend being down, slow, or returning malformed output.
//
// # Architecture
//
// The package is built in layers:
//
//   - Backend: one interface per model service (Ollama, OpenAI via gollm,
//     Anthropic, and an offline lorem generator), each owning its transport
//   - Recovery engine: ParseJSON, Recover, RepairJSON, ExtractArray and
//     ParseWithRetry turn sloppy model text into validated values
//   - Retry policy: WithRetry wraps any operation with bounded attempts and
//     linear or exponential backoff
//   - Client: tries backends in priority order and returns the first success
//     or an *AggregatedFailure listing every backend and why it failed
//
// # Quick Start
//
// Using environment-based configuration:
//
//	client, err := reliablellm.NewClientFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	text, err := client.Complete(ctx, reliablellm.CompletionRequest{
//	    Prompt: "Explain quantum computing in one paragraph",
//	})
//
// Building a Client directly:
//
//	client := reliablellm.NewClient(
//	    reliablellm.WithBackends(
//	        reliablellm.NewOllamaBackend(),
//	        reliablellm.NewAnthropicBackend(os.Getenv("ANTHROPIC_API_KEY")),
//	    ),
//	    reliablellm.WithLogger(logger),
//	)
//
// # Structured Output
//
// CompleteAs decodes into a Go type, enforcing its `validate` tags:
//
//	type Recipe struct {
//	    Title string   `json:"title" validate:"required"`
//	    Steps []string `json:"steps" validate:"min=1"`
//	}
//	recipe, err := reliablellm.CompleteAs[Recipe](ctx, client, reliablellm.CompletionRequest{
//	    Prompt: "A recipe for pancakes",
//	})
//
// Every backend runs its output through Recover before validating, even when
// the service has a native JSON mode. Set StructuredRequest.CorrectionRetries
// (or WithCorrectionRetries) to let a backend re-prompt itself with the
// validation failure before the client moves on.
//
// # Errors
//
// A failed call returns either an *AggregatedFailure, whose AllUnavailable and
// AllInvalidOutput methods separate "everything is down" from "everything is
// up but the output is bad", or an *AbortError when the caller's context was
// cancelled. Invalid requests fail with a *ConfigurationError before any
// backend is contacted.
package reliablellm
