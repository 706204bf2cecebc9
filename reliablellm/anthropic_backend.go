package reliablellm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// jsonPrefill is sent as the start of the assistant turn so the model
// continues an object instead of writing a preamble.
const jsonPrefill = "{"

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	client  *anthropic.Client
	model   string
	baseURL string
	timeout time.Duration
	info    BackendInfo
}

// AnthropicOption configures an AnthropicBackend.
type AnthropicOption func(*AnthropicBackend)

// WithAnthropicModel sets the model. Empty keeps the catalog default.
func WithAnthropicModel(model string) AnthropicOption {
	return func(b *AnthropicBackend) {
		if model != "" {
			b.model = model
		}
	}
}

// WithAnthropicBaseURL points the client at another endpoint.
func WithAnthropicBaseURL(u string) AnthropicOption {
	return func(b *AnthropicBackend) {
		b.baseURL = u
	}
}

// WithAnthropicTimeout bounds a single request.
func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(b *AnthropicBackend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewAnthropicBackend creates an Anthropic backend. Without an API key the
// backend reports itself unavailable.
func NewAnthropicBackend(apiKey string, opts ...AnthropicOption) *AnthropicBackend {
	info, _ := LookupBackendInfo("anthropic")
	b := &AnthropicBackend{
		model:   info.DefaultModel,
		timeout: 120 * time.Second,
		info:    info,
	}
	for _, opt := range opts {
		opt(b)
	}
	if apiKey == "" {
		return b
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(b.timeout),
	}
	if b.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(b.baseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	b.client = &client
	return b
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

// IsAvailable reports whether an API key was configured.
func (b *AnthropicBackend) IsAvailable(ctx context.Context) bool {
	return b.client != nil
}

func (b *AnthropicBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return b.generate(ctx, req, req.TemperatureOr(b.info.TextTemperature), "")
}

// CompleteStructured prefills the assistant turn with "{" when the model has
// no JSON mode; the prefix is restored before recovery.
func (b *AnthropicBackend) CompleteStructured(ctx context.Context, req StructuredRequest) (any, error) {
	prefill := ""
	if !b.info.NativeJSON {
		prefill = jsonPrefill
	}
	return runStructured(ctx, req, func(ctx context.Context, r CompletionRequest) (string, error) {
		return b.generate(ctx, r, r.TemperatureOr(b.info.StructuredTemperature), prefill)
	})
}

func (b *AnthropicBackend) generate(ctx context.Context, req CompletionRequest, temperature float64, prefill string) (string, error) {
	if b.client == nil {
		return "", &BackendError{SDKError: SDKError{Message: "not configured (missing API key)"}, Backend: b.Name()}
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
	}
	if prefill != "" {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(prefill)))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		Messages:    messages,
		MaxTokens:   int64(req.MaxTokensOr(b.info.MaxTokens)),
		Temperature: anthropic.Float(temperature),
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.SystemPrompt},
		}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", b.translateError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return prefill + sb.String(), nil
}

func (b *AnthropicBackend) translateError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		be := BackendErrorFromStatus(b.Name(), apiErr.StatusCode, "anthropic error")
		be.Cause = err
		return be
	}
	return &BackendError{
		SDKError:  SDKError{Message: "request failed", Cause: err},
		Backend:   b.Name(),
		Retryable: true,
	}
}
