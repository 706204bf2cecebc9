package reliablellm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teilomillet/gollm"
)

// defaultGollmInstances is how many gollm.LLM instances a backend keeps, and
// so how many calls it runs at once.
const defaultGollmInstances = 4

// GollmBackend wraps gollm.LLM instances and implements Backend. It is used
// for the hosted OpenAI-compatible providers gollm supports.
type GollmBackend struct {
	provider string
	model    string
	timeout  time.Duration
	info     BackendInfo

	// gollm options are per-instance state, so each call checks out an
	// instance for its whole duration. Nil when unconfigured.
	instances chan gollm.LLM
}

// GollmBackendOption configures a GollmBackend.
type GollmBackendOption func(*gollmBackendConfig)

type gollmBackendConfig struct {
	model     string
	timeout   time.Duration
	instances int
	extraOpts []gollm.ConfigOption
}

// WithModel sets the model for the backend.
func WithModel(model string) GollmBackendOption {
	return func(c *gollmBackendConfig) {
		c.model = model
	}
}

// WithTimeout bounds a single generation.
func WithTimeout(d time.Duration) GollmBackendOption {
	return func(c *gollmBackendConfig) {
		c.timeout = d
	}
}

// WithConcurrency sets how many calls may run at once. Each one gets its own
// gollm.LLM instance.
func WithConcurrency(n int) GollmBackendOption {
	return func(c *gollmBackendConfig) {
		if n > 0 {
			c.instances = n
		}
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmBackendOption {
	return func(c *gollmBackendConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmBackend creates a backend for the given gollm provider. Without an
// API key the backend is created unconfigured and reports itself unavailable.
func NewGollmBackend(provider string, apiKey string, opts ...GollmBackendOption) (*GollmBackend, error) {
	info, _ := LookupBackendInfo(provider)
	cfg := &gollmBackendConfig{
		model:     info.DefaultModel,
		timeout:   120 * time.Second,
		instances: defaultGollmInstances,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.model == "" {
		cfg.model = info.DefaultModel
	}

	b := &GollmBackend{
		provider: provider,
		model:    cfg.model,
		timeout:  cfg.timeout,
		info:     info,
	}
	if apiKey == "" {
		return b, nil
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(cfg.model),
		gollm.SetAPIKey(apiKey),
		gollm.SetMaxTokens(info.MaxTokens),
		gollm.SetTemperature(info.TextTemperature),
		gollm.SetMaxRetries(0), // Fallback to the next backend instead.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	b.instances = make(chan gollm.LLM, cfg.instances)
	for range cfg.instances {
		llm, err := gollm.NewLLM(gollmOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
		}
		b.instances <- llm
	}
	return b, nil
}

// NewGollmBackendFromLLM wraps existing gollm.LLM instances. Calls run one at
// a time per instance.
func NewGollmBackendFromLLM(provider string, llms ...gollm.LLM) *GollmBackend {
	info, _ := LookupBackendInfo(provider)
	b := &GollmBackend{
		provider: provider,
		model:    info.DefaultModel,
		timeout:  120 * time.Second,
		info:     info,
	}
	for _, llm := range llms {
		if llm == nil {
			continue
		}
		if b.instances == nil {
			b.instances = make(chan gollm.LLM, len(llms))
		}
		b.instances <- llm
	}
	return b
}

// Name returns the provider identifier.
func (b *GollmBackend) Name() string {
	return b.provider
}

// IsAvailable reports whether the backend was configured with credentials.
// Hosted providers are not probed over the network.
func (b *GollmBackend) IsAvailable(ctx context.Context) bool {
	return b.instances != nil
}

func (b *GollmBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return b.generate(ctx, req, req.TemperatureOr(b.info.TextTemperature))
}

func (b *GollmBackend) CompleteStructured(ctx context.Context, req StructuredRequest) (any, error) {
	return runStructured(ctx, req, func(ctx context.Context, r CompletionRequest) (string, error) {
		return b.generate(ctx, r, r.TemperatureOr(b.info.StructuredTemperature))
	})
}

func (b *GollmBackend) generate(ctx context.Context, req CompletionRequest, temperature float64) (string, error) {
	if b.instances == nil {
		return "", &BackendError{SDKError: SDKError{Message: "not configured (missing API key)"}, Backend: b.provider}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var llm gollm.LLM
	select {
	case llm = <-b.instances:
	case <-ctx.Done():
		return "", &BackendError{
			SDKError:  SDKError{Message: "no free client", Cause: ctx.Err()},
			Backend:   b.provider,
			Retryable: true,
		}
	}
	defer func() { b.instances <- llm }()

	// Options persist on the LLM between calls, so every per-request option
	// is set each time, including empty ones.
	maxTokens := req.MaxTokensOr(b.info.MaxTokens)
	llm.SetOption("temperature", temperature)
	llm.SetOption("max_tokens", maxTokens)
	llm.SetOption("stop", req.StopSequences)
	llm.SetOption("system_prompt", strings.TrimSpace(req.SystemPrompt))

	text, err := llm.Generate(ctx, b.buildPrompt(req, maxTokens))
	if err != nil {
		return "", b.translateError(err)
	}
	return text, nil
}

// buildPrompt converts a CompletionRequest into a gollm Prompt.
func (b *GollmBackend) buildPrompt(req CompletionRequest, maxTokens int) *gollm.Prompt {
	promptOpts := []gollm.PromptOption{gollm.WithMaxLength(maxTokens)}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	return gollm.NewPrompt(req.Prompt, promptOpts...)
}

// translateError converts a gollm error into a BackendError.
func (b *GollmBackend) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	// gollm does not expose status codes; classify on message content.
	msgLower := strings.ToLower(msg)
	status := 0
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		status = 401
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		status = 403
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		status = 404
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		status = 429
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		status = 413
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		status = 500
	case strings.Contains(msgLower, "timeout") || strings.Contains(msgLower, "deadline exceeded"):
		return &BackendError{
			SDKError:  SDKError{Message: "request timed out", Cause: err},
			Backend:   b.provider,
			Retryable: true,
		}
	default:
		return &BackendError{
			SDKError:  SDKError{Message: "request failed", Cause: err},
			Backend:   b.provider,
			Retryable: true,
		}
	}

	be := BackendErrorFromStatus(b.provider, status, msg)
	be.Cause = err
	return be
}
