package reliablellm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/martinemde/llmask/config"
)

// Client tries its backends in order and returns the first success. The
// backend list is fixed at construction and shared read-only between
// concurrent calls; every call keeps its own attempt history.
type Client struct {
	backends          []Backend
	logger            *zap.Logger
	metrics           *Metrics
	sequentialProbes  bool
	correctionRetries int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBackends appends backends in priority order.
func WithBackends(backends ...Backend) ClientOption {
	return func(c *Client) {
		c.backends = append(c.backends, backends...)
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records attempts and failures on m.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSequentialProbes makes ListAvailable probe one backend at a time.
func WithSequentialProbes() ClientOption {
	return func(c *Client) {
		c.sequentialProbes = true
	}
}

// WithCorrectionRetries sets the correction loop budget used for structured
// requests that leave CorrectionRetries nil.
func WithCorrectionRetries(n int) ClientOption {
	return func(c *Client) {
		c.correctionRetries = n
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	// Detach from the caller's slice so later appends cannot reorder us.
	c.backends = append([]Backend(nil), c.backends...)
	return c
}

// Backends returns the configured backend names in priority order.
func (c *Client) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Complete returns the text of the first available backend that succeeds.
// When all fail, the error is an *AggregatedFailure listing each backend.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return fallback(ctx, c, "complete", func(ctx context.Context, b Backend) (string, error) {
		return b.Complete(ctx, req)
	})
}

// CompleteStructured is Complete for schema-validated output.
func (c *Client) CompleteStructured(ctx context.Context, req StructuredRequest) (any, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CorrectionRetries == nil {
		req.CorrectionRetries = Int(c.correctionRetries)
	}
	return fallback(ctx, c, "complete_structured", func(ctx context.Context, b Backend) (any, error) {
		return b.CompleteStructured(ctx, req)
	})
}

// CompleteAs asks for a structured answer decoded into T. T's `validate`
// struct tags are enforced and its JSON Schema is shown to the backend.
func CompleteAs[T any](ctx context.Context, c *Client, req CompletionRequest) (T, error) {
	var zero T
	v, err := c.CompleteStructured(ctx, StructuredRequest{
		CompletionRequest: req,
		Schema:            NewStructSchema[T](),
	})
	if err != nil {
		return zero, err
	}
	if out, ok := v.(T); ok {
		return out, nil
	}
	return decodeStruct[T](v)
}

// ListAvailable probes every backend and returns the names of those that
// answered, in configured order. Probes run concurrently unless
// WithSequentialProbes was given.
func (c *Client) ListAvailable(ctx context.Context) []string {
	up := make([]bool, len(c.backends))
	var g errgroup.Group
	if c.sequentialProbes {
		g.SetLimit(1)
	}
	for i, b := range c.backends {
		g.Go(func() error {
			up[i] = b.IsAvailable(ctx)
			return nil
		})
	}
	_ = g.Wait()

	names := make([]string, 0, len(c.backends))
	for i, b := range c.backends {
		if up[i] {
			names = append(names, b.Name())
		}
	}
	return names
}

// Close releases resources held by the backends.
func (c *Client) Close() error {
	var firstErr error
	for _, b := range c.backends {
		if closer, ok := b.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// AttemptResult is the outcome of trying one backend: either Value or Err.
type AttemptResult[T any] struct {
	Backend string
	Value   T
	Err     *AttemptError
}

// fallback walks the backends in order. An unavailable backend or a failed
// call is recorded and the next backend is tried; the first success returns
// immediately. Caller cancellation is terminal.
func fallback[T any](ctx context.Context, c *Client, op string, call func(context.Context, Backend) (T, error)) (T, error) {
	var zero T
	log := c.logger.With(zap.String("request_id", uuid.New().String()), zap.String("op", op))

	results := make([]AttemptResult[T], 0, len(c.backends))
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			log.Info("request cancelled", zap.Error(err), zap.Int("attempts", len(results)))
			return zero, newAbortError(err)
		}

		res := tryBackend(ctx, c, log, op, b, call)
		if res.Err == nil {
			return res.Value, nil
		}
		if err := ctx.Err(); err != nil {
			log.Info("request cancelled", zap.Error(err), zap.Int("attempts", len(results)+1))
			return zero, newAbortError(err)
		}
		results = append(results, res)
	}

	failure := &AggregatedFailure{Op: op, Attempts: make([]AttemptError, len(results))}
	for i, r := range results {
		failure.Attempts[i] = *r.Err
	}
	c.metrics.observeFailure(op)
	log.Error("all backends failed",
		zap.Int("attempts", len(failure.Attempts)),
		zap.Bool("all_unavailable", failure.AllUnavailable()),
		zap.Bool("all_invalid_output", failure.AllInvalidOutput()),
	)
	return zero, failure
}

func tryBackend[T any](ctx context.Context, c *Client, log *zap.Logger, op string, b Backend, call func(context.Context, Backend) (T, error)) AttemptResult[T] {
	name := b.Name()
	log = log.With(zap.String("backend", name))

	if !b.IsAvailable(ctx) {
		c.metrics.observeAttempt(name, op, OutcomeUnavailable, 0)
		log.Warn("backend not available")
		return AttemptResult[T]{Backend: name, Err: &AttemptError{
			Source:  name,
			Message: "not available",
			Err:     &BackendUnavailableError{SDKError: SDKError{Message: "not available"}, Backend: name},
		}}
	}

	log.Debug("calling backend")
	start := time.Now()
	v, err := call(ctx, b)
	latency := time.Since(start)
	if err != nil {
		outcome := OutcomeError
		if isOutputError(err) {
			outcome = OutcomeInvalid
		}
		c.metrics.observeAttempt(name, op, outcome, latency)
		log.Warn("backend failed", zap.Error(err), zap.String("outcome", outcome), zap.Duration("latency", latency))
		return AttemptResult[T]{Backend: name, Err: &AttemptError{Source: name, Message: attemptMessage(name, err), Err: err}}
	}

	c.metrics.observeAttempt(name, op, OutcomeSuccess, latency)
	log.Info("backend succeeded", zap.Duration("latency", latency))
	return AttemptResult[T]{Backend: name, Value: v}
}

// attemptMessage is err's text without the "[backend] " prefix that backend
// errors carry, since the aggregated report already names the backend.
func attemptMessage(backend string, err error) string {
	return strings.TrimPrefix(err.Error(), "["+backend+"] ")
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns collectors registered once on the default
// Prometheus registerer.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(nil)
	})
	return defaultMetrics
}

// NewClientFromConfig builds the backends named in cfg.Backends, in that
// order. Backends without credentials are still added; they report
// themselves unavailable.
func NewClientFromConfig(cfg config.Config, opts ...ClientOption) (*Client, error) {
	backends := make([]Backend, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		b, err := newBackend(name, cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}

	base := []ClientOption{
		WithBackends(backends...),
		WithCorrectionRetries(cfg.CorrectionRetries),
	}
	if cfg.Metrics.Enabled {
		base = append(base, WithMetrics(DefaultMetrics()))
	}
	return NewClient(append(base, opts...)...), nil
}

func newBackend(name string, cfg config.Config) (Backend, error) {
	switch name {
	case config.BackendOllama:
		return NewOllamaBackend(
			WithOllamaBaseURL(cfg.Ollama.BaseURL),
			WithOllamaModel(cfg.Ollama.Model),
			WithOllamaProbeTimeout(cfg.ProbeTimeout),
			WithOllamaRequestTimeout(cfg.RequestTimeout),
		), nil
	case config.BackendOpenAI:
		return NewGollmBackend("openai", cfg.OpenAI.APIKey,
			WithModel(cfg.OpenAI.Model),
			WithTimeout(cfg.RequestTimeout),
		)
	case config.BackendAnthropic:
		return NewAnthropicBackend(cfg.Anthropic.APIKey,
			WithAnthropicModel(cfg.Anthropic.Model),
			WithAnthropicBaseURL(cfg.Anthropic.BaseURL),
			WithAnthropicTimeout(cfg.RequestTimeout),
		), nil
	case config.BackendLorem:
		return NewLoremBackend(), nil
	default:
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("backend %q is not supported", name),
		}}
	}
}

// NewClientFromEnv loads configuration from the environment (and .env) and
// builds a Client logging through a logger built from that configuration.
func NewClientFromEnv() (*Client, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return NewClientFromConfig(cfg, WithLogger(logger))
}
