package reliablellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaBackend talks to a local Ollama server over its HTTP API.
type OllamaBackend struct {
	baseURL        string
	model          string
	probeTimeout   time.Duration
	requestTimeout time.Duration
	httpClient     *http.Client
	info           BackendInfo
}

// OllamaOption configures an OllamaBackend.
type OllamaOption func(*OllamaBackend)

// WithOllamaBaseURL sets the server address. Empty keeps the default.
func WithOllamaBaseURL(u string) OllamaOption {
	return func(b *OllamaBackend) {
		if u != "" {
			b.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithOllamaModel sets the model name. Empty keeps the catalog default.
func WithOllamaModel(model string) OllamaOption {
	return func(b *OllamaBackend) {
		if model != "" {
			b.model = model
		}
	}
}

// WithOllamaProbeTimeout bounds the availability probe.
func WithOllamaProbeTimeout(d time.Duration) OllamaOption {
	return func(b *OllamaBackend) {
		if d > 0 {
			b.probeTimeout = d
		}
	}
}

// WithOllamaRequestTimeout bounds a single generation.
func WithOllamaRequestTimeout(d time.Duration) OllamaOption {
	return func(b *OllamaBackend) {
		if d > 0 {
			b.requestTimeout = d
		}
	}
}

// WithOllamaHTTPClient replaces the HTTP client.
func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(b *OllamaBackend) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// NewOllamaBackend creates an Ollama backend.
func NewOllamaBackend(opts ...OllamaOption) *OllamaBackend {
	info, _ := LookupBackendInfo("ollama")
	b := &OllamaBackend{
		baseURL:        defaultOllamaBaseURL,
		model:          info.DefaultModel,
		probeTimeout:   2 * time.Second,
		requestTimeout: 120 * time.Second,
		httpClient:     &http.Client{},
		info:           info,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *OllamaBackend) Name() string { return "ollama" }

// Model returns the configured model name.
func (b *OllamaBackend) Model() string { return b.model }

// IsAvailable lists local models; any 2xx answer within the probe timeout
// counts as available.
func (b *OllamaBackend) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (b *OllamaBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return b.generate(ctx, req, req.TemperatureOr(b.info.TextTemperature), "")
}

func (b *OllamaBackend) CompleteStructured(ctx context.Context, req StructuredRequest) (any, error) {
	format := ""
	if b.info.NativeJSON {
		format = "json"
	}
	return runStructured(ctx, req, func(ctx context.Context, r CompletionRequest) (string, error) {
		return b.generate(ctx, r, r.TemperatureOr(b.info.StructuredTemperature), format)
	})
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (b *OllamaBackend) generate(ctx context.Context, req CompletionRequest, temperature float64, format string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  b.model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Format: format,
		Options: ollamaOptions{
			Temperature: temperature,
			NumPredict:  req.MaxTokensOr(b.info.MaxTokens),
			Stop:        req.StopSequences,
		},
	})
	if err != nil {
		return "", &BackendError{SDKError: SDKError{Message: "failed to encode request", Cause: err}, Backend: b.Name()}
	}

	ctx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &BackendError{SDKError: SDKError{Message: "failed to build request", Cause: err}, Backend: b.Name()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", &BackendError{
			SDKError:  SDKError{Message: "request failed", Cause: err},
			Backend:   b.Name(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var decoded ollamaGenerateResponse
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return "", BackendErrorFromStatus(b.Name(), resp.StatusCode, fmt.Sprintf("ollama error: %s", msg))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &BackendError{
			SDKError:  SDKError{Message: "failed to decode response", Cause: err},
			Backend:   b.Name(),
			Retryable: true,
		}
	}
	if out.Error != "" {
		return "", &BackendError{SDKError: SDKError{Message: out.Error}, Backend: b.Name()}
	}
	return out.Response, nil
}
