package reliablellm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T, handler func(t *testing.T, req ollamaGenerateRequest) (int, string)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2"}]}`))
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(t, req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaBackendAvailability(t *testing.T) {
	srv := newOllamaServer(t, nil)
	assert.True(t, NewOllamaBackend(WithOllamaBaseURL(srv.URL+"/")).IsAvailable(context.Background()))

	srv.Close()
	assert.False(t, NewOllamaBackend(WithOllamaBaseURL(srv.URL)).IsAvailable(context.Background()))
}

func TestOllamaBackendProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	b := NewOllamaBackend(WithOllamaBaseURL(srv.URL), WithOllamaProbeTimeout(20*time.Millisecond))
	start := time.Now()
	assert.False(t, b.IsAvailable(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestOllamaBackendComplete(t *testing.T) {
	srv := newOllamaServer(t, func(t *testing.T, req ollamaGenerateRequest) (int, string) {
		assert.Equal(t, "mistral", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		assert.Equal(t, "be brief", req.System)
		assert.Empty(t, req.Format)
		assert.False(t, req.Stream)
		assert.Equal(t, 0.7, req.Options.Temperature)
		assert.Equal(t, 2000, req.Options.NumPredict)
		assert.Equal(t, []string{"END"}, req.Options.Stop)
		return http.StatusOK, `{"response":"hi there","done":true}`
	})

	b := NewOllamaBackend(WithOllamaBaseURL(srv.URL), WithOllamaModel("mistral"))
	text, err := b.Complete(context.Background(), CompletionRequest{
		Prompt:        "hello",
		SystemPrompt:  "be brief",
		StopSequences: []string{"END"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
}

func TestOllamaBackendCompleteStructured(t *testing.T) {
	srv := newOllamaServer(t, func(t *testing.T, req ollamaGenerateRequest) (int, string) {
		assert.Equal(t, "json", req.Format)
		assert.Equal(t, 0.3, req.Options.Temperature)
		assert.Equal(t, 50, req.Options.NumPredict)
		assert.Contains(t, req.Prompt, "Return ONLY valid JSON")
		// The model ignored JSON mode and added chatter.
		return http.StatusOK, `{"response":"Here: {'answer': 'yes',}"}`
	})

	b := NewOllamaBackend(WithOllamaBaseURL(srv.URL))
	v, err := b.CompleteStructured(context.Background(), StructuredRequest{
		CompletionRequest: CompletionRequest{Prompt: "q", MaxTokens: Int(50)},
		Schema:            ObjectSchema("answer"),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "yes"}, v)
}

func TestOllamaBackendStatusError(t *testing.T) {
	srv := newOllamaServer(t, func(t *testing.T, req ollamaGenerateRequest) (int, string) {
		return http.StatusNotFound, `{"error":"model 'nope' not found"}`
	})

	_, err := NewOllamaBackend(WithOllamaBaseURL(srv.URL)).Complete(context.Background(), CompletionRequest{Prompt: "x"})

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "ollama", be.Backend)
	assert.Equal(t, http.StatusNotFound, be.StatusCode)
	assert.False(t, be.Retryable)
	assert.Contains(t, be.Error(), "model 'nope' not found")
}

func TestOllamaBackendTransportError(t *testing.T) {
	srv := newOllamaServer(t, nil)
	srv.Close()

	_, err := NewOllamaBackend(WithOllamaBaseURL(srv.URL)).Complete(context.Background(), CompletionRequest{Prompt: "x"})
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.True(t, be.Retryable)
}

func TestOllamaBackendRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	b := NewOllamaBackend(WithOllamaBaseURL(srv.URL), WithOllamaRequestTimeout(20*time.Millisecond))
	_, err := b.Complete(context.Background(), CompletionRequest{Prompt: "x"})

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOllamaBackendDefaults(t *testing.T) {
	b := NewOllamaBackend(WithOllamaBaseURL(""), WithOllamaModel(""))
	assert.Equal(t, "ollama", b.Name())
	assert.Equal(t, "llama3.2", b.Model())
	assert.Equal(t, defaultOllamaBaseURL, b.baseURL)
}
