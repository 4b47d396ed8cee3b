package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsTaskOptions(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"role":"assistant","content":"## Purpose\n\nDoes things."}}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(ClientConfig{
		BaseURL: srv.URL + "/",
		Model:   "base",
		Tasks:   map[Task]TaskOptions{TaskArchitecture: {Model: "big", NumCtx: 8192}},
	})
	out, err := c.Generate(context.Background(), Request{Task: TaskArchitecture, System: "sys", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "## Purpose\n\nDoes things.", out)

	assert.Equal(t, "big", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 8192, got.Options.NumCtx)
	assert.Equal(t, 1000, got.Options.NumPredict)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestOptionsFallBackToDefaults(t *testing.T) {
	c := NewOllamaClient(ClientConfig{})
	opts := c.Options(TaskSummarize)
	assert.Equal(t, DefaultModel, opts.Model)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 300, opts.NumPredict)
}

func TestGenerateServerErrorIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`model "nope" not found`))
	}))
	defer srv.Close()

	c := NewOllamaClient(ClientConfig{BaseURL: srv.URL, Model: "nope"})
	_, err := c.Generate(context.Background(), Request{Task: TaskSummarize, Prompt: "x"})
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
	assert.Equal(t, "nope", svcErr.Model)
	assert.Contains(t, err.Error(), "not found")
}

func TestGenerateConnectionError(t *testing.T) {
	c := NewOllamaClient(ClientConfig{BaseURL: "http://localhost:1"})
	_, err := c.Generate(context.Background(), Request{Task: TaskSummarize, Prompt: "x"})
	var svcErr *ServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewOllamaClient(ClientConfig{BaseURL: "http://localhost:1", RequestsPerMinute: 60})
	_, err := c.Generate(ctx, Request{Task: TaskSummarize, Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"phi4-mini:3.8b","size":2500000000},{"name":"llama3.2:latest","size":2000000000}]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(ClientConfig{BaseURL: srv.URL})
	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.True(t, HasModel(models, "llama3.2"))
	assert.True(t, HasModel(models, "phi4-mini:3.8b"))
	assert.False(t, HasModel(models, "mistral"))
}

func TestModelsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(ClientConfig{BaseURL: srv.URL}).Models(context.Background())
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusInternalServerError, svcErr.StatusCode)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "2.0 GB", FormatSize(2*1024*1024*1024))
	assert.Equal(t, "512 MB", FormatSize(512*1024*1024))
}

func TestMissingModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest"}]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(ClientConfig{
		BaseURL: srv.URL,
		Model:   "llama3.2",
		Tasks:   map[Task]TaskOptions{TaskArchitecture: {Model: "qwen2.5-coder:14b"}},
	})
	missing, err := c.MissingModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5-coder:14b"}, missing)
}

func TestUnloadTasks(t *testing.T) {
	var unloaded []unloadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(0), req["keep_alive"])
		unloaded = append(unloaded, unloadRequest{Model: req["model"].(string)})
		w.Write([]byte(`{"model":"x","response":"","done":true,"done_reason":"unload"}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(ClientConfig{
		BaseURL: srv.URL,
		Model:   "base",
		Tasks:   map[Task]TaskOptions{TaskDocumentation: {Model: "docs"}},
	})

	// base is still needed by the project tasks.
	require.NoError(t, c.UnloadTasks(context.Background(),
		[]Task{TaskSummarize, TaskDocumentation}, []Task{TaskProjectSummary, TaskArchitecture}))
	assert.Equal(t, []unloadRequest{{Model: "docs"}}, unloaded)

	unloaded = nil
	require.NoError(t, c.UnloadTasks(context.Background(), Tasks, nil))
	assert.Equal(t, []unloadRequest{{Model: "base"}, {Model: "docs"}}, unloaded)
}

func TestUnloadFailureIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(ClientConfig{BaseURL: srv.URL, Model: "gone"})
	err := c.UnloadTasks(context.Background(), []Task{TaskSummarize}, nil)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "gone", svcErr.Model)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}
