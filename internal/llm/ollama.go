package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is where a local Ollama listens.
const DefaultBaseURL = "http://localhost:11434"

// DefaultModel is used for every task without an override.
const DefaultModel = "phi4-mini:3.8b"

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TaskOptions tune one task. Zero values fall back to DefaultTaskOptions.
type TaskOptions struct {
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	NumCtx      int     `toml:"num_ctx"`
	NumPredict  int     `toml:"num_predict"`
}

// DefaultTaskOptions returns the tuned defaults per task.
func DefaultTaskOptions(task Task) TaskOptions {
	switch task {
	case TaskSummarize:
		return TaskOptions{Temperature: 0.2, NumCtx: 4096, NumPredict: 300}
	case TaskProjectSummary:
		return TaskOptions{Temperature: 0.1, NumCtx: 4096, NumPredict: 700}
	case TaskArchitecture:
		return TaskOptions{Temperature: 0.1, NumCtx: 6144, NumPredict: 1000}
	default:
		return TaskOptions{Temperature: 0.1, NumCtx: 4096, NumPredict: 900}
	}
}

// ClientConfig configures an OllamaClient.
type ClientConfig struct {
	BaseURL string
	// Model applies to every task that does not name its own.
	Model string
	Tasks map[Task]TaskOptions
	// RequestsPerMinute throttles Generate when positive.
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            hclog.Logger
}

// OllamaClient calls the Ollama /api/chat endpoint for generative responses.
type OllamaClient struct {
	baseURL string
	model   string
	tasks   map[Task]TaskOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  hclog.Logger
}

// NewOllamaClient creates a chat client targeting the configured Ollama instance.
func NewOllamaClient(cfg ClientConfig) *OllamaClient {
	c := &OllamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		tasks:   cfg.Tasks,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	// Generation on a local model can run for minutes; callers bound it
	// through the context instead.
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	c.logger = c.logger.Named("ollama")
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// Options resolves the effective options for task.
func (c *OllamaClient) Options(task Task) TaskOptions {
	opts := DefaultTaskOptions(task)
	opts.Model = c.model
	if o, ok := c.tasks[task]; ok {
		if o.Model != "" {
			opts.Model = o.Model
		}
		if o.Temperature != 0 {
			opts.Temperature = o.Temperature
		}
		if o.NumCtx != 0 {
			opts.NumCtx = o.NumCtx
		}
		if o.NumPredict != 0 {
			opts.NumPredict = o.NumPredict
		}
	}
	return opts
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Generate sends one request to Ollama and returns the assistant's response.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	opts := c.Options(req.Task)
	fail := func(status int, err error) (string, error) {
		return "", &ServiceError{Model: opts.Model, StatusCode: status, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	var msgs []Message
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:    opts.Model,
		Messages: msgs,
		Stream:   false,
		Options: chatOptions{
			Temperature: opts.Temperature,
			NumCtx:      opts.NumCtx,
			NumPredict:  opts.NumPredict,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fail(resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode chat response: %w", err))
	}
	if result.Error != "" {
		return fail(resp.StatusCode, fmt.Errorf("%s", result.Error))
	}

	c.logger.Debug("generated", "task", req.Task, "model", opts.Model,
		"prompt_bytes", len(req.Prompt), "elapsed", time.Since(start))
	return result.Message.Content, nil
}

// Model represents a model returned by /api/tags.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// Models queries the Ollama /api/tags endpoint and returns available models.
func (c *OllamaClient) Models(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create tags request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("connect to ollama: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Err: fmt.Errorf("/api/tags returned %d", resp.StatusCode)}
	}

	var result tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	return result.Models, nil
}

// HasModel reports whether name is among models, accepting a missing
// ":latest" tag.
func HasModel(models []Model, name string) bool {
	for _, m := range models {
		if m.Name == name || m.Name == name+":latest" {
			return true
		}
	}
	return false
}

// FormatSize returns a human-readable size string.
func FormatSize(bytes int64) string {
	const gb = 1024 * 1024 * 1024
	const mb = 1024 * 1024
	if bytes >= gb {
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	}
	return fmt.Sprintf("%.0f MB", float64(bytes)/float64(mb))
}

// MissingModels returns the configured task models the service does not
// have, sorted and without duplicates.
func (c *OllamaClient) MissingModels(ctx context.Context) ([]string, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	return c.MissingFrom(models), nil
}

// MissingFrom is MissingModels against an already fetched model list.
func (c *OllamaClient) MissingFrom(models []Model) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, task := range Tasks {
		name := c.Options(task).Model
		if seen[name] {
			continue
		}
		seen[name] = true
		if !HasModel(models, name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

type unloadRequest struct {
	Model     string `json:"model"`
	KeepAlive int    `json:"keep_alive"`
}

// Unload asks Ollama to evict model from memory now instead of after its
// keep-alive expires.
func (c *OllamaClient) Unload(ctx context.Context, model string) error {
	body, err := json.Marshal(unloadRequest{Model: model})
	if err != nil {
		return fmt.Errorf("marshal unload request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create unload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &ServiceError{Model: model, Err: fmt.Errorf("unload: %w", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return &ServiceError{Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("unload returned %d", resp.StatusCode)}
	}
	return nil
}

// UnloadTasks unloads each distinct model used by tasks, in name order,
// skipping models still used by keep.
func (c *OllamaClient) UnloadTasks(ctx context.Context, tasks, keep []Task) error {
	kept := make(map[string]bool)
	for _, t := range keep {
		kept[c.Options(t).Model] = true
	}
	var models []string
	for _, t := range tasks {
		name := c.Options(t).Model
		if kept[name] {
			continue
		}
		kept[name] = true
		models = append(models, name)
	}
	sort.Strings(models)

	var errs *multierror.Error
	for _, m := range models {
		if err := c.Unload(ctx, m); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		c.logger.Debug("model unloaded", "model", m)
	}
	return errs.ErrorOrNil()
}
