// Package analysis is the request/response client for the remote PERT
// analysis engine.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 512
)

// Engine operations, used as endpoint paths and metric labels.
const (
	OpSetTasks    = "set-tasks"
	OpPert        = "pert"
	OpComparePert = "compare-pert"
	OpUpdateTask  = "update-task"
)

// Client is the analysis engine interface consumed by the session.
type Client interface {
	SetTasks(ctx context.Context, tasks []domain.Task) (*domain.Ack, error)
	RunPert(ctx context.Context, tasks []domain.Task) (*domain.PertResult, error)
	ComparePert(ctx context.Context, tasks []domain.Task) (*domain.ComparisonResult, error)
	UpdateTask(ctx context.Context, task domain.Task) (*domain.Ack, error)
}

// HTTPClient implements Client over HTTP + JSON.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new analysis engine client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// SetTasks submits the full task set.
func (c *HTTPClient) SetTasks(ctx context.Context, tasks []domain.Task) (*domain.Ack, error) {
	if err := domain.ValidateTasks(tasks); err != nil {
		return nil, err
	}

	var ack domain.Ack
	if err := c.call(ctx, http.MethodPost, OpSetTasks, tasks, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// RunPert requests deterministic and simulated analysis of the task set.
func (c *HTTPClient) RunPert(ctx context.Context, tasks []domain.Task) (*domain.PertResult, error) {
	if err := domain.ValidateTasks(tasks); err != nil {
		return nil, err
	}

	var result domain.PertResult
	if err := c.call(ctx, http.MethodPost, OpPert, tasks, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ComparePert requests the classical vs Monte Carlo comparison and
// normalizes the response.
func (c *HTTPClient) ComparePert(ctx context.Context, tasks []domain.Task) (*domain.ComparisonResult, error) {
	if err := domain.ValidateTasks(tasks); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, OpComparePert, tasks, &raw); err != nil {
		return nil, err
	}

	result := NormalizeComparison(raw)
	return &result, nil
}

// UpdateTask replaces a single task on the engine.
func (c *HTTPClient) UpdateTask(ctx context.Context, task domain.Task) (*domain.Ack, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	var ack domain.Ack
	if err := c.call(ctx, http.MethodPut, OpUpdateTask, task, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// call performs one JSON request. Failures are returned as *RequestError.
func (c *HTTPClient) call(ctx context.Context, method, op string, body, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordRequest(op, time.Since(start).Seconds(), err)
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &RequestError{Op: op, Message: "analysis engine unreachable", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    failureMessage(op, respBody),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &RequestError{Op: op, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
		}
	}

	return nil
}

// failureMessage builds the user-facing message for a non-2xx response,
// preferring the engine's own "detail" or "message" field.
func failureMessage(op string, body []byte) string {
	var parsed struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if s, ok := parsed.Detail.(string); ok && s != "" {
			return s
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	if text == "" {
		return fmt.Sprintf("%s failed", op)
	}
	return fmt.Sprintf("%s failed: %s", op, text)
}
