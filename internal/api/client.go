// Package api is the REST client for one workflow service instance, with
// bounded retries, client-side rate limiting, and masked logging.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/flowport/flowport/internal/config"
	"github.com/flowport/flowport/internal/logging"
	"github.com/flowport/flowport/internal/workflow"
)

const (
	DefaultMaxRetries           = 3
	DefaultTimeout              = 10 * time.Second
	DefaultMaxRequestsPerSecond = 10
	DefaultBackoffBase          = 1 * time.Second

	maxBackoff = 30 * time.Second

	apiKeyHeader = "X-N8N-API-KEY"
)

// ClientConfig configures a Client. BaseURL and APIKey are required; the
// remaining fields fall back to the package defaults when zero.
type ClientConfig struct {
	BaseURL              string
	APIKey               string
	MaxRetries           int
	Timeout              time.Duration
	MaxRequestsPerSecond int
	BackoffBase          time.Duration
}

// Client talks to a single workflow service instance. It knows nothing about
// the transfer; it only makes requests survive flaky networks.
type Client struct {
	baseURL     string
	apiKey      string
	maxRetries  int
	timeout     time.Duration
	backoffBase time.Duration
	httpClient  *http.Client
	limiter     *rateLimiter
	log         *logrus.Entry

	total       atomic.Int64
	successful  atomic.Int64
	failed      atomic.Int64
	retried     atomic.Int64
	rateLimited atomic.Int64
}

// RequestStats is a snapshot of the client's request counters.
type RequestStats struct {
	Total       int64 `json:"total"`
	Successful  int64 `json:"successful"`
	Failed      int64 `json:"failed"`
	Retried     int64 `json:"retried"`
	RateLimited int64 `json:"rate_limited"`
}

// NewClient builds a client for one instance. Missing URL or API key is a
// configuration error; no request is ever attempted with either absent.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api client: %w", config.ErrMissingURL)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api client: %w", config.ErrMissingAPIKey)
	}

	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRequestsPerSecond < 1 {
		cfg.MaxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}

	// Whatever ends up in a log line, the key is masked.
	logging.AddSecret(cfg.APIKey)
	log := logging.Component("api").WithField("base_url", baseURL)
	log.Debugf("client configured (api key %s)", logging.MaskSecret(cfg.APIKey))

	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout,
		backoffBase: cfg.BackoffBase,
		httpClient:  &http.Client{},
		limiter:     newRateLimiter(cfg.MaxRequestsPerSecond),
		log:         log,
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetWorkflows lists all workflows on the instance. Both the enveloped
// ({"data": [...]}) and bare-array response shapes are accepted.
func (c *Client) GetWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/workflows", nil, &raw); err != nil {
		return nil, err
	}
	return decodeWorkflowList(raw)
}

// GetWorkflow fetches a single workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	if err := c.do(ctx, http.MethodGet, "/api/v1/workflows/"+id, nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// CreateWorkflow creates the workflow on the instance and returns it with the
// server-assigned id.
func (c *Client) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/v1/workflows", wf.CreateBody(), &raw); err != nil {
		return nil, err
	}
	return decodeWorkflow(raw)
}

// ConnectionResult is the stable shape TestConnection maps failures into.
type ConnectionResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// TestConnection probes the instance with a single attempt (no retries) and
// turns known failure categories into actionable suggestions.
func (c *Client) TestConnection(ctx context.Context) *ConnectionResult {
	_, err := c.once(ctx, http.MethodGet, "/api/v1/workflows?limit=1", nil)
	if err == nil {
		return &ConnectionResult{Success: true}
	}

	res := &ConnectionResult{Success: false, Error: err.Error()}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden):
		res.Suggestion = "Check that the API key is valid and has API access enabled"
	case isConnRefused(err):
		res.Suggestion = "Check that the URL is correct and the server is running"
	case isTimeout(err):
		res.Suggestion = "Check network connectivity and firewall settings"
	case isDNSFailure(err):
		res.Suggestion = "Check that the URL is correct"
	}
	return res
}

// Stats returns a snapshot of the request counters.
func (c *Client) Stats() RequestStats {
	return RequestStats{
		Total:       c.total.Load(),
		Successful:  c.successful.Load(),
		Failed:      c.failed.Load(),
		Retried:     c.retried.Load(),
		RateLimited: c.rateLimited.Load(),
	}
}

// ResetStats zeroes the request counters.
func (c *Client) ResetStats() {
	c.total.Store(0)
	c.successful.Store(0)
	c.failed.Store(0)
	c.retried.Store(0)
	c.rateLimited.Store(0)
}

// do runs one logical request with up to maxRetries total attempts. Only
// retryable failures (429, 5xx, transient transport) get another attempt; the
// last error surfaces when attempts are exhausted.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	bo := &backoff.Backoff{
		Min:    c.backoffBase,
		Max:    maxBackoff,
		Factor: 2,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := bo.Duration()
			c.retried.Add(1)
			c.log.WithField("attempt", attempt+1).Debugf("retrying %s %s in %s", method, path, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		data, err := c.once(ctx, method, path, body)
		if err == nil {
			return decodeInto(data, result)
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return lastErr
}

// once issues a single attempt: rate-limit gate, then the request with its
// own timeout. The per-attempt context guarantees exactly one outcome per
// attempt: a late response after the timeout fired is discarded by the
// transport, never observed here.
func (c *Client) once(ctx context.Context, method, path string, body any) ([]byte, error) {
	blocked, err := c.limiter.wait(ctx)
	if blocked {
		c.rateLimited.Add(1)
	}
	if err != nil {
		return nil, err
	}
	c.total.Add(1)

	data, err := c.attempt(ctx, method, path, body)
	if err != nil {
		c.failed.Add(1)
		return nil, err
	}
	c.successful.Add(1)
	return data, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, body any) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debugf("%s %s", method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}
	return data, nil
}

// decodeInto parses a response body. Empty or whitespace-only bodies resolve
// to a null result; non-JSON bodies pass through as plain text when the
// caller accepts any value.
func decodeInto(data []byte, result any) error {
	if result == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if p, ok := result.(*any); ok && !json.Valid(trimmed) {
		*p = string(data)
		return nil
	}
	if err := json.Unmarshal(trimmed, result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func decodeWorkflowList(raw json.RawMessage) ([]workflow.Workflow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var out []workflow.Workflow
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("parse workflow list: %w", err)
		}
		return out, nil
	}
	var envelope struct {
		Data []workflow.Workflow `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("parse workflow list: %w", err)
	}
	return envelope.Data, nil
}

func decodeWorkflow(raw json.RawMessage) (*workflow.Workflow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(trimmed, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	if wf.ID == "" {
		// Some server versions wrap single results in a data envelope.
		var envelope struct {
			Data *workflow.Workflow `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Data != nil {
			return envelope.Data, nil
		}
	}
	return &wf, nil
}

// errorMessage pulls a human-readable message out of an error response body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return ""
}
