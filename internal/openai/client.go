// Package openai is a small REST client for the hosted vector-store, file and
// responses endpoints of an OpenAI-compatible API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey       string
	BaseURL      string
	Organization string
	Project      string

	// RequestsPerSec <= 0 disables client-side throttling.
	RequestsPerSec float64
	Burst          int
}

// Client talks to the hosted service. It is safe for concurrent use.
type Client struct {
	apiKey       string
	baseURL      string
	organization string
	project      string

	defaultClient *http.Client
	longClient    *http.Client // file uploads
	streamClient  *http.Client // no timeout, bounded by the request context

	limiter *rate.Limiter
	metrics *Metrics
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("openai: parse base URL: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		organization:  cfg.Organization,
		project:       cfg.Project,
		defaultClient: &http.Client{Timeout: DefaultTimeout},
		longClient:    &http.Client{Timeout: LongTimeout},
		streamClient:  &http.Client{Timeout: 0},
		limiter:       limiter,
		metrics:       &Metrics{},
	}, nil
}

// Metrics returns a snapshot of upstream call counters.
func (c *Client) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Param      string `json:"param"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai: status %d", e.StatusCode)
	}
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}
	if c.project != "" {
		req.Header.Set("OpenAI-Project", c.project)
	}
	if rid := logging.RequestID(ctx); rid != "" {
		req.Header.Set("X-Client-Request-Id", rid)
	}
	return req, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// send performs req and returns the raw response when the status is 2xx. The
// caller owns the body.
func (c *Client) send(hc *http.Client, req *http.Request, operation string) (*http.Response, error) {
	logger := logging.NewLogger(req.Context())
	if err := c.wait(req.Context()); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := hc.Do(req)
	duration := time.Since(start)
	if err != nil {
		logger.LogError(operation, err)
		c.metrics.record(duration, err)
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := decodeAPIError(resp)
		resp.Body.Close()
		logger.LogWarnf(operation, "upstream returned status %d: %s", resp.StatusCode, apiErr.Message)
		c.metrics.record(duration, apiErr)
		return nil, apiErr
	}

	c.metrics.record(duration, nil)
	return resp, nil
}

// doJSON sends an optional JSON body and decodes a JSON answer into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, operation string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(c.defaultClient, req, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeBody(resp, out)
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return fmt.Errorf("failed to parse response (body: %s): %w", preview, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope struct {
		Error *APIError `json:"error"`
	}
	apiErr := &APIError{}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
		apiErr = envelope.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
