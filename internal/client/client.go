// Package client implements the HTTP client for the payslip backend API.
// All job submission, status polling and collection reads go through a
// single rate-limited Client; responses arrive in the backend's standard
// {success, message, data, meta} envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/slipstream-hr/slipstream/internal/common"
)

// Client talks to the payslip backend API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// New creates a Client from configuration. The cookie jar carries the
// backend's session cookies alongside the bearer token, matching how the
// dashboard authenticates.
func New(config *common.Config, logger arbor.ILogger) (*Client, error) {
	if config.API.BaseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	interval := config.RateLimit()
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return &Client{
		baseURL: strings.TrimRight(config.API.BaseURL, "/"),
		token:   config.API.Token,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: config.RequestTimeout(),
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// apiEnvelope is the backend's standard response wrapper
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// apiError carries the HTTP status and server message of a failed call
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// do executes one API request and decodes the response envelope.
// Non-2xx responses become *apiError with the server's message when one
// was provided.
func (c *Client) do(ctx context.Context, method, path string, contentType string, body io.Reader) (*apiEnvelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("API request completed")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		var envelope apiEnvelope
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
		return nil, apiErr
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return &envelope, nil
}

// get executes a GET and unmarshals the envelope data into out
func (c *Client) get(ctx context.Context, path string, out interface{}) (*apiEnvelope, error) {
	envelope, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", path, err)
		}
	}
	return envelope, nil
}

// postJSON executes a POST with a JSON body and unmarshals the envelope
// data into out
func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) (*apiEnvelope, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	envelope, err := c.do(ctx, http.MethodPost, path, "application/json", body)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", path, err)
		}
	}
	return envelope, nil
}

// download executes a GET and returns the raw response bytes (used for
// the employee template which is served as an xlsx attachment)
func (c *Client) download(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{Status: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
