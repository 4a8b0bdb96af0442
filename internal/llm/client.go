// Package llm talks to an OpenAI-compatible chat-completions endpoint.
//
// This package enables threadlens to:
// - Resolve the completions URL from a configured base endpoint
// - Serialize comments compactly, keeping full records in a local index
// - Send the request and classify failures by HTTP status
// - Optionally retry transient failures with exponential backoff
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxResponseBytes bounds how much of a response is read into memory.
const maxResponseBytes = 8 << 20

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMaxRetries enables up to n retries of transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBackOff sets the retry schedule (useful for testing).
func WithBackOff(newBackOff func() backoff.BackOff) ClientOption {
	return func(c *Client) {
		c.newBackOff = newBackOff
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client sends analysis requests.
type Client struct {
	httpClient HTTPClient
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// NewClient creates a client that makes a single attempt per request unless
// WithMaxRetries is given.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete posts req and returns the raw response body. Cancelling ctx
// aborts the request in flight.
func (c *Client) Complete(ctx context.Context, req *Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrConfiguration)
	}
	if c.maxRetries == 0 {
		return c.doRequest(ctx, req)
	}

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		b, err := c.doRequest(ctx, req)
		if err == nil {
			body = b
			return nil
		}
		var te *TransportError
		if ctx.Err() != nil || !errors.As(err, &te) || !te.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("analysis request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, r *Request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrConfiguration, err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Message: "analysis API request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: "failed to read analysis response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleAPIError(resp.StatusCode, body)
	}

	return body, nil
}
