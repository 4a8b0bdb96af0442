// Package page loads snapshots of a thread page as parsed HTML trees.
//
// The page is live: every Load call reads it again, so two snapshots of the
// same source may differ.
package page

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// maxPageBytes bounds how much of a page is read into memory.
const maxPageBytes = 16 << 20

// Loader returns the current document tree of a page.
type Loader interface {
	Load(ctx context.Context) (*html.Node, error)
}

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

// WithHeader adds a request header, e.g. a cookie for a signed-in session.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// Client fetches a thread page over HTTP.
type Client struct {
	httpClient HTTPClient
	url        string
	headers    http.Header
}

// NewClient creates a loader for the page at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		url:        url,
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches and parses the page.
func (c *Client) Load(ctx context.Context) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thread page returned HTTP %d for %s", resp.StatusCode, c.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read thread page: %w", err)
	}

	return Parse(body)
}

// FileLoader reads a saved page from disk on every Load.
type FileLoader struct {
	Path string
}

// Load reads and parses the file.
func (f FileLoader) Load(ctx context.Context) (*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path) // #nosec G304 -- path is chosen by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read page file: %w", err)
	}
	return Parse(data)
}

// ReaderLoader parses a document from an in-memory buffer, e.g. stdin.
type ReaderLoader struct {
	Data []byte
}

// Load parses the buffered document.
func (r ReaderLoader) Load(ctx context.Context) (*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Parse(r.Data)
}

// Parse turns raw HTML into a document tree.
func Parse(data []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse thread page: %w", err)
	}
	return doc, nil
}

// NewLoader picks a loader for target: http(s) URLs are fetched, "-" reads
// from stdin, anything else is treated as a file path.
func NewLoader(target string, stdin io.Reader, opts ...ClientOption) (Loader, error) {
	switch {
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return NewClient(target, opts...), nil
	case target == "-":
		data, err := io.ReadAll(io.LimitReader(stdin, maxPageBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read page from stdin: %w", err)
		}
		return ReaderLoader{Data: data}, nil
	default:
		return FileLoader{Path: target}, nil
	}
}
