// Package reader provides a client for the headless rendering service API
// (Jina-reader-shaped: GET {base}/{url} with header-driven render controls).
package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/extract-cli/internal/resilience"
)

// timeoutMargin keeps the client-side timeout comfortably above the
// server-side render timeout so an in-flight response is not aborted.
const timeoutMargin = 15 * time.Second

// Client defines the rendering service operations.
type Client interface {
	// Render fetches a URL through the headless rendering service.
	Render(ctx context.Context, targetURL string, opts RenderOptions) (*RenderResponse, error)
}

// RenderOptions controls how the service renders a page. Zero values omit
// the corresponding header.
type RenderOptions struct {
	TargetSelector  string
	RemoveSelector  string
	WaitForSelector string
	WithShadowDOM   bool
	NoCache         bool
	RetainImages    string        // e.g. "none"
	Format          string        // "markdown" or "text"
	Cookies         string        // x-set-cookie value
	Timeout         time.Duration // server-side render timeout
}

// RenderResponse is the parsed service response.
type RenderResponse struct {
	Code int        `json:"code"`
	Data RenderData `json:"data"`
}

// RenderData holds the rendered content.
type RenderData struct {
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	URL           string      `json:"url"`
	Content       string      `json:"content"`
	Text          string      `json:"text"`
	PublishedTime string      `json:"publishedTime"`
	Usage         RenderUsage `json:"usage"`
}

// RenderUsage tracks token consumption.
type RenderUsage struct {
	Tokens int `json:"tokens"`
}

// Body returns the rendered content regardless of output format.
func (d RenderData) Body() string {
	if d.Content != "" {
		return d.Content
	}
	return d.Text
}

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reader: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the reader client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a rendering service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://r.jina.ai",
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render fetches a URL through the rendering service. Failures are never
// retried here — the orchestrator's tier fallback is the only retry path.
func (c *httpClient) Render(ctx context.Context, targetURL string, opts RenderOptions) (*RenderResponse, error) {
	renderTimeout := opts.Timeout
	if renderTimeout <= 0 {
		renderTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, renderTimeout+timeoutMargin)
	defer cancel()

	reqURL := fmt.Sprintf("%s/%s", c.baseURL, targetURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reader: create request")
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Timeout", strconv.Itoa(int(renderTimeout.Seconds())))

	format := opts.Format
	if format == "" {
		format = "markdown"
	}
	req.Header.Set("X-Return-Format", format)

	if opts.TargetSelector != "" {
		req.Header.Set("X-Target-Selector", opts.TargetSelector)
	}
	if opts.RemoveSelector != "" {
		req.Header.Set("X-Remove-Selector", opts.RemoveSelector)
	}
	if opts.WaitForSelector != "" {
		req.Header.Set("X-Wait-For-Selector", opts.WaitForSelector)
	}
	if opts.WithShadowDOM {
		req.Header.Set("X-With-Shadow-Dom", "true")
	}
	if opts.NoCache {
		req.Header.Set("X-No-Cache", "true")
	}
	if opts.RetainImages != "" {
		req.Header.Set("X-Retain-Images", opts.RetainImages)
	}
	if opts.Cookies != "" {
		req.Header.Set("X-Set-Cookie", opts.Cookies)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "reader: request failed"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "reader: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var result RenderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "reader: unmarshal response")
	}

	return &result, nil
}
