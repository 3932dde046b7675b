// Package bridge provides a client for the local browser bridge daemon,
// which drives a real authenticated browser session.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Default base URL for a locally running bridge daemon.
const defaultBaseURL = "http://127.0.0.1:8765"

// Client defines the browser bridge operations.
type Client interface {
	// Status reports how many browser clients are connected to the daemon.
	Status(ctx context.Context) (*StatusResponse, error)
	// Dispatch asks a connected browser to read a URL in an authenticated tab.
	Dispatch(ctx context.Context, targetURL, mode string) (*DispatchResult, error)
	// RefreshCookies asks the browser to re-read its session cookies and
	// persist them to disk. Reports success only; cookies are never returned.
	RefreshCookies(ctx context.Context, domains []string) error
}

// StatusResponse is the response from GET /status.
type StatusResponse struct {
	Clients int `json:"clients"`
}

// Available reports whether at least one browser client is connected.
func (s *StatusResponse) Available() bool {
	return s != nil && s.Clients > 0
}

// dispatchRequest is the body for POST /tool-dispatch.
type dispatchRequest struct {
	ID       string `json:"id"`
	ToolName string `json:"tool-name"`
	URL      string `json:"url"`
	Mode     string `json:"mode"`
}

// dispatchResponse is the envelope for POST /tool-dispatch.
type dispatchResponse struct {
	Result *DispatchResult `json:"result"`
	Error  string          `json:"error"`
}

// DispatchResult holds the content read by the browser.
type DispatchResult struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	ContentLength int    `json:"contentLength"`
}

// refreshRequest is the body for POST /cookie-refresh.
type refreshRequest struct {
	Domains []string `json:"domains,omitempty"`
}

// refreshResponse is the response from POST /cookie-refresh.
type refreshResponse struct {
	OK      bool   `json:"ok"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIError is returned when the bridge responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bridge: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the bridge client.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a bridge client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Status(ctx context.Context) (*StatusResponse, error) {
	body, err := c.get(ctx, "/status")
	if err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, eris.Wrap(err, "bridge: unmarshal status")
	}
	return &status, nil
}

func (c *httpClient) Dispatch(ctx context.Context, targetURL, mode string) (*DispatchResult, error) {
	body, err := c.post(ctx, "/tool-dispatch", dispatchRequest{
		ID:       uuid.NewString(),
		ToolName: "browser-read",
		URL:      targetURL,
		Mode:     mode,
	})
	if err != nil {
		return nil, err
	}

	var resp dispatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "bridge: unmarshal dispatch response")
	}
	if resp.Error != "" {
		return nil, eris.Errorf("bridge: dispatch failed: %s", resp.Error)
	}
	if resp.Result == nil {
		return nil, eris.New("bridge: dispatch returned no result")
	}
	return resp.Result, nil
}

func (c *httpClient) RefreshCookies(ctx context.Context, domains []string) error {
	body, err := c.post(ctx, "/cookie-refresh", refreshRequest{Domains: domains})
	if err != nil {
		return err
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return eris.Wrap(err, "bridge: unmarshal refresh response")
	}
	if !resp.OK {
		if resp.Error != "" {
			return eris.Errorf("bridge: cookie refresh failed: %s", resp.Error)
		}
		return eris.New("bridge: cookie refresh failed")
	}
	return nil
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "bridge: create GET %s", path)
	}
	return c.do(req)
}

func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrapf(err, "bridge: marshal POST %s", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "bridge: create POST %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "bridge: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "bridge: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
