package reader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extract-cli/internal/resilience"
)

func TestRender_Success(t *testing.T) {
	t.Parallel()

	want := RenderResponse{
		Code: 200,
		Data: RenderData{
			Title:       "A Post",
			Description: "Post description",
			URL:         "https://x.com/someone/status/123",
			Content:     "# A Post\n\nLong-form content goes here.",
			Usage:       RenderUsage{Tokens: 1840},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://x.com/someone/status/123", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Render(context.Background(), "https://x.com/someone/status/123", RenderOptions{})

	require.NoError(t, err)
	assert.Equal(t, want.Data.Title, got.Data.Title)
	assert.Equal(t, want.Data.Content, got.Data.Body())
	assert.Equal(t, want.Data.Usage.Tokens, got.Data.Usage.Tokens)
}

func TestRender_HeaderShaping(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.Header.Get("X-Target-Selector"))
		assert.Equal(t, "nav, footer", r.Header.Get("X-Remove-Selector"))
		assert.Equal(t, "article", r.Header.Get("X-Wait-For-Selector"))
		assert.Equal(t, "true", r.Header.Get("X-With-Shadow-Dom"))
		assert.Equal(t, "true", r.Header.Get("X-No-Cache"))
		assert.Equal(t, "none", r.Header.Get("X-Retain-Images"))
		assert.Equal(t, "text", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "45", r.Header.Get("X-Timeout"))
		assert.Equal(t, "auth_token=abc; Domain=.x.com; Path=/", r.Header.Get("X-Set-Cookie"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RenderResponse{Code: 200, Data: RenderData{Text: "rendered text"}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Render(context.Background(), "https://x.com/someone", RenderOptions{
		TargetSelector:  "main",
		RemoveSelector:  "nav, footer",
		WaitForSelector: "article",
		WithShadowDOM:   true,
		NoCache:         true,
		RetainImages:    "none",
		Format:          "text",
		Timeout:         45 * time.Second,
		Cookies:         "auth_token=abc; Domain=.x.com; Path=/",
	})

	require.NoError(t, err)
	assert.Equal(t, "rendered text", got.Data.Body())
}

func TestRender_OmitsEmptyHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{"X-Target-Selector", "X-Remove-Selector", "X-Wait-For-Selector",
			"X-With-Shadow-Dom", "X-No-Cache", "X-Set-Cookie"} {
			_, present := r.Header[h]
			assert.False(t, present, "header %s should be omitted", h)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RenderResponse{Code: 200})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Render(context.Background(), "https://example.com", RenderOptions{})
	require.NoError(t, err)
}

func TestRender_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`upstream render farm saturated`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Render(context.Background(), "https://example.com", RenderOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, resilience.IsTransient(err))
}

func TestRender_PermanentHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`key rejected`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Render(context.Background(), "https://example.com", RenderOptions{})

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.False(t, resilience.IsTransient(err))
}

func TestRender_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Render(context.Background(), "https://example.com", RenderOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRender_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Render(ctx, "https://example.com", RenderOptions{})
	require.Error(t, err)
}

func TestRenderData_Body(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "md", RenderData{Content: "md", Text: "txt"}.Body())
	assert.Equal(t, "txt", RenderData{Text: "txt"}.Body())
	assert.Empty(t, RenderData{}.Body())
}
