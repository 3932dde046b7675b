package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/extract-cli/internal/source"
)

func TestCanonical(t *testing.T) {
	t.Parallel()

	now := time.Now()
	base := Result{
		URL:         "https://example.com/page",
		Method:      MethodReader,
		SourceType:  source.TypeArticle,
		Title:       "A Page",
		Content:     "The extracted content.",
		ExtractedAt: now,
	}

	tests := []struct {
		name              string
		status            Status
		errMsg            string
		requiresRendering bool
		wantOK            bool
		wantKind          FailureKind
	}{
		{
			name:   "success maps to ok",
			status: StatusSuccess,
			wantOK: true,
		},
		{
			name:              "success for rendering source maps to ok",
			status:            StatusSuccess,
			requiresRendering: true,
			wantOK:            true,
		},
		{
			name:   "degraded tolerable for non-rendering source",
			status: StatusDegraded,
			errMsg: "non-rendering fallback used",
			wantOK: true,
		},
		{
			name:              "degraded is failure for rendering source",
			status:            StatusDegraded,
			errMsg:            "rendering service temporarily disabled (circuit breaker open); direct fetch fallback used",
			requiresRendering: true,
			wantOK:            false,
			wantKind:          FailureUpstream,
		},
		{
			name:              "login wall degraded maps to auth required",
			status:            StatusDegraded,
			errMsg:            "login wall detected; session cookie refresh failed (no snapshot)",
			requiresRendering: true,
			wantOK:            false,
			wantKind:          FailureAuthRequired,
		},
		{
			name:              "boilerplate degraded maps to boilerplate",
			status:            StatusDegraded,
			errMsg:            "content looks like boilerplate: 18 chars of text after stripping markup",
			requiresRendering: true,
			wantOK:            false,
			wantKind:          FailureBoilerplate,
		},
		{
			name:     "failed maps to upstream failure",
			status:   StatusFailed,
			errMsg:   "direct: status 503",
			wantOK:   false,
			wantKind: FailureUpstream,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := base
			res.Status = tt.status
			res.Error = tt.errMsg

			out := Canonical(&res, tt.requiresRendering)

			assert.Equal(t, tt.wantOK, out.OK)
			assert.Equal(t, res.URL, out.URL)
			assert.Equal(t, res.Method, out.Method)
			assert.Equal(t, now, out.FetchedAt)

			if tt.wantOK {
				assert.Equal(t, res.Content, out.Content)
				assert.Empty(t, out.FailureKind)
				if tt.status == StatusDegraded {
					assert.Contains(t, out.Message, "lower-fidelity")
				}
				return
			}

			assert.Empty(t, out.Content, "failed results never carry content downstream")
			assert.Equal(t, tt.wantKind, out.FailureKind)
			assert.NotEmpty(t, out.Message)
			assert.Contains(t, out.Message, tt.errMsg)
		})
	}
}

func TestCanonical_FailureMessagesAreActionable(t *testing.T) {
	t.Parallel()

	res := &Result{
		URL:    "https://x.com/janedoe/status/123",
		Status: StatusDegraded,
		Error:  "login wall detected",
	}
	out := Canonical(res, true)

	assert.False(t, out.OK)
	assert.Equal(t, FailureAuthRequired, out.FailureKind)
	assert.Contains(t, out.Message, "authenticated browser session")
}
