package extract

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// directBodyCap is how much tag-stripped body text a direct fetch keeps.
// Direct fetch is a cheap fallback, not a full extraction.
const directBodyCap = 500

// DirectClient fetches HTML via net/http with no JavaScript. Tier 1: cheap
// and reliable for ordinary server-rendered pages.
type DirectClient struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// DirectOption configures a DirectClient.
type DirectOption func(*DirectClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) DirectOption {
	return func(c *DirectClient) {
		c.client.Timeout = d
	}
}

// WithUserAgent sets the request user-agent string.
func WithUserAgent(ua string) DirectOption {
	return func(c *DirectClient) {
		c.userAgent = ua
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSec float64) DirectOption {
	return func(c *DirectClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// NewDirectClient creates a DirectClient with sensible defaults.
func NewDirectClient(opts ...DirectOption) *DirectClient {
	c := &DirectClient{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		userAgent: "Mozilla/5.0 (compatible; ResearchBot/1.0)",
		limiter:   rate.NewLimiter(rate.Limit(4), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs a URL and extracts title, description, and a capped plaintext
// body. Always returns a populated Result; expected failures land in
// Result.Error with StatusFailed.
func (c *DirectClient) Fetch(ctx context.Context, targetURL string) *Result {
	res := &Result{
		URL:         targetURL,
		Method:      MethodDirect,
		Status:      StatusFailed,
		ExtractedAt: time.Now(),
	}

	if err := c.limiter.Wait(ctx); err != nil {
		res.Error = eris.Wrap(err, "direct: rate limit wait").Error()
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		res.Error = eris.Wrap(err, "direct: create request").Error()
		return res
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		res.Error = eris.Wrap(err, "direct: fetch").Error()
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		res.Error = eris.Wrap(err, "direct: read body").Error()
		return res
	}

	if resp.StatusCode >= 400 {
		res.Error = eris.Errorf("direct: status %d", resp.StatusCode).Error()
		return res
	}

	html := string(body)
	res.Title = extractTitle(html)
	res.Description = extractDescription(html)

	text := stripHTML(html)
	if runes := []rune(text); len(runes) > directBodyCap {
		// Cap on a rune boundary so a multi-byte character is never split.
		text = string(runes[:directBodyCap])
	}
	res.Content = text

	if strings.TrimSpace(res.Content) == "" && res.Title == "" {
		res.Status = StatusDegraded
		res.Error = "direct: page produced no text"
		return res
	}

	res.Status = StatusSuccess
	return res
}

var (
	titleRe    = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)
	ogTitleRe  = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']*)["']`)
	ogDescRe   = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:description["'][^>]+content=["']([^"']*)["']`)
	metaDescRe = regexp.MustCompile(`(?i)<meta[^>]+name=["']description["'][^>]+content=["']([^"']*)["']`)
)

// extractTitle prefers the OpenGraph title over <title>.
func extractTitle(html string) string {
	if m := ogTitleRe.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := titleRe.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractDescription prefers the OpenGraph description over the meta tag.
func extractDescription(html string) string {
	if m := ogDescRe.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := metaDescRe.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer", "head"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`\s+`)
	html = spaceRe.ReplaceAllString(html, " ")

	return strings.TrimSpace(html)
}
