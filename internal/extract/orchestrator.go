package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/extract-cli/internal/quality"
	"github.com/sells-group/extract-cli/internal/resilience"
	"github.com/sells-group/extract-cli/internal/source"
	"github.com/sells-group/extract-cli/pkg/bridge"
	"github.com/sells-group/extract-cli/pkg/reader"
)

// DirectFetcher is the non-rendering fetch tier.
type DirectFetcher interface {
	Fetch(ctx context.Context, targetURL string) *Result
}

// CookieStore supplies stored session cookies and drives refreshes.
type CookieStore interface {
	HeaderForDomain(domain string) string
	Refresh(ctx context.Context, domain string) error
}

// Options tunes a single extraction. Caller-supplied values always override
// source defaults.
type Options struct {
	// Method forces a specific tier instead of the router recommendation.
	Method Method
	// Cookies is an explicit x-set-cookie value; suppresses the store lookup.
	Cookies string

	TargetSelector  string
	WaitForSelector string
	Timeout         time.Duration
}

// Deps wires an Orchestrator. Bridge and Cookies may be nil; Breaker must be
// the single process-wide instance shared by all extractions.
type Deps struct {
	Router  source.Router
	Sources *source.Registry
	Breaker *resilience.CircuitBreaker
	Reader  reader.Client
	Bridge  bridge.Client
	Direct  DirectFetcher
	Cookies CookieStore

	ProbeTimeout time.Duration
}

// Orchestrator sequences extraction tiers for one URL at a time. It holds no
// per-request state; concurrent extractions share only the circuit breaker.
type Orchestrator struct {
	router       source.Router
	sources      *source.Registry
	breaker      *resilience.CircuitBreaker
	reader       reader.Client
	bridge       bridge.Client
	direct       DirectFetcher
	cookies      CookieStore
	probeTimeout time.Duration

	nowFunc func() time.Time
}

// NewOrchestrator creates an orchestrator from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	probeTimeout := deps.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Orchestrator{
		router:       deps.Router,
		sources:      deps.Sources,
		breaker:      deps.Breaker,
		reader:       deps.Reader,
		bridge:       deps.Bridge,
		direct:       deps.Direct,
		cookies:      deps.Cookies,
		probeTimeout: probeTimeout,
		nowFunc:      time.Now,
	}
}

// Extract runs the tiered pipeline for one URL. Every expected failure mode
// terminates in a populated Result; the returned error is non-nil only for a
// malformed URL.
func (o *Orchestrator) Extract(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	route, err := o.router.Route(normalized)
	if err != nil {
		return nil, err
	}

	profile := o.sources.Profile(route.SourceType)
	if opts.TargetSelector != "" {
		profile.TargetSelector = opts.TargetSelector
	}
	if opts.WaitForSelector != "" {
		profile.WaitForSelector = opts.WaitForSelector
	}
	if opts.Timeout > 0 {
		profile.Timeout = opts.Timeout
	}

	method := Method(route.Method)
	if opts.Method != "" {
		if opts.Method == MethodBridge && o.bridge == nil {
			return nil, eris.New("extract: bridge-browser method forced but no bridge is configured")
		}
		method = opts.Method
	}

	zap.L().Debug("extract: routed",
		zap.String("url", normalized),
		zap.String("source_type", route.SourceType),
		zap.String("method", string(method)),
	)

	if method == MethodDirect {
		// Direct sources are cheap and reliable; no escalation.
		res := o.direct.Fetch(ctx, normalized)
		res.SourceType = route.SourceType
		return res, nil
	}

	return o.extractRendering(ctx, normalized, route, profile, opts), nil
}

// RequiresRendering reports whether the URL's source returns only a shell to
// a non-rendering fetch. Used by callers adapting results downstream.
func (o *Orchestrator) RequiresRendering(targetURL string) bool {
	route, err := o.router.Route(targetURL)
	if err != nil {
		return false
	}
	return o.sources.Profile(route.SourceType).RequiresRendering
}

// extractRendering runs tier 0 (bridge, when present) then tier 2 (rendering
// service, breaker-gated) with the single login-wall refresh-and-retry cycle,
// degrading to tier 1 only where a non-rendering fetch can possibly help.
func (o *Orchestrator) extractRendering(ctx context.Context, targetURL string, route source.Route, profile source.Profile, opts Options) *Result {
	// An explicitly forced rendering-service method skips the bridge probe.
	bridgePreferred := o.bridge != nil && opts.Method != MethodReader
	if bridgePreferred {
		if res, ok := o.tryBridge(ctx, targetURL, route, profile); ok {
			return res
		}
		zap.L().Info("extract: bridge tier unavailable, trying rendering service",
			zap.String("url", targetURL),
		)
	}

	cookieHeader := opts.Cookies
	if cookieHeader == "" && o.cookies != nil {
		cookieHeader = o.cookies.HeaderForDomain(route.Domain)
	}

	// At most one refresh-and-retry cycle per extraction: attempt 0 and,
	// after a detected login wall plus a successful cookie refresh, attempt 1.
	const maxAttempts = 2
	var res *Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var circuitOpen bool
		res, circuitOpen = o.callReader(ctx, targetURL, route, profile, cookieHeader)
		if circuitOpen {
			if attempt > 0 {
				// Breaker tripped between attempts; nothing better to offer.
				res.Error = appendNote(res.Error, "rendering service circuit opened during retry")
				break
			}
			return o.breakerFallback(ctx, targetURL, route)
		}
		res.FallbackUsed = bridgePreferred

		if res.Status == StatusFailed || !profile.RequiresRendering {
			break
		}
		if !quality.IsLoginWall(res.Content) {
			break
		}

		res.Status = StatusDegraded
		res.Error = appendNote(res.Error, "login wall detected")
		if attempt == maxAttempts-1 {
			// The post-refresh result is final, success or not.
			break
		}
		if o.cookies == nil {
			res.Error = appendNote(res.Error, "no cookie store configured; sign in via the bridge browser to extract this source")
			break
		}

		zap.L().Info("extract: login wall detected, refreshing session cookies",
			zap.String("url", targetURL),
			zap.String("domain", route.Domain),
		)
		if err := o.cookies.Refresh(ctx, route.Domain); err != nil {
			res.Error = appendNote(res.Error,
				fmt.Sprintf("session cookie refresh failed (%s); reconnect the bridge browser and sign in to %s, then retry", err, route.Domain))
			break
		}
		cookieHeader = o.cookies.HeaderForDomain(route.Domain)
	}

	if res.Status == StatusFailed {
		if profile.RequiresRendering {
			// A non-rendering fetch of a client-rendered page returns a login
			// shell; reporting failure is more useful than returning it.
			return res
		}
		return o.directFallback(ctx, targetURL, route, res.Error)
	}
	return res
}

// tryBridge probes the bridge daemon and, when a browser client is connected,
// dispatches the read. Never retried: any failure falls through to tier 2.
func (o *Orchestrator) tryBridge(ctx context.Context, targetURL string, route source.Route, profile source.Profile) (*Result, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	status, err := o.bridge.Status(probeCtx)
	cancel()
	if err != nil || !status.Available() {
		zap.L().Debug("extract: bridge probe failed",
			zap.String("url", targetURL),
			zap.Error(err),
		)
		return nil, false
	}

	dispatched, err := o.bridge.Dispatch(ctx, targetURL, "read")
	if err != nil {
		zap.L().Warn("extract: bridge dispatch failed",
			zap.String("url", targetURL),
			zap.Error(err),
		)
		return nil, false
	}

	content := strings.TrimSpace(dispatched.Content)
	v := quality.Evaluate(content, profile.RequiresRendering)
	if content == "" || v.Boilerplate || v.LoginWall {
		zap.L().Warn("extract: bridge returned shell content, falling through",
			zap.String("url", targetURL),
			zap.Int("text_len", v.TextLen),
		)
		return nil, false
	}

	return &Result{
		URL:         targetURL,
		Status:      StatusSuccess,
		Method:      MethodBridge,
		SourceType:  route.SourceType,
		Title:       dispatched.Title,
		Content:     content,
		ExtractedAt: o.nowFunc(),
	}, true
}

// callReader invokes the rendering service through the circuit breaker and
// applies the boilerplate gate. Returns circuitOpen=true when the breaker
// rejected the call outright.
func (o *Orchestrator) callReader(ctx context.Context, targetURL string, route source.Route, profile source.Profile, cookieHeader string) (*Result, bool) {
	res := &Result{
		URL:         targetURL,
		Status:      StatusFailed,
		Method:      MethodReader,
		SourceType:  route.SourceType,
		ExtractedAt: o.nowFunc(),
	}

	if err := o.breaker.Allow(); err != nil {
		return res, true
	}

	resp, err := o.reader.Render(ctx, targetURL, reader.RenderOptions{
		TargetSelector:  profile.TargetSelector,
		RemoveSelector:  profile.RemoveSelector,
		WaitForSelector: profile.WaitForSelector,
		WithShadowDOM:   profile.WithShadowDOM,
		NoCache:         profile.NoCache,
		RetainImages:    profile.RetainImages,
		Format:          profile.Format,
		Cookies:         cookieHeader,
		Timeout:         profile.Timeout,
	})
	if err != nil {
		o.breaker.RecordFailure()
		res.Error = err.Error()
		zap.L().Warn("extract: rendering service failed",
			zap.String("url", targetURL),
			zap.Error(err),
		)
		return res, false
	}
	o.breaker.RecordSuccess()

	res.Title = resp.Data.Title
	res.Description = resp.Data.Description
	res.Content = resp.Data.Body()

	if strings.TrimSpace(res.Content) == "" {
		res.Status = StatusDegraded
		res.Error = "rendering service returned empty content"
		return res, false
	}

	v := quality.Evaluate(res.Content, profile.RequiresRendering)
	if v.Boilerplate {
		// HTTP 200 with a title is not the same as post content.
		res.Status = StatusDegraded
		res.Error = fmt.Sprintf("content looks like boilerplate: %d chars of text after stripping markup", v.TextLen)
		return res, false
	}

	res.Status = StatusSuccess
	return res, false
}

// breakerFallback serves a request while the rendering service is disabled.
// The output bypassed rendering, so it is never better than Degraded.
func (o *Orchestrator) breakerFallback(ctx context.Context, targetURL string, route source.Route) *Result {
	zap.L().Warn("extract: rendering service circuit open, degrading to direct fetch",
		zap.String("url", targetURL),
	)

	res := o.direct.Fetch(ctx, targetURL)
	res.SourceType = route.SourceType
	res.FallbackUsed = true
	if res.Status == StatusSuccess {
		res.Status = StatusDegraded
	}
	res.Error = appendNote(res.Error, "rendering service temporarily disabled (circuit breaker open); direct fetch fallback used")
	return res
}

// directFallback degrades a failed rendering-service attempt for a source
// that does not require rendering.
func (o *Orchestrator) directFallback(ctx context.Context, targetURL string, route source.Route, renderErr string) *Result {
	zap.L().Info("extract: rendering service failed, degrading to direct fetch",
		zap.String("url", targetURL),
	)

	res := o.direct.Fetch(ctx, targetURL)
	res.SourceType = route.SourceType
	res.FallbackUsed = true
	if res.Status == StatusSuccess {
		// Usable, but it bypassed rendering.
		res.Status = StatusDegraded
		res.Error = appendNote(renderErr, "non-rendering fallback used")
	} else if renderErr != "" {
		res.Error = appendNote(renderErr, res.Error)
	}
	return res
}

// appendNote joins an existing error string with an additional note.
func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	if note == "" {
		return existing
	}
	return existing + "; " + note
}
