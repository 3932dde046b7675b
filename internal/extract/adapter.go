package extract

import (
	"strings"
	"time"
)

// FailureKind tells a downstream caller what remediation applies.
type FailureKind string

const (
	// FailureAuthRequired means the source needs an authenticated browser
	// session and none was available.
	FailureAuthRequired FailureKind = "auth-required"
	// FailureUpstream means a network or service failure.
	FailureUpstream FailureKind = "upstream-failure"
	// FailureBoilerplate means a tier responded but the content is a page
	// shell, not the requested material.
	FailureBoilerplate FailureKind = "boilerplate"
)

// PageResult is the shape the drafting pipeline consumes.
type PageResult struct {
	URL         string      `json:"url"`
	SourceType  string      `json:"source_type"`
	Method      Method      `json:"method"`
	Title       string      `json:"title,omitempty"`
	Content     string      `json:"content,omitempty"`
	FetchedAt   time.Time   `json:"fetched_at"`
	OK          bool        `json:"ok"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// Canonical maps an internal Result to the downstream shape. For sources
// that require rendering, Degraded is remapped to failure: the only ways
// such a source reaches Degraded are a non-rendering fallback or boilerplate
// detection, both unusable as research material. For other sources Degraded
// is tolerable lower-fidelity output and maps to success.
func Canonical(res *Result, requiresRendering bool) PageResult {
	out := PageResult{
		URL:        res.URL,
		SourceType: res.SourceType,
		Method:     res.Method,
		Title:      res.Title,
		Content:    res.Content,
		FetchedAt:  res.ExtractedAt,
	}

	switch res.Status {
	case StatusSuccess:
		out.OK = true
	case StatusDegraded:
		out.OK = !requiresRendering
	case StatusFailed:
		out.OK = false
	}

	if out.OK {
		if res.Status == StatusDegraded {
			out.Message = "lower-fidelity fallback content: " + res.Error
		}
		return out
	}

	out.Content = ""
	out.FailureKind = classifyFailure(res)
	switch out.FailureKind {
	case FailureAuthRequired:
		out.Message = "this source needs an authenticated browser session and none was available: " + res.Error
	case FailureBoilerplate:
		out.Message = "the page responded but its content looks like boilerplate, not the requested material: " + res.Error
	default:
		out.Message = "network or service failure: " + res.Error
	}
	return out
}

// classifyFailure picks the dominant failure kind from the result's error
// annotations.
func classifyFailure(res *Result) FailureKind {
	msg := strings.ToLower(res.Error)
	switch {
	case strings.Contains(msg, "login wall"), strings.Contains(msg, "cookie"):
		return FailureAuthRequired
	case strings.Contains(msg, "boilerplate"), strings.Contains(msg, "empty content"):
		return FailureBoilerplate
	default:
		return FailureUpstream
	}
}
