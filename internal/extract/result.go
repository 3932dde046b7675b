// Package extract implements the tiered content-extraction pipeline:
// browser bridge, rendering service, and direct fetch, with a shared circuit
// breaker, quality gating, and session-cookie replay.
package extract

import (
	"time"
)

// Status classifies one extraction attempt.
type Status string

const (
	// StatusSuccess means usable content passed the quality gate.
	StatusSuccess Status = "success"
	// StatusDegraded means a tier responded but the output is suspect:
	// empty, boilerplate, or produced by a non-rendering fallback where
	// rendering was required.
	StatusDegraded Status = "degraded"
	// StatusFailed means no usable output at all.
	StatusFailed Status = "failed"
)

// Method identifies the tier that produced a result.
type Method string

const (
	MethodBridge Method = "bridge-browser"
	MethodReader Method = "rendering-service"
	MethodDirect Method = "direct-fetch"
)

// Result is the canonical record of one extraction attempt.
type Result struct {
	URL          string    `json:"url"`
	Status       Status    `json:"status"`
	Method       Method    `json:"method"`
	SourceType   string    `json:"source_type"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	Content      string    `json:"content,omitempty"`
	ExtractedAt  time.Time `json:"extracted_at"`
	Error        string    `json:"error,omitempty"`
	FallbackUsed bool      `json:"fallback_used"`
}
