package extract

import (
	"context"

	"github.com/sells-group/extract-cli/pkg/bridge"
	"github.com/sells-group/extract-cli/pkg/reader"
)

// mockReader is a scriptable rendering service client.
type mockReader struct {
	calls   int
	gotURLs []string
	gotOpts []reader.RenderOptions
	fn      func(call int, targetURL string, opts reader.RenderOptions) (*reader.RenderResponse, error)
}

func (m *mockReader) Render(_ context.Context, targetURL string, opts reader.RenderOptions) (*reader.RenderResponse, error) {
	call := m.calls
	m.calls++
	m.gotURLs = append(m.gotURLs, targetURL)
	m.gotOpts = append(m.gotOpts, opts)
	return m.fn(call, targetURL, opts)
}

// mockBridge is a scriptable browser bridge client.
type mockBridge struct {
	statusResp    *bridge.StatusResponse
	statusErr     error
	dispatchRes   *bridge.DispatchResult
	dispatchErr   error
	refreshErr    error
	statusCalls   int
	dispatchCalls int
	refreshCalls  int
}

func (m *mockBridge) Status(context.Context) (*bridge.StatusResponse, error) {
	m.statusCalls++
	return m.statusResp, m.statusErr
}

func (m *mockBridge) Dispatch(_ context.Context, _, _ string) (*bridge.DispatchResult, error) {
	m.dispatchCalls++
	return m.dispatchRes, m.dispatchErr
}

func (m *mockBridge) RefreshCookies(context.Context, []string) error {
	m.refreshCalls++
	return m.refreshErr
}

// mockDirect returns a copy of a canned result for every fetch.
type mockDirect struct {
	calls  int
	result Result
}

func (m *mockDirect) Fetch(_ context.Context, targetURL string) *Result {
	m.calls++
	res := m.result
	res.URL = targetURL
	res.Method = MethodDirect
	return &res
}

// mockCookies serves a stored header and flips to a fresh one after a
// successful refresh.
type mockCookies struct {
	header       string
	freshHeader  string
	refreshErr   error
	refreshCalls int
	gotDomains   []string
}

func (m *mockCookies) HeaderForDomain(string) string {
	if m.refreshCalls > 0 && m.refreshErr == nil && m.freshHeader != "" {
		return m.freshHeader
	}
	return m.header
}

func (m *mockCookies) Refresh(_ context.Context, domain string) error {
	m.refreshCalls++
	m.gotDomains = append(m.gotDomains, domain)
	return m.refreshErr
}
