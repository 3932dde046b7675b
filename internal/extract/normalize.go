package extract

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are stripped from every URL before extraction. utm_* is
// handled by prefix.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igsh":    true,
	"ref_src": true,
	"ref_url": true,
}

// shareParams are share-link noise on specific hosts only; elsewhere they
// may be meaningful query parameters.
var shareParams = map[string]map[string]bool{
	"x.com": {"s": true, "t": true},
}

// domainAliases canonicalizes redirect-prone alternate domains. The rendering
// service follows redirects but loses cookies along the way, so requests go
// straight to the canonical host.
var domainAliases = map[string]string{
	"twitter.com":        "x.com",
	"www.twitter.com":    "x.com",
	"mobile.twitter.com": "x.com",
	"mobile.x.com":       "x.com",
}

// NormalizeURL validates a URL, strips tracking query parameters, and
// canonicalizes known domain aliases. A URL that cannot be parsed into an
// absolute http(s) URL is the pipeline's one hard error.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", eris.Wrapf(err, "extract: malformed url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("extract: unsupported url %q", rawURL)
	}
	if u.Host == "" {
		return "", eris.Errorf("extract: url has no host: %q", rawURL)
	}

	host := strings.ToLower(u.Hostname())
	if canonical, ok := domainAliases[host]; ok {
		host = canonical
		u.Host = canonical
	}

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
			continue
		}
		if hostParams, ok := shareParams[host]; ok && hostParams[param] {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String(), nil
}
