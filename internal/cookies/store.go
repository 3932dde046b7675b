// Package cookies reads domain-scoped session cookie snapshots from disk and
// formats them for replay through the rendering service.
package cookies

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cookie is one persisted browser cookie.
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	ExpirationDate float64 `json:"expirationDate,omitempty"`
}

// Snapshot is the per-domain cookie file written by the external browser
// automation process. The store never writes these itself.
type Snapshot struct {
	Domain      string    `json:"domain"`
	RefreshedAt time.Time `json:"refreshedAt"`
	Count       int       `json:"count"`
	Cookies     []Cookie  `json:"cookies"`
}

// Refresher asks a live authenticated browser session to re-read its cookies
// and persist them to disk. It reports success only; the snapshot is re-read
// from disk afterwards.
type Refresher interface {
	RefreshCookies(ctx context.Context, domains []string) error
}

// Store reads cookie snapshots for replay.
type Store struct {
	dir        string
	staleAfter time.Duration
	// scopes maps auth domains that lose cookies across redirect chains to
	// the parent-domain attribute their cookies must be reinjected with.
	scopes    map[string]string
	refresher Refresher

	nowFunc func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithStaleAfter overrides the default 24h staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		s.staleAfter = d
	}
}

// WithScopes sets the domain injection-scope mapping.
func WithScopes(scopes map[string]string) Option {
	return func(s *Store) {
		s.scopes = scopes
	}
}

// WithRefresher sets the refresh delegate (normally the bridge client).
func WithRefresher(r Refresher) Option {
	return func(s *Store) {
		s.refresher = r
	}
}

// NewStore creates a cookie store rooted at dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:        dir,
		staleAfter: 24 * time.Hour,
		scopes:     map[string]string{},
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the snapshot for a domain. Returns nil with no error when no
// snapshot exists.
func (s *Store) Load(domain string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, domain+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "cookies: read snapshot for %s", domain)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrapf(err, "cookies: parse snapshot for %s", domain)
	}
	return &snap, nil
}

// Stale reports whether the snapshot is older than the staleness window.
func (s *Store) Stale(snap *Snapshot) bool {
	if snap == nil {
		return true
	}
	return s.nowFunc().Sub(snap.RefreshedAt) > s.staleAfter
}

// Header formats a snapshot as an x-set-cookie header value. Domains with a
// configured injection scope get one full cookie string per entry, each
// carrying an explicit Domain attribute so the headless browser retains them
// across redirects; entries are comma-separated. Everything else is a plain
// semicolon-joined name=value list.
func (s *Store) Header(snap *Snapshot) string {
	if snap == nil || len(snap.Cookies) == 0 {
		return ""
	}

	scope, scoped := s.scopes[snap.Domain]
	parts := make([]string, 0, len(snap.Cookies))
	for _, c := range snap.Cookies {
		if scoped {
			path := c.Path
			if path == "" {
				path = "/"
			}
			parts = append(parts, fmt.Sprintf("%s=%s; Domain=%s; Path=%s", c.Name, c.Value, scope, path))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%s", c.Name, c.Value))
		}
	}

	if scoped {
		return strings.Join(parts, ", ")
	}
	return strings.Join(parts, "; ")
}

// HeaderForDomain loads the snapshot for a domain and formats it. Returns ""
// when no snapshot exists. Staleness is logged but does not block replay; a
// stale cookie either works or trips the login-wall retry.
func (s *Store) HeaderForDomain(domain string) string {
	snap, err := s.Load(domain)
	if err != nil {
		zap.L().Warn("cookies: snapshot unreadable",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return ""
	}
	if snap == nil {
		return ""
	}
	if s.Stale(snap) {
		zap.L().Debug("cookies: snapshot is stale",
			zap.String("domain", domain),
			zap.Time("refreshed_at", snap.RefreshedAt),
		)
	}
	return s.Header(snap)
}

// Refresh asks the browser automation service to re-persist cookies for the
// given domain, then confirms a fresh snapshot is readable.
func (s *Store) Refresh(ctx context.Context, domain string) error {
	if s.refresher == nil {
		return eris.New("cookies: no refresher configured")
	}
	if err := s.refresher.RefreshCookies(ctx, []string{domain}); err != nil {
		return eris.Wrapf(err, "cookies: refresh %s", domain)
	}

	snap, err := s.Load(domain)
	if err != nil {
		return err
	}
	if snap == nil {
		return eris.Errorf("cookies: refresh reported success but no snapshot for %s", domain)
	}
	return nil
}
