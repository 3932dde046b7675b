// Package source maps URLs to content-source classifications and holds the
// per-source rendering profiles.
package source

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Known source types. The profile table is closed: unknown types fall back
// to TypeGeneric.
const (
	TypeSocialSPA = "social-spa"
	TypeArticle   = "article"
	TypeGeneric   = "generic"
)

// Extraction methods, ordered roughly by fidelity and cost.
const (
	MethodBridge = "bridge-browser"
	MethodReader = "rendering-service"
	MethodDirect = "direct-fetch"
)

// Route is the classification for one URL.
type Route struct {
	SourceType string
	Method     string
	Domain     string
}

// Router classifies a URL into a source type and a recommended extraction
// method.
type Router interface {
	Route(targetURL string) (Route, error)
}

// Profile is the rendering configuration for one source type.
type Profile struct {
	RequiresRendering bool          `yaml:"requires_rendering"`
	TargetSelector    string        `yaml:"target_selector"`
	RemoveSelector    string        `yaml:"remove_selector"`
	WaitForSelector   string        `yaml:"wait_for_selector"`
	WithShadowDOM     bool          `yaml:"with_shadow_dom"`
	RetainImages      string        `yaml:"retain_images"`
	Format            string        `yaml:"format"`
	NoCache           bool          `yaml:"no_cache"`
	Timeout           time.Duration `yaml:"timeout"`
}

// UnmarshalYAML decodes a profile, parsing the timeout from a duration
// string ("30s", "1m").
func (p *Profile) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		RequiresRendering bool   `yaml:"requires_rendering"`
		TargetSelector    string `yaml:"target_selector"`
		RemoveSelector    string `yaml:"remove_selector"`
		WaitForSelector   string `yaml:"wait_for_selector"`
		WithShadowDOM     bool   `yaml:"with_shadow_dom"`
		RetainImages      string `yaml:"retain_images"`
		Format            string `yaml:"format"`
		NoCache           bool   `yaml:"no_cache"`
		Timeout           string `yaml:"timeout"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}

	*p = Profile{
		RequiresRendering: r.RequiresRendering,
		TargetSelector:    r.TargetSelector,
		RemoveSelector:    r.RemoveSelector,
		WaitForSelector:   r.WaitForSelector,
		WithShadowDOM:     r.WithShadowDOM,
		RetainImages:      r.RetainImages,
		Format:            r.Format,
		NoCache:           r.NoCache,
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return eris.Wrapf(err, "source: parse timeout %q", r.Timeout)
		}
		p.Timeout = d
	}
	return nil
}

// builtinProfiles is the closed per-source configuration table.
var builtinProfiles = map[string]Profile{
	TypeSocialSPA: {
		RequiresRendering: true,
		TargetSelector:    "main",
		WaitForSelector:   "article",
		WithShadowDOM:     true,
		RetainImages:      "none",
		Format:            "markdown",
		NoCache:           true,
		Timeout:           45 * time.Second,
	},
	TypeArticle: {
		RemoveSelector: "nav, footer, aside",
		RetainImages:   "none",
		Format:         "markdown",
		Timeout:        20 * time.Second,
	},
	TypeGeneric: {
		RetainImages: "none",
		Format:       "markdown",
		Timeout:      10 * time.Second,
	},
}

// Registry resolves source types to profiles.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns a registry seeded with the built-in profile table.
func NewRegistry() *Registry {
	profiles := make(map[string]Profile, len(builtinProfiles))
	for k, v := range builtinProfiles {
		profiles[k] = v
	}
	return &Registry{profiles: profiles}
}

// Profile returns the profile for a source type, falling back to generic.
func (r *Registry) Profile(sourceType string) Profile {
	if p, ok := r.profiles[sourceType]; ok {
		return p
	}
	return r.profiles[TypeGeneric]
}

// LoadOverrides merges per-source profile overrides from a YAML file over
// the built-in table. Entries replace the built-in profile wholesale.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "source: read overrides")
	}

	var overrides map[string]Profile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return eris.Wrap(err, "source: parse overrides")
	}

	for name, p := range overrides {
		r.profiles[name] = p
	}
	return nil
}

// rule matches a host suffix to a source type and method.
type rule struct {
	hostSuffix string
	sourceType string
	method     string
}

// RuleRouter classifies URLs by host-suffix rules. It never decides tiering
// policy beyond the recommendation; the orchestrator interprets it.
type RuleRouter struct {
	rules []rule
}

// NewRuleRouter returns a router with the default rule table.
func NewRuleRouter() *RuleRouter {
	return &RuleRouter{
		rules: []rule{
			{"x.com", TypeSocialSPA, MethodReader},
			{"instagram.com", TypeSocialSPA, MethodReader},
			{"threads.net", TypeSocialSPA, MethodReader},
			{"facebook.com", TypeSocialSPA, MethodReader},
			{"linkedin.com", TypeSocialSPA, MethodReader},
			{"medium.com", TypeArticle, MethodReader},
			{"substack.com", TypeArticle, MethodReader},
			{"nytimes.com", TypeArticle, MethodReader},
			{"theatlantic.com", TypeArticle, MethodReader},
		},
	}
}

// Route classifies a URL. Unmatched hosts are generic and fetched directly.
func (r *RuleRouter) Route(targetURL string) (Route, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" {
		return Route{}, eris.Errorf("source: cannot route url: %s", targetURL)
	}

	host := strings.ToLower(u.Hostname())
	for _, rl := range r.rules {
		if host == rl.hostSuffix || strings.HasSuffix(host, "."+rl.hostSuffix) {
			return Route{SourceType: rl.sourceType, Method: rl.method, Domain: rl.hostSuffix}, nil
		}
	}

	return Route{SourceType: TypeGeneric, Method: MethodDirect, Domain: host}, nil
}
