// Package callback implements the callback-URL validator consulted during
// request-token generation.
package callback

import (
	"net/url"
	"strings"

	"github.com/jnwerner/vouch/internal/core"
)

// OutOfBand is the conventional value a consumer without a redirect
// target presents instead of a URL.
const OutOfBand = "oob"

// Config configures a Validator. The zero value accepts "oob" and any
// absolute https URL.
type Config struct {
	// AllowOutOfBand accepts the "oob" marker. Disabled only by
	// DisallowOutOfBand, so the zero value keeps the conventional
	// behavior.
	DisallowOutOfBand bool `yaml:"disallow_oob" mapstructure:"disallow_oob"`

	// Schemes is the set of accepted URL schemes. Empty means https only.
	Schemes []string `yaml:"schemes" mapstructure:"schemes"`

	// Hosts is an optional allow-list. An entry starting with a dot
	// matches any subdomain of the remainder ( ".example.org" matches
	// "a.example.org" but not "example.org"); anything else matches
	// exactly. Empty means any host.
	Hosts []string `yaml:"hosts" mapstructure:"hosts"`
}

var _ core.CallbackManager = (*Validator)(nil)

// Validator accepts or rejects caller-supplied callback URLs.
type Validator struct {
	allowOOB bool
	schemes  map[string]struct{}
	hosts    []string
}

func NewValidator(cfg Config) *Validator {
	schemes := make(map[string]struct{})
	if len(cfg.Schemes) == 0 {
		schemes["https"] = struct{}{}
	}
	for _, s := range cfg.Schemes {
		schemes[strings.ToLower(s)] = struct{}{}
	}
	return &Validator{
		allowOOB: !cfg.DisallowOutOfBand,
		schemes:  schemes,
		hosts:    cfg.Hosts,
	}
}

// Check reports whether the callback is acceptable.
func (v *Validator) Check(callback string) bool {
	if callback == OutOfBand {
		return v.allowOOB
	}
	if callback == "" {
		return false
	}

	u, err := url.Parse(callback)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	if _, ok := v.schemes[strings.ToLower(u.Scheme)]; !ok {
		return false
	}
	if len(v.hosts) == 0 {
		return true
	}

	host := strings.ToLower(u.Hostname())
	for _, allowed := range v.hosts {
		allowed = strings.ToLower(allowed)
		if strings.HasPrefix(allowed, ".") {
			if strings.HasSuffix(host, allowed) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}
