// Package scope implements the scope managers deciding whether a
// (consumer, access token) pair may act on a resource. The default manager
// treats a token's scope as regular-expression URI patterns; Expr is the
// expression-based alternative for deployments that need richer policy.
package scope

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jnwerner/vouch/internal/core"
)

// TokenSource is the read-only token lookup a scope manager resolves the
// access token through. token.Registry satisfies it.
type TokenSource interface {
	Get(ctx context.Context, key string) (*core.Token, error)
}

// RegexConfig configures the default scope manager.
type RegexConfig struct {
	// Permitted is the fallback pattern list applied to tokens carrying
	// no scope of their own. Empty means such tokens are denied outright.
	Permitted []string `yaml:"permitted" mapstructure:"permitted"`
}

var _ core.ScopeManager = (*Regex)(nil)

// Regex is the default scope manager. A token's scope is a list of
// regular-expression patterns (one per line, commas also accepted) over
// resource addresses; access is granted iff the target matches at least
// one pattern. No match means deny.
type Regex struct {
	tokens    TokenSource
	permitted []*regexp.Regexp
	log       zerolog.Logger

	// compiled token-scope patterns, keyed by pattern text. Purely a
	// cache: Validate stays free of observable side effects.
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

func NewRegex(tokens TokenSource, cfg RegexConfig, log zerolog.Logger) (*Regex, error) {
	permitted := make([]*regexp.Regexp, 0, len(cfg.Permitted))
	for _, p := range cfg.Permitted {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		permitted = append(permitted, re)
	}
	return &Regex{
		tokens:    tokens,
		permitted: permitted,
		log:       log.With().Str("component", "scope").Logger(),
		cache:     make(map[string]*regexp.Regexp),
	}, nil
}

// Validate reports whether the consumer clientKey, acting with the access
// token accessKey, may act on target.
func (m *Regex) Validate(ctx context.Context, target, clientKey, accessKey string) bool {
	t, err := m.tokens.Get(ctx, accessKey)
	if err != nil {
		m.log.Error().Err(err).Str("token", accessKey).Msg("scope lookup failed")
		return false
	}
	if t == nil || !t.Access || t.ConsumerKey != clientKey {
		return false
	}

	patterns := splitScope(t.Scope)
	if len(patterns) == 0 {
		for _, re := range m.permitted {
			if re.MatchString(target) {
				return true
			}
		}
		return false
	}

	for _, p := range patterns {
		re, err := m.compile(p)
		if err != nil {
			m.log.Warn().Err(err).Str("pattern", p).Str("token", accessKey).Msg("bad scope pattern")
			continue
		}
		if re.MatchString(target) {
			return true
		}
	}
	return false
}

func (m *Regex) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	re, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[pattern] = re
	m.mu.Unlock()
	return re, nil
}

// splitScope breaks an opaque scope value into patterns: one per line,
// commas accepted as a separator too.
func splitScope(scope string) []string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == '\n' || r == ','
	})
	patterns := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			patterns = append(patterns, f)
		}
	}
	return patterns
}
