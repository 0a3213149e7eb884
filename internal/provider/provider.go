// Package provider assembles a complete provider core from configuration:
// store, auditor, policy managers and the two registries. It is the
// construction root both the CLI and an embedding HTTP layer go through.
package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"github.com/jnwerner/vouch/internal/audit"
	"github.com/jnwerner/vouch/internal/callback"
	"github.com/jnwerner/vouch/internal/config"
	"github.com/jnwerner/vouch/internal/consumer"
	"github.com/jnwerner/vouch/internal/core"
	"github.com/jnwerner/vouch/internal/nonce"
	"github.com/jnwerner/vouch/internal/scope"
	"github.com/jnwerner/vouch/internal/store"
	"github.com/jnwerner/vouch/internal/token"
)

// Provider bundles the assembled components. The registries implement the
// protocol operations; Scopes answers resource-access checks.
type Provider struct {
	Store     core.Store
	Auditor   core.Auditor
	Consumers *consumer.Registry
	Tokens    *token.Registry
	Scopes    core.ScopeManager
	Nonces    core.NonceManager
	Callbacks core.CallbackManager

	log     zerolog.Logger
	closers []io.Closer
}

// Open builds a provider from cfg.
func Open(cfg *config.Config, log zerolog.Logger) (*Provider, error) {
	p := &Provider{log: log}

	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	p.Store = st
	if closer, ok := st.(io.Closer); ok {
		p.closers = append(p.closers, closer)
	}

	auditor, err := openAuditor(cfg.Audit)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Auditor = auditor
	p.closers = append(p.closers, auditorCloser{auditor})

	p.Callbacks = callback.NewValidator(cfg.Callback)
	p.Nonces = nonce.NewGuard(nonce.Options{
		Window: cfg.Nonce.Window,
		Skew:   cfg.Nonce.Skew,
	})

	p.Consumers = consumer.NewRegistry(st, auditor, log)

	p.Tokens, err = token.NewRegistry(token.Options{
		Store:      st,
		Consumers:  p.Consumers,
		Callbacks:  p.Callbacks,
		Nonces:     p.Nonces,
		Auditor:    auditor,
		Logger:     log,
		KeyLength:  cfg.Tokens.KeyLength,
		RequestTTL: cfg.Tokens.RequestTTL,
		AccessTTL:  cfg.Tokens.AccessTTL,
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	p.Scopes, err = openScope(cfg.Scope, p.Tokens, log)
	if err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// CheckResourceAccess is the resource-access decision: the access token
// must exist, be an access token, be unexpired, belong to the consumer,
// and its scope must permit the target. Policy denial is (false, nil);
// token-state failures surface as the usual error kinds.
func (p *Provider) CheckResourceAccess(ctx context.Context, target, clientKey, accessKey string) (bool, error) {
	t, err := p.Tokens.GetAccessToken(ctx, accessKey)
	if err != nil {
		return false, err
	}
	if t.ConsumerKey != clientKey {
		return false, fmt.Errorf("%w: token %q not owned by consumer %q", core.ErrTokenInvalid, accessKey, clientKey)
	}
	return p.Scopes.Validate(ctx, target, clientKey, accessKey), nil
}

// Close releases the store and auditor.
func (p *Provider) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			p.log.Error().Err(err).Msg("closing provider component")
		}
	}
	p.closers = nil
}

func openStore(cfg config.StoreConfig) (core.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return store.NewMemory(), nil
	case "bolt":
		return store.OpenBolt(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func openAuditor(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return audit.NewNoop(), nil
	}
	switch cfg.Type {
	case "", "memory":
		return audit.NewInMemory(), nil
	case "file":
		return audit.NewFile(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit type %q", cfg.Type)
	}
}

func openScope(cfg config.ScopeConfig, tokens scope.TokenSource, log zerolog.Logger) (core.ScopeManager, error) {
	switch cfg.Type {
	case "", "regex":
		var rc scope.RegexConfig
		if err := mapstructure.Decode(cfg.Config, &rc); err != nil {
			return nil, fmt.Errorf("decoding regex scope config: %w", err)
		}
		return scope.NewRegex(tokens, rc, log)
	case "expr":
		var ec scope.ExprConfig
		if err := mapstructure.Decode(cfg.Config, &ec); err != nil {
			return nil, fmt.Errorf("decoding expr scope config: %w", err)
		}
		return scope.NewExpr(tokens, ec, log)
	default:
		return nil, fmt.Errorf("unknown scope type %q", cfg.Type)
	}
}

// auditorCloser adapts core.Auditor's Close to io.Closer.
type auditorCloser struct {
	a core.Auditor
}

func (c auditorCloser) Close() error {
	return c.a.Close()
}
