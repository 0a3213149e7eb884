package scope

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/jnwerner/vouch/internal/core"
)

// ExprConfig configures the expression scope manager.
type ExprConfig struct {
	// Rule is an expression over resource, client, token and scope that
	// must evaluate to a boolean, e.g.
	// `resource startsWith "/public/" || scope contains client`.
	Rule string `yaml:"rule" mapstructure:"rule"`
}

var _ core.ScopeManager = (*Expr)(nil)

// Expr is a scope manager evaluating one compiled expression per access
// check. It is the deployment-supplied alternative to Regex for policies
// that need more than pattern matching.
type Expr struct {
	tokens  TokenSource
	program *vm.Program
	log     zerolog.Logger
}

func NewExpr(tokens TokenSource, cfg ExprConfig, log zerolog.Logger) (*Expr, error) {
	program, err := expr.Compile(cfg.Rule, expr.AsBool(), expr.Env(exprEnv("", "", nil)))
	if err != nil {
		return nil, err
	}
	return &Expr{
		tokens:  tokens,
		program: program,
		log:     log.With().Str("component", "scope-expr").Logger(),
	}, nil
}

// Validate evaluates the configured rule. Evaluation errors deny.
func (m *Expr) Validate(ctx context.Context, target, clientKey, accessKey string) bool {
	t, err := m.tokens.Get(ctx, accessKey)
	if err != nil {
		m.log.Error().Err(err).Str("token", accessKey).Msg("scope lookup failed")
		return false
	}
	if t == nil || !t.Access || t.ConsumerKey != clientKey {
		return false
	}

	out, err := expr.Run(m.program, exprEnv(target, clientKey, t))
	if err != nil {
		m.log.Warn().Err(err).Str("token", accessKey).Msg("scope rule evaluation failed")
		return false
	}
	granted, ok := out.(bool)
	return ok && granted
}

func exprEnv(target, clientKey string, t *core.Token) map[string]any {
	env := map[string]any{
		"resource": target,
		"client":   clientKey,
		"token":    "",
		"user":     "",
		"scope":    "",
	}
	if t != nil {
		env["token"] = t.Key
		env["user"] = t.User
		env["scope"] = t.Scope
	}
	return env
}
