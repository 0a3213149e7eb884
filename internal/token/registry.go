// Package token implements the token registry: the request → claim →
// exchange state machine at the center of the protocol.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/jnwerner/vouch/internal/audit"
	"github.com/jnwerner/vouch/internal/core"
)

// bucket is the store bucket all tokens live in. Request and access
// tokens share one keyspace, discriminated by the Access flag, so Get and
// Remove stay state-agnostic and key uniqueness is global.
const bucket = "tokens"

const (
	// DefaultKeyLength is the length in hex characters of minted token
	// keys and secrets.
	DefaultKeyLength = 32

	// DefaultRequestTTL bounds the life of an unexchanged request token.
	DefaultRequestTTL = 10 * time.Minute

	// verifierLength is the length in hex characters of minted verifiers.
	verifierLength = 16

	// maxMintAttempts bounds the collision-retry loop when inserting a
	// freshly minted key.
	maxMintAttempts = 5
)

// Options configures a Registry. Store and Consumers are required; the
// zero value of everything else selects a sane default.
type Options struct {
	// Store persists tokens. Its Update primitive provides the per-key
	// atomicity claim and exchange rely on.
	Store core.Store

	// Consumers resolves and validates owner consumers on every use.
	Consumers core.ConsumerManager

	// Callbacks vets callback URLs at request-token creation.
	Callbacks core.CallbackManager

	// Nonces rejects replayed (timestamp, nonce) pairs.
	Nonces core.NonceManager

	// Auditor receives one entry per protocol decision. Defaults to a
	// no-op auditor.
	Auditor core.Auditor

	// Logger is the base logger for the registry.
	Logger zerolog.Logger

	// Now supplies the current time. Injectable for deterministic tests.
	Now func() time.Time

	// KeyLength is the hex length of minted keys and secrets.
	KeyLength int

	// RequestTTL is the lifetime of a request token; 0 keeps the default.
	// AccessTTL is the lifetime of an access token; 0 means no expiry.
	RequestTTL time.Duration
	AccessTTL  time.Duration
}

var _ core.TokenManager = (*Registry)(nil)

// Registry owns tokens and enforces the protocol lifecycle. All mutations
// run inside Store.Update, so two concurrent exchanges of the same request
// token produce exactly one access token.
type Registry struct {
	store      core.Store
	consumers  core.ConsumerManager
	callbacks  core.CallbackManager
	nonces     core.NonceManager
	auditor    core.Auditor
	log        zerolog.Logger
	now        func() time.Time
	keyLength  int
	requestTTL time.Duration
	accessTTL  time.Duration
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("token registry requires a store")
	}
	if opts.Consumers == nil {
		return nil, fmt.Errorf("token registry requires a consumer manager")
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.NewNoop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.KeyLength <= 0 {
		opts.KeyLength = DefaultKeyLength
	}
	if opts.RequestTTL <= 0 {
		opts.RequestTTL = DefaultRequestTTL
	}
	return &Registry{
		store:      opts.Store,
		consumers:  opts.Consumers,
		callbacks:  opts.Callbacks,
		nonces:     opts.Nonces,
		auditor:    opts.Auditor,
		log:        opts.Logger.With().Str("component", "token-registry").Logger(),
		now:        opts.Now,
		keyLength:  opts.KeyLength,
		requestTTL: opts.RequestTTL,
		accessTTL:  opts.AccessTTL,
	}, nil
}

// GenerateRequestToken validates the consumer, the callback and the nonce,
// then mints and stores a fresh request token for the consumer.
func (r *Registry) GenerateRequestToken(ctx context.Context, c *core.Consumer, req core.TokenRequest) (*core.Token, error) {
	entry := core.AuditEntry{
		ID:     xid.New().String(),
		Time:   r.now(),
		Action: "token.request",
	}
	defer r.logAudit(&entry)

	if c == nil {
		entry.Error = "no consumer"
		return nil, core.ErrConsumerInvalid
	}
	entry.ConsumerKey = c.Key

	if err := r.checkConsumer(ctx, c.Key); err != nil {
		entry.Error = err.Error()
		return nil, err
	}

	if r.callbacks != nil && !r.callbacks.Check(req.Callback) {
		entry.Error = "callback rejected"
		r.log.Debug().Str("consumer", c.Key).Str("callback", req.Callback).Msg("callback rejected")
		return nil, fmt.Errorf("%w: callback %q rejected", core.ErrCallbackValue, req.Callback)
	}
	if r.nonces != nil && !r.nonces.Check(req.Timestamp, req.Nonce) {
		entry.Error = "nonce rejected"
		r.log.Debug().Str("consumer", c.Key).Str("nonce", req.Nonce).Msg("nonce rejected")
		return nil, fmt.Errorf("%w: nonce rejected", core.ErrNonceValue)
	}

	now := r.now()
	t := &core.Token{
		ConsumerKey:       c.Key,
		Callback:          req.Callback,
		CallbackConfirmed: true,
		Timestamp:         now.Unix(),
		Expiry:            now.Add(r.requestTTL).Unix(),
		Scope:             req.Scope,
	}
	if err := r.mintAndInsert(ctx, t); err != nil {
		entry.Error = err.Error()
		return nil, err
	}

	entry.TokenKey = t.Key
	entry.Granted = true
	r.log.Info().Str("consumer", c.Key).Str("token", t.Key).Msg("request token issued")
	return t, nil
}

// ClaimRequestToken records that user authorized the request token named
// by key and mints its verifier. Re-claim by the same user returns the
// token unchanged; a claim by a different user fails, preventing hijack.
func (r *Registry) ClaimRequestToken(ctx context.Context, key, user string) (*core.Token, error) {
	entry := core.AuditEntry{
		ID:       xid.New().String(),
		Time:     r.now(),
		Action:   "token.claim",
		TokenKey: key,
		User:     user,
	}
	defer r.logAudit(&entry)

	if user == "" {
		entry.Error = "no user"
		return nil, fmt.Errorf("%w: claim requires a user", core.ErrTokenInvalid)
	}

	verifier, err := randomHex(verifierLength)
	if err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("minting verifier: %w", err)
	}

	var claimed core.Token
	err = r.store.Update(ctx, bucket, key, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: unknown token %q", core.ErrTokenInvalid, key)
		}
		var t core.Token
		if err := json.Unmarshal(current, &t); err != nil {
			return nil, fmt.Errorf("decoding token %q: %w", key, err)
		}
		if t.Access {
			return nil, fmt.Errorf("%w: token %q", core.ErrNotRequestToken, key)
		}
		if t.ExpiredAt(r.now()) {
			return nil, fmt.Errorf("%w: token %q", core.ErrTokenExpired, key)
		}
		if t.User != "" && t.User != user {
			return nil, fmt.Errorf("%w: token %q already claimed", core.ErrTokenInvalid, key)
		}
		if t.User == user && t.Verifier != "" {
			// idempotent re-claim, keep the existing verifier
			claimed = t
			return current, nil
		}
		t.User = user
		t.Verifier = verifier
		claimed = t
		return json.Marshal(&t)
	})
	if err != nil {
		entry.Error = err.Error()
		return nil, err
	}

	entry.ConsumerKey = claimed.ConsumerKey
	entry.Granted = true
	r.log.Info().Str("token", key).Str("user", user).Msg("request token claimed")
	return &claimed, nil
}

// GenerateAccessToken exchanges the claimed request token named by
// req.TokenKey for a fresh access token. The request token is retired
// atomically, so the exchange is single-use even under concurrency; the
// access token never reuses the request token's credentials.
func (r *Registry) GenerateAccessToken(ctx context.Context, c *core.Consumer, req core.TokenRequest) (*core.Token, error) {
	entry := core.AuditEntry{
		ID:       xid.New().String(),
		Time:     r.now(),
		Action:   "token.exchange",
		TokenKey: req.TokenKey,
	}
	defer r.logAudit(&entry)

	if c == nil {
		entry.Error = "no consumer"
		return nil, core.ErrConsumerInvalid
	}
	entry.ConsumerKey = c.Key

	if err := r.checkConsumer(ctx, c.Key); err != nil {
		entry.Error = err.Error()
		return nil, err
	}

	// Retire the request token first; the Update is the commit point that
	// decides the single winner among concurrent exchanges.
	var retired core.Token
	err := r.store.Update(ctx, bucket, req.TokenKey, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: unknown token %q", core.ErrTokenInvalid, req.TokenKey)
		}
		var t core.Token
		if err := json.Unmarshal(current, &t); err != nil {
			return nil, fmt.Errorf("decoding token %q: %w", req.TokenKey, err)
		}
		if t.Access {
			return nil, fmt.Errorf("%w: token %q", core.ErrNotRequestToken, req.TokenKey)
		}
		if t.ExpiredAt(r.now()) {
			return nil, fmt.Errorf("%w: token %q", core.ErrTokenExpired, req.TokenKey)
		}
		if t.ConsumerKey != c.Key {
			return nil, fmt.Errorf("%w: token %q not owned by consumer %q", core.ErrTokenInvalid, req.TokenKey, c.Key)
		}
		if !t.Claimed() {
			return nil, fmt.Errorf("%w: token %q not claimed", core.ErrTokenInvalid, req.TokenKey)
		}
		if req.Verifier == "" || req.Verifier != t.Verifier {
			return nil, fmt.Errorf("%w: verifier mismatch for token %q", core.ErrTokenInvalid, req.TokenKey)
		}
		retired = t
		return nil, nil // delete: the request token is single-use
	})
	if err != nil {
		entry.Error = err.Error()
		return nil, err
	}

	now := r.now()
	access := &core.Token{
		ConsumerKey: c.Key,
		Access:      true,
		User:        retired.User,
		Timestamp:   now.Unix(),
		Scope:       retired.Scope,
	}
	if r.accessTTL > 0 {
		access.Expiry = now.Add(r.accessTTL).Unix()
	}
	if err := r.mintAndInsert(ctx, access); err != nil {
		// the request token is already retired at this point; the
		// exchange fails closed rather than leaving both tokens live
		entry.Error = err.Error()
		r.log.Error().Err(err).Str("token", req.TokenKey).Msg("access token insert failed after retire")
		return nil, err
	}

	entry.TokenKey = access.Key
	entry.User = access.User
	entry.Granted = true
	r.log.Info().
		Str("consumer", c.Key).
		Str("request_token", req.TokenKey).
		Str("access_token", access.Key).
		Msg("access token issued")
	return access, nil
}

// Get returns the token for key, or nil when absent. This is the only
// lookup that tolerates absence silently; every other getter fails.
func (r *Registry) Get(ctx context.Context, key string) (*core.Token, error) {
	value, err := r.store.Get(ctx, bucket, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading token %q: %w", key, err)
	}

	var t core.Token
	if err := json.Unmarshal(value, &t); err != nil {
		return nil, fmt.Errorf("decoding token %q: %w", key, err)
	}
	return &t, nil
}

// GetRequestToken returns the request token for key, validating the owner
// consumer, the token state and the expiry, in that order.
func (r *Registry) GetRequestToken(ctx context.Context, key string) (*core.Token, error) {
	return r.getChecked(ctx, key, false)
}

// GetAccessToken returns the access token for key. Resource-access paths
// go through this before asking the scope manager.
func (r *Registry) GetAccessToken(ctx context.Context, key string) (*core.Token, error) {
	return r.getChecked(ctx, key, true)
}

func (r *Registry) getChecked(ctx context.Context, key string, wantAccess bool) (*core.Token, error) {
	t, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: unknown token %q", core.ErrTokenInvalid, key)
	}

	// the owner consumer must still resolve and validate; a revoked
	// consumer invalidates its tokens without any eager cascade
	owner, err := r.consumers.GetValidated(ctx, t.ConsumerKey)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		r.log.Debug().Str("token", key).Str("consumer", t.ConsumerKey).Msg("token owner gone")
		return nil, fmt.Errorf("%w: owner consumer %q revoked", core.ErrTokenInvalid, t.ConsumerKey)
	}

	if t.Access != wantAccess {
		if wantAccess {
			return nil, fmt.Errorf("%w: token %q", core.ErrNotAccessToken, key)
		}
		return nil, fmt.Errorf("%w: token %q", core.ErrNotRequestToken, key)
	}
	if t.ExpiredAt(r.now()) {
		return nil, fmt.Errorf("%w: token %q", core.ErrTokenExpired, key)
	}
	return t, nil
}

// TokensForUser returns the keys of every token authorized by user.
// Read-only; revocation UIs iterate the result and call Remove.
func (r *Registry) TokensForUser(ctx context.Context, user string) ([]string, error) {
	keys, err := r.store.Keys(ctx, bucket)
	if err != nil {
		return nil, err
	}

	matched := make([]string, 0)
	for _, key := range keys {
		t, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if t != nil && t.User == user {
			matched = append(matched, key)
		}
	}
	return matched, nil
}

// AllKeys returns every stored token key, request and access alike.
func (r *Registry) AllKeys(ctx context.Context) ([]string, error) {
	return r.store.Keys(ctx, bucket)
}

// Remove deletes the token named by key.
func (r *Registry) Remove(ctx context.Context, key string) error {
	entry := core.AuditEntry{
		ID:       xid.New().String(),
		Time:     r.now(),
		Action:   "token.remove",
		TokenKey: key,
	}
	defer r.logAudit(&entry)

	err := r.store.Delete(ctx, bucket, key)
	if errors.Is(err, core.ErrNotFound) {
		entry.Error = "unknown token"
		return fmt.Errorf("%w: unknown token %q", core.ErrTokenInvalid, key)
	}
	if err != nil {
		entry.Error = err.Error()
		return fmt.Errorf("removing token %q: %w", key, err)
	}

	entry.Granted = true
	r.log.Info().Str("token", key).Msg("token removed")
	return nil
}

// Add inserts a token under its own key. Normally only the generation
// methods insert; Add exists for imports and tests.
func (r *Registry) Add(ctx context.Context, t *core.Token) error {
	if !t.Validate() {
		return fmt.Errorf("%w: token failed validation", core.ErrTokenInvalid)
	}
	if err := r.insert(ctx, t); err != nil {
		if errors.Is(err, core.ErrKeyExists) {
			return fmt.Errorf("%w: key %q already stored", core.ErrTokenInvalid, t.Key)
		}
		return err
	}
	return nil
}

// checkConsumer fails with ErrConsumerInvalid unless key names a consumer
// that is registered, enabled and well-formed right now.
func (r *Registry) checkConsumer(ctx context.Context, key string) error {
	c, err := r.consumers.GetValidated(ctx, key)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: unknown or disabled consumer %q", core.ErrConsumerInvalid, key)
	}
	return nil
}

// mintAndInsert fills in a fresh key/secret pair and stores the token,
// re-minting on the (cosmically unlikely) key collision.
func (r *Registry) mintAndInsert(ctx context.Context, t *core.Token) error {
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		key, err := randomHex(r.keyLength)
		if err != nil {
			return fmt.Errorf("minting token key: %w", err)
		}
		secret, err := randomHex(r.keyLength)
		if err != nil {
			return fmt.Errorf("minting token secret: %w", err)
		}
		t.Key, t.Secret = key, secret

		err = r.insert(ctx, t)
		if errors.Is(err, core.ErrKeyExists) {
			r.log.Warn().Str("token", t.Key).Msg("token key collision, re-minting")
			continue
		}
		return err
	}
	return fmt.Errorf("%w: could not mint a unique token key", core.ErrTokenInvalid)
}

// insert stores t under its key iff the key is free.
func (r *Registry) insert(ctx context.Context, t *core.Token) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return r.store.Update(ctx, bucket, t.Key, func(current []byte) ([]byte, error) {
		if current != nil {
			return nil, core.ErrKeyExists
		}
		return value, nil
	})
}

func (r *Registry) logAudit(entry *core.AuditEntry) {
	if err := r.auditor.Log(*entry); err != nil {
		r.log.Error().Err(err).Msg("failed to write audit log entry")
	}
}

// randomHex returns n hex characters from a cryptographically secure
// source. n is rounded up to the next even number of characters.
func randomHex(n int) (string, error) {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:n], nil
}
