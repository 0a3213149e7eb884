package core

import "context"

// ConsumerManager owns Consumer entities.
// Implementations: consumer.Registry.
type ConsumerManager interface {
	// Add stores a new consumer. Fails with ErrConsumerInvalid if the
	// consumer does not validate or its key is already registered.
	Add(ctx context.Context, c *Consumer) error

	// Check reports whether the consumer is well-formed. Pure predicate,
	// no storage access.
	Check(c *Consumer) bool

	// Get returns the consumer for key, or nil if absent. Absence is not
	// an error.
	Get(ctx context.Context, key string) (*Consumer, error)

	// GetValidated is Get, but also returns nil when the stored consumer
	// is disabled or no longer validates.
	GetValidated(ctx context.Context, key string) (*Consumer, error)

	// AllKeys returns every known consumer key. Order is not significant.
	AllKeys(ctx context.Context) ([]string, error)

	// Remove deletes the consumer. Fails with ErrConsumerInvalid if it is
	// not registered.
	Remove(ctx context.Context, c *Consumer) error
}

// TokenManager owns Token entities and the request → claim → exchange
// lifecycle. Implementations: token.Registry.
type TokenManager interface {
	// GenerateRequestToken validates the consumer, callback and nonce,
	// then mints and stores a fresh request token.
	GenerateRequestToken(ctx context.Context, c *Consumer, req TokenRequest) (*Token, error)

	// ClaimRequestToken records that user authorized the request token and
	// mints its verifier. Re-claim by the same user is idempotent.
	ClaimRequestToken(ctx context.Context, key, user string) (*Token, error)

	// GenerateAccessToken exchanges a claimed request token (named by
	// req.TokenKey, proven by req.Verifier) for a fresh access token. The
	// request token is retired; a second exchange fails.
	GenerateAccessToken(ctx context.Context, c *Consumer, req TokenRequest) (*Token, error)

	// Get returns the token for key, or nil if absent. This is the only
	// lookup that tolerates absence silently.
	Get(ctx context.Context, key string) (*Token, error)

	// GetRequestToken returns the request token for key. Fails with
	// ErrTokenInvalid when absent or its consumer is gone, with
	// ErrNotRequestToken for an access token, with ErrTokenExpired past
	// expiry.
	GetRequestToken(ctx context.Context, key string) (*Token, error)

	// GetAccessToken is the access-side counterpart of GetRequestToken,
	// failing with ErrNotAccessToken for a request token.
	GetAccessToken(ctx context.Context, key string) (*Token, error)

	// TokensForUser returns the keys of every token authorized by user.
	TokensForUser(ctx context.Context, user string) ([]string, error)

	// Remove deletes the token. Fails with ErrTokenInvalid if absent.
	Remove(ctx context.Context, key string) error

	// Add inserts a token. Fails with ErrTokenInvalid on key collision.
	Add(ctx context.Context, t *Token) error
}

// ScopeManager decides whether a (consumer, access token) pair may act on a
// resource. Implementations must be side-effect-free; Validate runs on
// every resource access.
// Implementations: scope.Regex (default), scope.Expr.
type ScopeManager interface {
	// Validate reports whether the consumer identified by clientKey,
	// acting with the access token identified by accessKey, may act on
	// the resource identified by target.
	Validate(ctx context.Context, target, clientKey, accessKey string) bool
}

// NonceManager rejects replayed (timestamp, nonce) pairs.
// Implementations: nonce.Guard.
type NonceManager interface {
	// Check reports whether the pair is fresh within the accepted window,
	// recording it as seen on acceptance. A repeated pair within the
	// window returns false.
	Check(timestamp int64, nonce string) bool
}

// CallbackManager decides whether a caller-supplied callback URL is
// acceptable. Used only during request-token generation.
// Implementations: callback.Validator.
type CallbackManager interface {
	Check(callback string) bool
}

// Store is the key-value contract the registries persist through. Values
// are opaque bytes grouped into named buckets. Get returns ErrNotFound for
// an absent key; Delete of an absent key returns ErrNotFound.
//
// Update is the atomicity primitive: it runs fn as an atomic per-key
// read-modify-write. fn receives the current value (nil when absent) and
// returns the replacement; returning nil deletes the key, returning an
// error aborts the update and propagates the error unchanged.
type Store interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Keys(ctx context.Context, bucket string) ([]string, error)
	Update(ctx context.Context, bucket, key string, fn func(current []byte) ([]byte, error)) error
}
