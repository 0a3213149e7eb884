package core

import (
	"errors"
	"fmt"
)

// Protocol error kinds. The token sub-kinds wrap ErrTokenInvalid, so a
// caller can match narrowly (errors.Is(err, ErrTokenExpired)) or broadly
// (errors.Is(err, ErrTokenInvalid)).
var (
	// ErrConsumerInvalid covers unknown, malformed and disabled consumers.
	ErrConsumerInvalid = errors.New("invalid consumer")

	// ErrTokenInvalid covers unknown tokens, consistency violations and
	// tokens whose owner consumer has been revoked.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrNotRequestToken: the operation required a request token but the
	// token is already an access token.
	ErrNotRequestToken = fmt.Errorf("%w: not a request token", ErrTokenInvalid)

	// ErrNotAccessToken: the operation required an access token but the
	// token is still a request token.
	ErrNotAccessToken = fmt.Errorf("%w: not an access token", ErrTokenInvalid)

	// ErrTokenExpired: the token was found but is past its expiry.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrTokenInvalid)

	// ErrCallbackValue: the callback URL was rejected.
	ErrCallbackValue = errors.New("invalid callback")

	// ErrNonceValue: nonce replay, or a nonce/timestamp outside the window.
	ErrNonceValue = errors.New("invalid nonce")
)

// Store-level errors, kept separate from the protocol kinds above so the
// registries decide how absence and collision surface to callers.
var (
	ErrNotFound  = errors.New("not found")
	ErrKeyExists = errors.New("key already exists")
)
