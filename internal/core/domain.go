package core

import "time"

// Consumer is a registered client application, identified by an opaque
// key/secret pair. The key is conventionally the consumer's domain name.
type Consumer struct {
	// Key identifies this consumer. Unique, immutable after creation.
	Key string `json:"key"`

	// Secret proves possession of the key. Never handed back after creation.
	Secret string `json:"secret"`

	// Disabled marks a consumer that is registered but must not be used.
	// GetValidated treats a disabled consumer as absent.
	Disabled bool `json:"disabled,omitempty"`
}

// Validate reports whether the consumer is well-formed: a non-empty
// printable-ASCII key and secret. It does not consult storage.
func (c *Consumer) Validate() bool {
	return c != nil && isPrintableASCII(c.Key) && isPrintableASCII(c.Secret)
}

// Token is a single OAuth 1.0a credential. A token with Access == false is
// a request token; Access == true is an access token. There is no third
// state.
type Token struct {
	// Key and Secret identify this token. Minted fresh on creation and
	// minted again on promotion to an access token, so a leaked
	// request-token secret can never be replayed as an access secret.
	Key    string `json:"key"`
	Secret string `json:"secret"`

	// ConsumerKey references the owning consumer by key only. It is
	// resolved through the consumer registry on every use, so revoking
	// the consumer invalidates its tokens without an eager cascade.
	ConsumerKey string `json:"consumer_key"`

	// Callback is the redirect target supplied at request-token creation;
	// CallbackConfirmed records that the validator accepted it.
	Callback          string `json:"callback,omitempty"`
	CallbackConfirmed bool   `json:"callback_confirmed,omitempty"`

	// Verifier is minted when the resource owner claims the token and is
	// required to exchange it for an access token. Cleared on promotion.
	Verifier string `json:"verifier,omitempty"`

	// Access is true once the token has been promoted to an access token.
	Access bool `json:"access"`

	// User is the resource owner who authorized this token. Empty until
	// the token is claimed.
	User string `json:"user,omitempty"`

	// Timestamp is the creation time and Expiry the absolute expiry, both
	// in epoch seconds. Expiry 0 means the token does not expire.
	Timestamp int64 `json:"timestamp"`
	Expiry    int64 `json:"expiry,omitempty"`

	// Scope is opaque policy data passed through to the scope manager.
	// The token registry does not interpret it.
	Scope string `json:"scope,omitempty"`
}

// Validate reports whether the token is internally well-formed.
func (t *Token) Validate() bool {
	if t == nil || !isPrintableASCII(t.Key) || !isPrintableASCII(t.Secret) {
		return false
	}
	return t.ConsumerKey != ""
}

// IsRequest reports whether this is a request token.
func (t *Token) IsRequest() bool { return !t.Access }

// IsAccess reports whether this is an access token.
func (t *Token) IsAccess() bool { return t.Access }

// Claimed reports whether a resource owner has claimed this request token.
func (t *Token) Claimed() bool { return !t.Access && t.User != "" && t.Verifier != "" }

// ExpiredAt reports whether the token is expired at the given instant.
func (t *Token) ExpiredAt(now time.Time) bool {
	return t.Expiry > 0 && now.Unix() >= t.Expiry
}

// TokenRequest is the credential tuple a binding layer extracts from an
// inbound protocol request. Signature verification happens upstream of this
// core; only the already-extracted values are consumed here. The fields map
// onto the conventional OAuth parameters (oauth_callback, oauth_timestamp,
// oauth_nonce, oauth_token, oauth_verifier).
type TokenRequest struct {
	// Callback is the redirect target presented at request-token creation.
	Callback string

	// Timestamp and Nonce form the replay-detection pair.
	Timestamp int64
	Nonce     string

	// TokenKey names the request token being exchanged.
	TokenKey string

	// Verifier is the proof of resource-owner authorization.
	Verifier string

	// Scope is the requested scope, stored verbatim on the token.
	Scope string
}

func isPrintableASCII(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
