package token

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/jnwerner/vouch/internal/consumer"
	"github.com/jnwerner/vouch/internal/core"
	"github.com/jnwerner/vouch/internal/store"
)

// fixture wires a registry against an in-memory store with a controllable
// clock and permissive nonce/callback policies.
type fixture struct {
	registry  *Registry
	consumers *consumer.Registry
	now       time.Time
	mu        sync.Mutex
}

type acceptAll struct{}

func (acceptAll) Check(string) bool { return true }

type freshNonces struct{}

func (freshNonces) Check(int64, string) bool { return true }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemory()
	f := &fixture{
		consumers: consumer.NewRegistry(st, nil, zerolog.Nop()),
		now:       time.Unix(1_700_000_000, 0),
	}

	reg, err := NewRegistry(Options{
		Store:     st,
		Consumers: f.consumers,
		Callbacks: acceptAll{},
		Nonces:    freshNonces{},
		Logger:    zerolog.Nop(),
		Now: func() time.Time {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.now
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	f.registry = reg
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) addConsumer(t *testing.T, key string) *core.Consumer {
	t.Helper()
	c := &core.Consumer{Key: key, Secret: "s3cret"}
	if err := f.consumers.Add(context.Background(), c); err != nil {
		t.Fatalf("adding consumer %s: %v", key, err)
	}
	return c
}

func (f *fixture) requestToken(t *testing.T, c *core.Consumer) *core.Token {
	t.Helper()
	tok, err := f.registry.GenerateRequestToken(context.Background(), c, core.TokenRequest{
		Callback:  "https://app.example.org/cb",
		Timestamp: f.now.Unix(),
		Nonce:     "n-" + t.Name(),
		Scope:     "^/public/.*",
	})
	if err != nil {
		t.Fatalf("GenerateRequestToken: %v", err)
	}
	return tok
}

func TestGenerateRequestToken(t *testing.T) {
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")

	tok := f.requestToken(t, c)

	if tok.Access {
		t.Error("fresh request token has Access = true")
	}
	if tok.User != "" || tok.Verifier != "" {
		t.Errorf("fresh request token carries user %q / verifier %q", tok.User, tok.Verifier)
	}
	if len(tok.Key) != DefaultKeyLength || len(tok.Secret) != DefaultKeyLength {
		t.Errorf("key/secret lengths = %d/%d, want %d", len(tok.Key), len(tok.Secret), DefaultKeyLength)
	}
	if !tok.CallbackConfirmed {
		t.Error("callback not confirmed")
	}
	if want := f.now.Add(DefaultRequestTTL).Unix(); tok.Expiry != want {
		t.Errorf("Expiry = %d, want %d", tok.Expiry, want)
	}

	stored, err := f.registry.Get(context.Background(), tok.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(tok, stored); diff != "" {
		t.Errorf("stored token mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateRequestToken_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown consumer", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.registry.GenerateRequestToken(ctx, &core.Consumer{Key: "ghost", Secret: "s"}, core.TokenRequest{})
		if !errors.Is(err, core.ErrConsumerInvalid) {
			t.Errorf("err = %v, want ErrConsumerInvalid", err)
		}
	})

	t.Run("disabled consumer", func(t *testing.T) {
		f := newFixture(t)
		c := f.addConsumer(t, "off.example.org")
		if err := f.consumers.Update(ctx, &core.Consumer{Key: c.Key, Secret: c.Secret, Disabled: true}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		_, err := f.registry.GenerateRequestToken(ctx, c, core.TokenRequest{})
		if !errors.Is(err, core.ErrConsumerInvalid) {
			t.Errorf("err = %v, want ErrConsumerInvalid", err)
		}
	})

	t.Run("rejected callback", func(t *testing.T) {
		f := newFixture(t)
		c := f.addConsumer(t, "app.example.org")
		f.registry.callbacks = denyAll{}
		_, err := f.registry.GenerateRequestToken(ctx, c, core.TokenRequest{Callback: "https://evil.example/cb"})
		if !errors.Is(err, core.ErrCallbackValue) {
			t.Errorf("err = %v, want ErrCallbackValue", err)
		}
	})

	t.Run("rejected nonce", func(t *testing.T) {
		f := newFixture(t)
		c := f.addConsumer(t, "app.example.org")
		f.registry.nonces = staleNonces{}
		_, err := f.registry.GenerateRequestToken(ctx, c, core.TokenRequest{Callback: "https://app.example.org/cb"})
		if !errors.Is(err, core.ErrNonceValue) {
			t.Errorf("err = %v, want ErrNonceValue", err)
		}
	})
}

type denyAll struct{}

func (denyAll) Check(string) bool { return false }

type staleNonces struct{}

func (staleNonces) Check(int64, string) bool { return false }

func TestClaimRequestToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")
	tok := f.requestToken(t, c)

	claimed, err := f.registry.ClaimRequestToken(ctx, tok.Key, "alice")
	if err != nil {
		t.Fatalf("ClaimRequestToken: %v", err)
	}
	if claimed.User != "alice" {
		t.Errorf("User = %q, want alice", claimed.User)
	}
	if claimed.Verifier == "" {
		t.Error("no verifier minted")
	}

	// idempotent re-claim by the same user keeps the verifier
	again, err := f.registry.ClaimRequestToken(ctx, tok.Key, "alice")
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if again.Verifier != claimed.Verifier {
		t.Errorf("re-claim changed verifier %q -> %q", claimed.Verifier, again.Verifier)
	}

	// a different user cannot take over
	if _, err := f.registry.ClaimRequestToken(ctx, tok.Key, "mallory"); !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("claim by other user = %v, want ErrTokenInvalid", err)
	}

	// unknown and expired tokens
	if _, err := f.registry.ClaimRequestToken(ctx, "ghost", "alice"); !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("claim of unknown token = %v, want ErrTokenInvalid", err)
	}
	f.advance(DefaultRequestTTL + time.Second)
	if _, err := f.registry.ClaimRequestToken(ctx, tok.Key, "alice"); !errors.Is(err, core.ErrTokenExpired) {
		t.Errorf("claim of expired token = %v, want ErrTokenExpired", err)
	}
}

func TestClaimRequestToken_AccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")
	access := f.exchange(t, c)

	if _, err := f.registry.ClaimRequestToken(ctx, access.Key, "alice"); !errors.Is(err, core.ErrNotRequestToken) {
		t.Errorf("claim of access token = %v, want ErrNotRequestToken", err)
	}
}

// exchange walks a token through the full request → claim → exchange flow.
func (f *fixture) exchange(t *testing.T, c *core.Consumer) *core.Token {
	t.Helper()
	ctx := context.Background()

	tok := f.requestToken(t, c)
	claimed, err := f.registry.ClaimRequestToken(ctx, tok.Key, "alice")
	if err != nil {
		t.Fatalf("ClaimRequestToken: %v", err)
	}
	access, err := f.registry.GenerateAccessToken(ctx, c, core.TokenRequest{
		TokenKey: tok.Key,
		Verifier: claimed.Verifier,
	})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return access
}

func TestGenerateAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")

	tok := f.requestToken(t, c)
	claimed, err := f.registry.ClaimRequestToken(ctx, tok.Key, "alice")
	if err != nil {
		t.Fatalf("ClaimRequestToken: %v", err)
	}

	access, err := f.registry.GenerateAccessToken(ctx, c, core.TokenRequest{
		TokenKey: tok.Key,
		Verifier: claimed.Verifier,
	})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if !access.Access {
		t.Error("exchanged token has Access = false")
	}
	if access.Key == tok.Key || access.Secret == tok.Secret {
		t.Error("access token reuses request-token credentials")
	}
	if access.Verifier != "" {
		t.Error("verifier not cleared on promotion")
	}
	if access.User != "alice" {
		t.Errorf("User = %q, want alice", access.User)
	}
	if access.Scope != tok.Scope {
		t.Errorf("Scope = %q, want %q", access.Scope, tok.Scope)
	}
	if access.Expiry != 0 {
		t.Errorf("Expiry = %d, want 0 (no access TTL configured)", access.Expiry)
	}

	// the request token is retired, single-use
	gone, err := f.registry.Get(ctx, tok.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gone != nil {
		t.Error("request token survived the exchange")
	}
	if _, err := f.registry.GenerateAccessToken(ctx, c, core.TokenRequest{
		TokenKey: tok.Key,
		Verifier: claimed.Verifier,
	}); !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("second exchange = %v, want ErrTokenInvalid", err)
	}
}

func TestGenerateAccessToken_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")
	other := f.addConsumer(t, "other.example.org")

	tok := f.requestToken(t, c)
	claimed, err := f.registry.ClaimRequestToken(ctx, tok.Key, "alice")
	if err != nil {
		t.Fatalf("ClaimRequestToken: %v", err)
	}

	tests := []struct {
		name     string
		consumer *core.Consumer
		req      core.TokenRequest
		want     error
	}{
		{
			name:     "wrong verifier",
			consumer: c,
			req:      core.TokenRequest{TokenKey: tok.Key, Verifier: "wrong"},
			want:     core.ErrTokenInvalid,
		},
		{
			name:     "empty verifier",
			consumer: c,
			req:      core.TokenRequest{TokenKey: tok.Key},
			want:     core.ErrTokenInvalid,
		},
		{
			name:     "unknown token",
			consumer: c,
			req:      core.TokenRequest{TokenKey: "ghost", Verifier: claimed.Verifier},
			want:     core.ErrTokenInvalid,
		},
		{
			name:     "wrong consumer",
			consumer: other,
			req:      core.TokenRequest{TokenKey: tok.Key, Verifier: claimed.Verifier},
			want:     core.ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.registry.GenerateAccessToken(ctx, tt.consumer, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// the wrong attempts must not have consumed the token
	if _, err := f.registry.GenerateAccessToken(ctx, c, core.TokenRequest{
		TokenKey: tok.Key,
		Verifier: claimed.Verifier,
	}); err != nil {
		t.Fatalf("exchange after failed attempts: %v", err)
	}
}

func TestGenerateAccessToken_Unclaimed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")
	tok := f.requestToken(t, c)

	_, err := f.registry.GenerateAccessToken(ctx, c, core.TokenRequest{TokenKey: tok.Key, Verifier: "v"})
	if !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("exchange of unclaimed token = %v, want ErrTokenInvalid", err)
	}
}

func TestGenerateAccessToken_AlreadyAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")
	access := f.exchange(t, c)

	_, err := f.registry.GenerateAccessToken(ctx, c, core.TokenRequest{TokenKey: access.Key, Verifier: "v"})
	if !errors.Is(err, core.ErrNotRequestToken) {
		t.Errorf("exchange of access token = %v, want ErrNotRequestToken", err)
	}
}

func TestGenerateAccessToken_Concurrent(t *testing.T) {
	const workers = 16
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")

	tok := f.requestToken(t, c)
	claimed, err := f.registry.ClaimRequestToken(ctx, tok.Key, "alice")
	if err != nil {
		t.Fatalf("ClaimRequestToken: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []*core.Token
		failures  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			access, err := f.registry.GenerateAccessToken(ctx, c, core.TokenRequest{
				TokenKey: tok.Key,
				Verifier: claimed.Verifier,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, core.ErrTokenInvalid) {
					t.Errorf("unexpected failure kind: %v", err)
				}
				failures++
				return
			}
			successes = append(successes, access)
		}()
	}
	wg.Wait()

	if len(successes) != 1 {
		t.Fatalf("got %d access tokens from one request token, want exactly 1", len(successes))
	}
	if failures != workers-1 {
		t.Errorf("failures = %d, want %d", failures, workers-1)
	}
}

func TestTypedGetters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")

	request := f.requestToken(t, c)
	access := f.exchange(t, c)

	t.Run("request token round trip", func(t *testing.T) {
		got, err := f.registry.GetRequestToken(ctx, request.Key)
		if err != nil {
			t.Fatalf("GetRequestToken: %v", err)
		}
		if got.Key != request.Key {
			t.Errorf("Key = %q, want %q", got.Key, request.Key)
		}
	})

	t.Run("access token round trip", func(t *testing.T) {
		got, err := f.registry.GetAccessToken(ctx, access.Key)
		if err != nil {
			t.Fatalf("GetAccessToken: %v", err)
		}
		if got.Key != access.Key {
			t.Errorf("Key = %q, want %q", got.Key, access.Key)
		}
	})

	t.Run("state mismatches", func(t *testing.T) {
		if _, err := f.registry.GetAccessToken(ctx, request.Key); !errors.Is(err, core.ErrNotAccessToken) {
			t.Errorf("GetAccessToken(request key) = %v, want ErrNotAccessToken", err)
		}
		if _, err := f.registry.GetRequestToken(ctx, access.Key); !errors.Is(err, core.ErrNotRequestToken) {
			t.Errorf("GetRequestToken(access key) = %v, want ErrNotRequestToken", err)
		}
	})

	t.Run("absence", func(t *testing.T) {
		if _, err := f.registry.GetRequestToken(ctx, "ghost"); !errors.Is(err, core.ErrTokenInvalid) {
			t.Errorf("GetRequestToken(absent) = %v, want ErrTokenInvalid", err)
		}
		got, err := f.registry.Get(ctx, "ghost")
		if err != nil || got != nil {
			t.Errorf("Get(absent) = %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("expiry", func(t *testing.T) {
		f.advance(DefaultRequestTTL + time.Second)
		if _, err := f.registry.GetRequestToken(ctx, request.Key); !errors.Is(err, core.ErrTokenExpired) {
			t.Errorf("GetRequestToken(expired) = %v, want ErrTokenExpired", err)
		}
		// the access token has no expiry configured and stays valid
		if _, err := f.registry.GetAccessToken(ctx, access.Key); err != nil {
			t.Errorf("GetAccessToken after time passes: %v", err)
		}
	})

	t.Run("revoked owner consumer", func(t *testing.T) {
		if err := f.consumers.Remove(ctx, c); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if _, err := f.registry.GetAccessToken(ctx, access.Key); !errors.Is(err, core.ErrTokenInvalid) {
			t.Errorf("GetAccessToken with revoked owner = %v, want ErrTokenInvalid", err)
		}
	})
}

func TestTokensForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")

	first := f.exchange(t, c)
	second := f.exchange(t, c)

	// an unclaimed request token has no user and must not appear
	f.requestToken(t, c)

	keys, err := f.registry.TokensForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("TokensForUser: %v", err)
	}
	sort.Strings(keys)
	want := []string{first.Key, second.Key}
	sort.Strings(want)
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("TokensForUser mismatch (-want +got):\n%s", diff)
	}

	none, err := f.registry.TokensForUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("TokensForUser: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("TokensForUser(nobody) = %v, want none", none)
	}
}

func TestRemoveAndAdd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.addConsumer(t, "app.example.org")
	tok := f.requestToken(t, c)

	if err := f.registry.Remove(ctx, tok.Key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := f.registry.Remove(ctx, tok.Key); !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("Remove(absent) = %v, want ErrTokenInvalid", err)
	}

	if err := f.registry.Add(ctx, tok); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := f.registry.Add(ctx, tok); !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("Add(collision) = %v, want ErrTokenInvalid", err)
	}
}
