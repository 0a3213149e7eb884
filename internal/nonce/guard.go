// Package nonce implements the replay guard for the protocol's
// timestamp+nonce scheme.
package nonce

import (
	"strconv"
	"sync"
	"time"

	"github.com/jnwerner/vouch/internal/core"
)

const (
	// DefaultWindow is how long a seen (timestamp, nonce) pair is
	// remembered, and how far in the past a timestamp may lie.
	DefaultWindow = 5 * time.Minute

	// DefaultSkew is how far into the future a timestamp may lie before
	// it is rejected as malformed.
	DefaultSkew = time.Minute
)

// Options configures a Guard. Zero values select the defaults.
type Options struct {
	Window time.Duration
	Skew   time.Duration

	// Now supplies the current time. Injectable for deterministic tests.
	Now func() time.Time
}

var _ core.NonceManager = (*Guard)(nil)

// Guard remembers (timestamp, nonce) pairs inside a sliding window and
// rejects any pair it has seen before. The check-and-record is atomic
// under one mutex, the same discipline token exchange gets from the store.
// Seen entries outside the window are purged on every accepted check, so
// memory stays bounded by the window's traffic.
type Guard struct {
	mu     sync.Mutex
	window time.Duration
	skew   time.Duration
	now    func() time.Time
	seen   map[string]int64
}

func NewGuard(opts Options) *Guard {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Skew <= 0 {
		opts.Skew = DefaultSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{
		window: opts.Window,
		skew:   opts.Skew,
		now:    opts.Now,
		seen:   make(map[string]int64),
	}
}

// Check reports whether the (timestamp, nonce) pair is fresh, recording it
// as seen when it is. A pair is rejected when the nonce is empty, the
// timestamp lies outside the window, or the pair was already presented.
func (g *Guard) Check(timestamp int64, nonce string) bool {
	if nonce == "" {
		return false
	}

	now := g.now()
	if timestamp <= 0 {
		return false
	}
	ts := time.Unix(timestamp, 0)
	if ts.Before(now.Add(-g.window)) || ts.After(now.Add(g.skew)) {
		return false
	}

	key := strconv.FormatInt(timestamp, 10) + ":" + nonce

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.seen[key]; dup {
		return false
	}
	g.seen[key] = timestamp
	g.purge(now)
	return true
}

// purge drops entries whose timestamp has left the window. Callers hold mu.
func (g *Guard) purge(now time.Time) {
	cutoff := now.Add(-g.window).Unix()
	for key, ts := range g.seen {
		if ts < cutoff {
			delete(g.seen, key)
		}
	}
}

// Len reports how many pairs are currently remembered.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
