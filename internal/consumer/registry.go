// Package consumer implements the consumer registry: storage and
// validation of the client applications allowed to take part in the
// protocol.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/jnwerner/vouch/internal/audit"
	"github.com/jnwerner/vouch/internal/core"
)

// bucket is the store bucket consumers are persisted in.
const bucket = "consumers"

var _ core.ConsumerManager = (*Registry)(nil)

// Registry stores consumers in a core.Store and answers the validity
// questions the token registry asks on every protocol operation.
type Registry struct {
	store   core.Store
	auditor core.Auditor
	log     zerolog.Logger
}

func NewRegistry(store core.Store, auditor core.Auditor, log zerolog.Logger) *Registry {
	if auditor == nil {
		auditor = audit.NewNoop()
	}
	return &Registry{
		store:   store,
		auditor: auditor,
		log:     log.With().Str("component", "consumer-registry").Logger(),
	}
}

// Add stores a new consumer. The consumer must validate and its key must
// not be registered yet; both failures are core.ErrConsumerInvalid.
func (r *Registry) Add(ctx context.Context, c *core.Consumer) error {
	entry := core.AuditEntry{
		ID:     xid.New().String(),
		Time:   time.Now(),
		Action: "consumer.add",
	}
	defer r.logAudit(&entry)

	if !r.Check(c) {
		entry.Error = "consumer failed validation"
		return fmt.Errorf("%w: failed validation", core.ErrConsumerInvalid)
	}
	entry.ConsumerKey = c.Key

	value, err := json.Marshal(c)
	if err != nil {
		entry.Error = err.Error()
		return fmt.Errorf("encoding consumer: %w", err)
	}

	err = r.store.Update(ctx, bucket, c.Key, func(current []byte) ([]byte, error) {
		if current != nil {
			return nil, fmt.Errorf("%w: key %q already registered", core.ErrConsumerInvalid, c.Key)
		}
		return value, nil
	})
	if err != nil {
		entry.Error = err.Error()
		return err
	}

	entry.Granted = true
	r.log.Info().Str("consumer", c.Key).Msg("consumer registered")
	return nil
}

// Check reports whether the consumer is well-formed. It does not consult
// storage.
func (r *Registry) Check(c *core.Consumer) bool {
	return c.Validate()
}

// Get returns the consumer for key, or nil if it is not registered.
func (r *Registry) Get(ctx context.Context, key string) (*core.Consumer, error) {
	value, err := r.store.Get(ctx, bucket, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading consumer %q: %w", key, err)
	}

	var c core.Consumer
	if err := json.Unmarshal(value, &c); err != nil {
		return nil, fmt.Errorf("decoding consumer %q: %w", key, err)
	}
	return &c, nil
}

// GetValidated is Get, but also returns nil when the stored consumer is
// disabled or no longer well-formed.
func (r *Registry) GetValidated(ctx context.Context, key string) (*core.Consumer, error) {
	c, err := r.Get(ctx, key)
	if err != nil || c == nil {
		return nil, err
	}
	if c.Disabled || !c.Validate() {
		r.log.Debug().Str("consumer", key).Msg("consumer present but not valid")
		return nil, nil
	}
	return c, nil
}

// Update replaces an existing consumer entry in place; this is how the
// Disabled flag is flipped. The key cannot change. Fails with
// ErrConsumerInvalid if the consumer is malformed or not registered.
func (r *Registry) Update(ctx context.Context, c *core.Consumer) error {
	if !r.Check(c) {
		return fmt.Errorf("%w: failed validation", core.ErrConsumerInvalid)
	}

	value, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding consumer: %w", err)
	}

	return r.store.Update(ctx, bucket, c.Key, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: key %q not registered", core.ErrConsumerInvalid, c.Key)
		}
		return value, nil
	})
}

// AllKeys returns every registered consumer key.
func (r *Registry) AllKeys(ctx context.Context) ([]string, error) {
	return r.store.Keys(ctx, bucket)
}

// Remove deletes the consumer. Tokens owned by it are not touched here;
// the token registry re-validates the owner on lookup, so they turn
// invalid lazily.
func (r *Registry) Remove(ctx context.Context, c *core.Consumer) error {
	entry := core.AuditEntry{
		ID:          xid.New().String(),
		Time:        time.Now(),
		Action:      "consumer.remove",
		ConsumerKey: c.Key,
	}
	defer r.logAudit(&entry)

	err := r.store.Delete(ctx, bucket, c.Key)
	if errors.Is(err, core.ErrNotFound) {
		entry.Error = "not registered"
		return fmt.Errorf("%w: key %q not registered", core.ErrConsumerInvalid, c.Key)
	}
	if err != nil {
		entry.Error = err.Error()
		return fmt.Errorf("removing consumer %q: %w", c.Key, err)
	}

	entry.Granted = true
	r.log.Info().Str("consumer", c.Key).Msg("consumer removed")
	return nil
}

func (r *Registry) logAudit(entry *core.AuditEntry) {
	if err := r.auditor.Log(*entry); err != nil {
		r.log.Error().Err(err).Msg("failed to write audit log entry")
	}
}
