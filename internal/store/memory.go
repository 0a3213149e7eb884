package store

import (
	"context"
	"sync"

	"github.com/jnwerner/vouch/internal/core"
)

var _ core.Store = (*Memory)(nil)

// Memory is an in-memory core.Store. One mutex guards the whole store;
// operations are quick map accesses, so per-bucket locking buys nothing.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		buckets: make(map[string]map[string][]byte),
	}
}

func (s *Memory) Put(_ context.Context, bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bucket(bucket)[key] = clone(value)
	return nil
}

func (s *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.buckets[bucket][key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(v), nil
}

func (s *Memory) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return core.ErrNotFound
	}
	if _, ok := b[key]; !ok {
		return core.ErrNotFound
	}
	delete(b, key)
	return nil
}

func (s *Memory) Keys(_ context.Context, bucket string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.buckets[bucket]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Memory) Update(_ context.Context, bucket, key string, fn func(current []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(bucket)

	var current []byte
	if v, ok := b[key]; ok {
		current = clone(v)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		delete(b, key)
		return nil
	}
	b[key] = clone(next)
	return nil
}

// bucket returns the named bucket, creating it if needed. Callers hold mu.
func (s *Memory) bucket(name string) map[string][]byte {
	b, ok := s.buckets[name]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[name] = b
	}
	return b
}

func clone(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
