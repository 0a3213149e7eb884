package audit

import (
	"sync"

	"github.com/jnwerner/vouch/internal/core"
)

var _ core.Auditor = (*InMemory)(nil)

// InMemory is an auditor that keeps entries in memory. Used by tests and
// by deployments that expose the trail through their own tooling.
type InMemory struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func NewInMemory() *InMemory {
	return &InMemory{
		entries: make([]core.AuditEntry, 0),
	}
}

func (i *InMemory) Log(entry core.AuditEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, entry)
	return nil
}

// Recent returns up to limit of the newest entries, oldest first.
func (i *InMemory) Recent(limit int) []core.AuditEntry {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limit > len(i.entries) {
		limit = len(i.entries)
	}
	start := len(i.entries) - limit
	entries := make([]core.AuditEntry, limit)
	copy(entries, i.entries[start:])

	return entries
}

// Find returns up to limit entries matching filter, oldest first.
func (i *InMemory) Find(filter func(entry core.AuditEntry) bool, limit int) []core.AuditEntry {
	i.mu.Lock()
	defer i.mu.Unlock()

	var matches []core.AuditEntry
	for _, entry := range i.entries {
		if filter(entry) {
			matches = append(matches, entry)
		}
	}

	if len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	return matches
}

func (i *InMemory) Close() error {
	return nil // nothing to close :)
}
